package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

const (
	// JSONExt is the extension of an uncompressed page file
	JSONExt = ".json"
	// GzipExt is the extension of a compressed page file
	GzipExt = ".json.gz"
)

// Manager writes page files into the out box. Names never overwrite: a
// taken name gets a numeric suffix.
type Manager struct {
	outputDir string
	written   map[string]bool
	mu        sync.Mutex
}

// NewManager creates a new storage manager
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		outputDir: outputDir,
		written:   make(map[string]bool),
	}, nil
}

// SavePage writes data as {base}.json, or gzipped as {base}.json.gz, and
// returns the path written. If the name exists, {base}_1, {base}_2, ... are
// tried in order and the first free one is used.
func (m *Manager) SavePage(base string, data []byte, compress bool) (string, error) {
	ext := JSONExt
	if compress {
		ext = GzipExt
		var err error
		if data, err = gzipBytes(data); err != nil {
			return "", fmt.Errorf("failed to compress page: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	filename := m.freeName(base, ext)
	if err := writeAtomic(filename, data); err != nil {
		return "", err
	}
	m.written[filename] = true
	return filename, nil
}

// freeName returns the first unused path for base. Callers hold mu.
func (m *Manager) freeName(base, ext string) string {
	candidate := filepath.Join(m.outputDir, base+ext)
	for i := 1; m.exists(candidate); i++ {
		candidate = filepath.Join(m.outputDir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	return candidate
}

func (m *Manager) exists(path string) bool {
	if m.written[path] {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}

// writeAtomic writes to a temporary file and renames it into place
func writeAtomic(filename string, data []byte) error {
	tempFile := filename + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ListPages returns the page files in dir, compressed or not, sorted by name
func ListPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(name, JSONExt) || strings.HasSuffix(name, GzipExt) {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadPage returns the contents of a page file, decompressing .gz files
func ReadPage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip page %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	return io.ReadAll(r)
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

// WrittenCount returns the number of files written by this manager
func (m *Manager) WrittenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.written)
}
