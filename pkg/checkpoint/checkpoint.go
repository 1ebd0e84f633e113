package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"fasearch/pkg/logger"
)

// Checkpoint is the saved pagination state of one rule
type Checkpoint struct {
	Key            string    `json:"key"`
	RunID          string    `json:"run_id"`
	Mode           string    `json:"mode"`
	Rule           string    `json:"rule"`
	Tag            string    `json:"tag,omitempty"`
	FromDate       string    `json:"from_date,omitempty"`
	ToDate         string    `json:"to_date,omitempty"`
	Bucket         string    `json:"bucket,omitempty"`
	NextToken      string    `json:"next_token"`
	PagesFetched   int       `json:"pages_fetched"`
	RecordsFetched int       `json:"records_fetched"`
	CountTotal     int       `json:"count_total"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int       `json:"version"`
}

// Key derives a stable file-safe key from the parameters that define a query
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:8])
}

// Manager stores checkpoints as JSON files in one directory
type Manager struct {
	dir    string
	logger logger.Logger
}

// NewManager creates a checkpoint manager. An empty dir selects the
// platform data directory.
func NewManager(dir string, log logger.Logger) (*Manager, error) {
	if dir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Manager{dir: dir, logger: log}, nil
}

// Dir returns the directory holding checkpoint files
func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) path(key string) string {
	return filepath.Join(m.dir, key+".checkpoint.json")
}

// Load loads the checkpoint for key; it returns nil, nil when none exists
func (m *Manager) Load(key string) (*Checkpoint, error) {
	data, err := os.ReadFile(m.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"rule":       checkpoint.Rule,
		"pages":      checkpoint.PagesFetched,
		"next_token": checkpoint.NextToken,
		"updated_at": checkpoint.UpdatedAt,
	})

	return &checkpoint, nil
}

// Save saves the checkpoint to disk atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	if checkpoint.Key == "" {
		return fmt.Errorf("checkpoint has no key")
	}
	now := time.Now()
	if checkpoint.CreatedAt.IsZero() {
		checkpoint.CreatedAt = now
	}
	checkpoint.UpdatedAt = now
	checkpoint.Version = 1

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	target := m.path(checkpoint.Key)
	tempPath := target + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"rule":       checkpoint.Rule,
		"pages":      checkpoint.PagesFetched,
		"next_token": checkpoint.NextToken,
	})

	return nil
}

// Delete removes the checkpoint for key, if any
func (m *Manager) Delete(key string) error {
	if err := os.Remove(m.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Exists checks if a checkpoint file exists for key
func (m *Manager) Exists(key string) bool {
	_, err := os.Stat(m.path(key))
	return err == nil
}

// List returns every stored checkpoint, skipping unreadable files
func (m *Manager) List() ([]*Checkpoint, error) {
	matches, err := filepath.Glob(filepath.Join(m.dir, "*.checkpoint.json"))
	if err != nil {
		return nil, err
	}

	var out []*Checkpoint
	for _, match := range matches {
		key := strings.TrimSuffix(filepath.Base(match), ".checkpoint.json")
		cp, err := m.Load(key)
		if err != nil {
			m.logger.WithError(err).WarnWithFields("Skipping unreadable checkpoint", map[string]interface{}{"path": match})
			continue
		}
		if cp != nil {
			out = append(out, cp)
		}
	}
	return out, nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "fasearch")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "fasearch")
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "fasearch")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "fasearch")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
