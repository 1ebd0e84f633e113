package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"fasearch/pkg/database"
	errs "fasearch/pkg/errors"
	"fasearch/pkg/rules"
	"fasearch/pkg/storage"
)

// PageContext identifies the page being written
type PageContext struct {
	RunID string
	Mode  Mode
	Rule  rules.Rule
	Page  int
}

// Sink is where dispatched pages end up
type Sink interface {
	WritePage(ctx context.Context, pc PageContext, page *Page) error
}

// StdoutSink writes each record as one line of compact JSON
type StdoutSink struct {
	w io.Writer
}

// NewStdoutSink creates a console sink. A nil writer means os.Stdout.
func NewStdoutSink(w io.Writer) *StdoutSink {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutSink{w: w}
}

func (s *StdoutSink) WritePage(_ context.Context, _ PageContext, page *Page) error {
	bw := bufio.NewWriter(s.w)
	for i, record := range page.Results {
		var line bytes.Buffer
		if err := json.Compact(&line, record); err != nil {
			return errs.New(errs.ErrorTypeParsing, err, "record %d: %v", i, err)
		}
		line.WriteByte('\n')
		if _, err := bw.Write(line.Bytes()); err != nil {
			return errs.New(errs.ErrorTypeSink, err, "write record: %v", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return errs.New(errs.ErrorTypeSink, err, "write records: %v", err)
	}
	return nil
}

// FileSink writes every page to its own file in the output directory
type FileSink struct {
	storage  *storage.Manager
	compress bool
}

// NewFileSink creates a file sink writing under dir, gzipped when compress is set
func NewFileSink(dir string, compress bool) (*FileSink, error) {
	m, err := storage.NewManager(dir)
	if err != nil {
		return nil, err
	}
	return &FileSink{storage: m, compress: compress}, nil
}

func (s *FileSink) WritePage(_ context.Context, pc PageContext, page *Page) error {
	name, err := FileName(pc.Rule.Value, page.Results)
	if err != nil {
		return errs.New(errs.ErrorTypeParsing, err, "name page %d: %v", pc.Page, err)
	}
	if _, err := s.storage.SavePage(name, page.Raw, s.compress); err != nil {
		return errs.New(errs.ErrorTypeSink, err, "save page %d: %v", pc.Page, err)
	}
	return nil
}

// Dir returns the output directory
func (s *FileSink) Dir() string {
	return s.storage.GetOutputDir()
}

// Written returns how many files this sink has created
func (s *FileSink) Written() int {
	return s.storage.WrittenCount()
}

// RecordStore is the database insert primitive
type RecordStore interface {
	StoreRecord(ctx context.Context, rec database.Record) error
}

// DatabaseSink submits each record individually. The store's connection is
// owned by the caller.
type DatabaseSink struct {
	store RecordStore
}

// NewDatabaseSink wraps a record store
func NewDatabaseSink(store RecordStore) *DatabaseSink {
	return &DatabaseSink{store: store}
}

func (s *DatabaseSink) WritePage(ctx context.Context, pc PageContext, page *Page) error {
	for i, record := range page.Results {
		err := s.store.StoreRecord(ctx, database.Record{
			RunID:   pc.RunID,
			Mode:    pc.Mode.String(),
			Rule:    pc.Rule.Value,
			Tag:     pc.Rule.Tag,
			Payload: record,
		})
		if err != nil {
			return errs.New(errs.ErrorTypeSink, err, "store record %d of page %d: %v", i, pc.Page, err)
		}
	}
	return nil
}

var (
	_ Sink = (*StdoutSink)(nil)
	_ Sink = (*FileSink)(nil)
	_ Sink = (*DatabaseSink)(nil)
)

// sinkName is used in log fields
func sinkName(s Sink) string {
	switch s.(type) {
	case *StdoutSink:
		return "stdout"
	case *FileSink:
		return "files"
	case *DatabaseSink:
		return "database"
	default:
		return fmt.Sprintf("%T", s)
	}
}
