// Package database stores search results one record per row.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS %s (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT NOT NULL,
	mode      TEXT NOT NULL,
	rule      TEXT NOT NULL,
	tag       TEXT,
	payload   TEXT NOT NULL,
	stored_at TIMESTAMP NOT NULL
)`

const postgresSchema = `CREATE TABLE IF NOT EXISTS %s (
	id        BIGSERIAL PRIMARY KEY,
	run_id    TEXT NOT NULL,
	mode      TEXT NOT NULL,
	rule      TEXT NOT NULL,
	tag       TEXT,
	payload   JSONB NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL
)`

// Record is one result record and the run that produced it
type Record struct {
	RunID   string
	Mode    string
	Rule    string
	Tag     string
	Payload []byte
}

// Store writes records to a sqlite or postgres table
type Store struct {
	db    *sql.DB
	sq    sq.StatementBuilderType
	table string
	now   func() time.Time
}

// Open connects with driver and dsn and creates table if missing
func Open(driver, dsn, table string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}
	s, err := New(db, driver, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open connection and creates table if missing
func New(db *sql.DB, driver, table string) (*Store, error) {
	if !tableName.MatchString(table) {
		return nil, errors.Errorf("invalid table name %q", table)
	}

	var schema string
	builder := sq.StatementBuilder
	switch driver {
	case DriverSQLite:
		schema = sqliteSchema
		builder = builder.PlaceholderFormat(sq.Question)
	case DriverPostgres:
		schema = postgresSchema
		builder = builder.PlaceholderFormat(sq.Dollar)
	default:
		return nil, errors.Errorf("unsupported driver %q", driver)
	}

	if _, err := db.Exec(fmt.Sprintf(schema, table)); err != nil {
		return nil, errors.Wrap(err, "init schema")
	}

	return &Store{
		db:    db,
		sq:    builder,
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// StoreRecord inserts one record
func (s *Store) StoreRecord(ctx context.Context, rec Record) error {
	if len(rec.Payload) == 0 {
		return errors.New("empty payload")
	}

	_, err := s.sq.
		Insert(s.table).
		Columns("run_id", "mode", "rule", "tag", "payload", "stored_at").
		Values(rec.RunID, rec.Mode, rec.Rule, rec.Tag, string(rec.Payload), s.now()).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrap(err, "insert record")
	}
	return nil
}

// CountRecords returns the number of rows stored for runID, or all rows when
// runID is empty
func (s *Store) CountRecords(ctx context.Context, runID string) (int, error) {
	query := s.sq.Select("COUNT(*)").From(s.table)
	if runID != "" {
		query = query.Where(sq.Eq{"run_id": runID})
	}

	var n int
	if err := query.RunWith(s.db).QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count records")
	}
	return n, nil
}

// Payloads returns the stored payloads for runID in insertion order
func (s *Store) Payloads(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.sq.
		Select("payload").
		From(s.table).
		Where(sq.Eq{"run_id": runID}).
		OrderBy("id").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "select payloads")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.Wrap(err, "scan payload")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "iterate payloads")
}

// Close closes the underlying connection
func (s *Store) Close() error {
	return s.db.Close()
}
