package records

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"birdtracker/pkg/birdtracker"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates an existing database written by another version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// SQLiteSink stores every stream in one database file. Previous detections and
// disk rows are cleared on open.
type SQLiteSink struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers from the pipeline workers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLiteSink{db: db, path: path}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.truncate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database location.
func (s *SQLiteSink) Path() string { return s.path }

// DB exposes the handle for read-side queries.
func (s *SQLiteSink) DB() *sql.DB { return s.db }

func (s *SQLiteSink) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLiteSink) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *SQLiteSink) truncate(ctx context.Context) error {
	for _, table := range []string{"detections", "disk", "metadata"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// WriteDetections implements birdtracker.RecordSink.
func (s *SQLiteSink) WriteDetections(tier birdtracker.Tier, recs []birdtracker.DetectionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return s.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT INTO detections (tier, frame_index, x, y, radius) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range recs {
			if _, err := stmt.Exec(int(tier), r.Frame, float64(r.X), float64(r.Y), float64(r.Radius)); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteDisk implements birdtracker.RecordSink.
func (s *SQLiteSink) WriteDisk(r birdtracker.DiskRecord) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO disk (frame_index, center_x, center_y, width, height, area,
		edge_top_pts, edge_bot_pts, edge_left_pts, edge_right_pts) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Frame, float64(r.CenterX), float64(r.CenterY), r.Width, r.Height, r.Area,
		r.EdgeTop, r.EdgeBottom, r.EdgeLeft, r.EdgeRight)
	if err != nil {
		return fmt.Errorf("insert disk row: %w", err)
	}
	return nil
}

// WriteMetadata replaces the metadata table.
func (s *SQLiteSink) WriteMetadata(meta Metadata) error {
	return s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM metadata"); err != nil {
			return err
		}
		for _, kv := range meta.pairs() {
			if _, err := tx.Exec("INSERT INTO metadata (key, value) VALUES (?, ?)", kv[0], kv[1]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteSink) inTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
