package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vortunix/noderegistry/internal/model"
	"github.com/vortunix/noderegistry/internal/store"

	_ "modernc.org/sqlite"
)

var errNoDocument = errors.New("registry document not found")

// Store keeps every committed registry document as a numbered revision.
// Load reads the newest one.
type Store struct {
	db  *sql.DB
	tag string
}

type Revision struct {
	Revision  int64
	Message   string
	CreatedAt time.Time
}

func Open(path, tag string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time keeps revision numbering sequential
	db.SetMaxOpenConns(1)
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, tag: tag}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: revision log
	`
CREATE TABLE IF NOT EXISTS registry_revisions (
	revision INTEGER PRIMARY KEY AUTOINCREMENT,
	document TEXT NOT NULL,
	message TEXT NOT NULL,
	parent INTEGER,
	created_at INTEGER NOT NULL
);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) Load(ctx context.Context) (model.Registry, error) {
	var doc string
	row := s.db.QueryRowContext(ctx, `SELECT document FROM registry_revisions ORDER BY revision DESC LIMIT 1`)
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.RetrievalError{Err: errNoDocument}
		}
		return nil, &store.RetrievalError{Err: err}
	}
	var reg model.Registry
	if err := json.Unmarshal([]byte(doc), &reg); err != nil {
		return nil, &store.RetrievalError{Err: fmt.Errorf("parse registry: %w", err)}
	}
	if reg == nil {
		reg = model.Registry{}
	}
	return reg, nil
}

// Save appends a new revision whose parent is the revision current at the
// time of the call. The parent is recorded, not checked.
func (s *Store) Save(ctx context.Context, reg model.Registry, message string) error {
	if reg == nil {
		reg = model.Registry{}
	}
	doc, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return &store.PersistError{Err: err}
	}

	var parent sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT MAX(revision) FROM registry_revisions`)
	if err := row.Scan(&parent); err != nil {
		parent = sql.NullInt64{}
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO registry_revisions (document, message, parent, created_at)
VALUES (?, ?, ?, ?)
`, string(doc), store.TaggedMessage(s.tag, message), parent, time.Now().Unix())
	if err != nil {
		return &store.PersistError{Err: err}
	}
	return nil
}

// History lists the most recent revisions, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT revision, message, created_at
FROM registry_revisions
ORDER BY revision DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		var rev Revision
		var createdAt int64
		if err := rows.Scan(&rev.Revision, &rev.Message, &createdAt); err != nil {
			return nil, err
		}
		rev.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, rev)
	}
	return out, rows.Err()
}
