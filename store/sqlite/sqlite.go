// Package sqlite is the default Snapshot Store: records as JSON documents
// and assets as blobs in one SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/use-agent/pagediff/models"
	"github.com/use-agent/pagediff/store"
)

// pragmas go in the DSN so every pooled connection gets them.
const pragmas = "_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	record     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS assets (
	ref          TEXT PRIMARY KEY,
	content_type TEXT NOT NULL,
	data         BLOB NOT NULL,
	created_at   INTEGER NOT NULL
);
`

// Store is a store.Store on an SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: exec schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) CreatePlaceholder(ctx context.Context) (string, error) {
	id := store.NewRecordID()
	rec := models.NewPlaceholder(id, s.now())
	doc, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode record: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, created_at, record) VALUES (?, ?, ?)`,
		id, rec.CreatedAt.UnixNano(), string(doc),
	); err != nil {
		return "", fmt.Errorf("sqlite: insert placeholder: %w", err)
	}
	return id, nil
}

func (s *Store) UploadAsset(ctx context.Context, data []byte) (models.AssetRef, error) {
	ref := store.NewAssetRef()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (ref, content_type, data, created_at) VALUES (?, ?, ?, ?)`,
		string(ref), store.ContentType(data), data, s.now().UnixNano(),
	); err != nil {
		return "", fmt.Errorf("sqlite: insert asset: %w", err)
	}
	return ref, nil
}

func (s *Store) ReplaceRecord(ctx context.Context, id string, rec *models.Record) error {
	c := rec.Clone()
	c.ID = id
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("sqlite: encode record: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE snapshots SET record = ? WHERE id = ?`, string(doc), id)
	if err != nil {
		return fmt.Errorf("sqlite: replace record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: replace record: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FetchRecord(ctx context.Context, id string) (*models.Record, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM snapshots WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetch record: %w", err)
	}
	var rec models.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("sqlite: decode record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM snapshots ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: list ids: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) FetchAsset(ctx context.Context, ref models.AssetRef) (*store.Asset, error) {
	var a store.Asset
	err := s.db.QueryRowContext(ctx,
		`SELECT data, content_type FROM assets WHERE ref = ?`, string(ref),
	).Scan(&a.Data, &a.ContentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetch asset: %w", err)
	}
	return &a, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)
