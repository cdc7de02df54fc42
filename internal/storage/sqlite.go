package storage

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

	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/logger"
)

// Compile-time interface check.
var _ domain.Repository = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS lists (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	name       TEXT NOT NULL,
	key        TEXT NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lists_owner ON lists(owner);

CREATE TABLE IF NOT EXISTS items (
	id         TEXT NOT NULL,
	list_id    TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	key        TEXT NOT NULL,
	quantity   INTEGER NOT NULL,
	unit       TEXT NOT NULL DEFAULT '',
	deleted    INTEGER NOT NULL DEFAULT 0,
	bought     INTEGER NOT NULL DEFAULT 0,
	bought_at  INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (list_id, id)
);

CREATE TABLE IF NOT EXISTS events (
	id       TEXT PRIMARY KEY,
	list_id  TEXT NOT NULL,
	item_id  TEXT NOT NULL DEFAULT '',
	op       TEXT NOT NULL,
	actor    TEXT NOT NULL DEFAULT '',
	at       INTEGER NOT NULL,
	undo     INTEGER NOT NULL DEFAULT 0,
	reverts  TEXT NOT NULL DEFAULT '',
	before   TEXT,
	after    TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_list ON events(list_id, at);
`

// SQLiteStore is a repository backed by a SQLite file. Each SaveList runs
// in one transaction.
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, log *logger.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("sqlite: %s failed: %v", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Info("sqlite store ready at %s", path)
	return &SQLiteStore{db: db, log: log}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveList upserts the list and replaces its items atomically.
func (s *SQLiteStore) SaveList(ctx context.Context, list *domain.List) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lists (id, owner, name, key, deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			name = excluded.name,
			key = excluded.key,
			deleted = excluded.deleted,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		list.ID, list.Owner, list.Name, list.Key, list.Deleted, unixNano(list.CreatedAt), unixNano(list.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting list %s: %w", list.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE list_id = ?`, list.ID); err != nil {
		return fmt.Errorf("clearing items of %s: %w", list.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (id, list_id, name, key, quantity, unit, deleted, bought, bought_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing item insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range list.Items {
		_, err := stmt.ExecContext(ctx, it.ID, list.ID, it.Name, it.Key, it.Quantity, it.Unit,
			it.Deleted, it.Bought, unixNano(it.BoughtAt), unixNano(it.CreatedAt), unixNano(it.UpdatedAt))
		if err != nil {
			return fmt.Errorf("inserting item %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug("sqlite: saved list %s (%d items)", list.ID, len(list.Items))
	return nil
}

// LoadList reads a list and its items.
func (s *SQLiteStore) LoadList(ctx context.Context, id string) (*domain.List, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, name, key, deleted, created_at, updated_at
		FROM lists WHERE id = ?`, id)
	l, err := scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading list %s: %w", id, err)
	}
	if err := s.loadItems(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *SQLiteStore) loadItems(ctx context.Context, l *domain.List) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, key, quantity, unit, deleted, bought, bought_at, created_at, updated_at
		FROM items WHERE list_id = ?`, l.ID)
	if err != nil {
		return fmt.Errorf("loading items of %s: %w", l.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		it := &domain.Item{ListID: l.ID}
		var boughtAt, created, updated int64
		if err := rows.Scan(&it.ID, &it.Name, &it.Key, &it.Quantity, &it.Unit,
			&it.Deleted, &it.Bought, &boughtAt, &created, &updated); err != nil {
			return fmt.Errorf("scanning item: %w", err)
		}
		it.BoughtAt = fromUnixNano(boughtAt)
		it.CreatedAt = fromUnixNano(created)
		it.UpdatedAt = fromUnixNano(updated)
		l.Items[it.ID] = it
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanList(row scanner) (*domain.List, error) {
	l := &domain.List{Items: make(map[string]*domain.Item)}
	var created, updated int64
	if err := row.Scan(&l.ID, &l.Owner, &l.Name, &l.Key, &l.Deleted, &created, &updated); err != nil {
		return nil, err
	}
	l.CreatedAt = fromUnixNano(created)
	l.UpdatedAt = fromUnixNano(updated)
	return l, nil
}

// DeleteList removes a list; its items go with it.
func (s *SQLiteStore) DeleteList(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE list_id = ?`, id); err != nil {
		return fmt.Errorf("deleting items of %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting list %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

// ListsByOwner returns every list of owner, deleted ones included.
func (s *SQLiteStore) ListsByOwner(ctx context.Context, owner string) ([]*domain.List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, name, key, deleted, created_at, updated_at
		FROM lists WHERE owner = ? ORDER BY created_at`, owner)
	if err != nil {
		return nil, fmt.Errorf("listing lists of %s: %w", owner, err)
	}

	var out []*domain.List
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning list: %w", err)
		}
		out = append(out, l)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	// Items are read after the cursor is closed; the pool has one connection.
	for _, l := range out {
		if err := s.loadItems(ctx, l); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AppendEvent stores an event with JSON list snapshots.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *domain.DomainEvent) error {
	before, err := snapshotJSON(ev.Before)
	if err != nil {
		return err
	}
	after, err := snapshotJSON(ev.After)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, list_id, item_id, op, actor, at, undo, reverts, before, after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ListID, ev.ItemID, ev.Op.String(), ev.Actor, unixNano(ev.At), ev.Undo, ev.Reverts, before, after)
	if err != nil {
		return fmt.Errorf("appending event %s: %w", ev.ID, err)
	}
	return nil
}

// Events returns the events recorded for listID, oldest first.
func (s *SQLiteStore) Events(ctx context.Context, listID string) ([]*domain.DomainEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, list_id, item_id, op, actor, at, undo, reverts, before, after
		FROM events WHERE list_id = ? ORDER BY at, rowid`, listID)
	if err != nil {
		return nil, fmt.Errorf("loading events of %s: %w", listID, err)
	}
	defer rows.Close()

	var out []*domain.DomainEvent
	for rows.Next() {
		ev := &domain.DomainEvent{}
		var op string
		var at int64
		var before, after sql.NullString
		if err := rows.Scan(&ev.ID, &ev.ListID, &ev.ItemID, &op, &ev.Actor, &at, &ev.Undo, &ev.Reverts, &before, &after); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Op = domain.OpKindFromString(op)
		ev.At = fromUnixNano(at)
		if ev.Before, err = parseSnapshot(before); err != nil {
			return nil, err
		}
		if ev.After, err = parseSnapshot(after); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func snapshotJSON(l *domain.List) (sql.NullString, error) {
	if l == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func parseSnapshot(ns sql.NullString) (*domain.List, error) {
	if !ns.Valid {
		return nil, nil
	}
	var l domain.List
	if err := json.Unmarshal([]byte(ns.String), &l); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &l, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
