package store

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "modernc.org/sqlite"

	"github.com/gitgov-io/gitgov/pkg/record"
)

// SQLiteStore is a Store backend over a single records table, keyed by
// (kind, id). It serves as a queryable projection of the record tree; the
// filesystem store stays the git-native source of truth.
type SQLiteStore[T any] struct {
	db   *sql.DB
	kind record.Kind
	load Loader[T]
}

// OpenSQLite opens (or creates) the database file and runs the migration.
// Use ":memory:" for tests.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "open sqlite %s", path)
	}
	if err := migrateSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrateSQLite(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS records (
		kind TEXT NOT NULL,
		id   TEXT NOT NULL,
		body TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	);`
	if _, err := db.ExecContext(context.Background(), query); err != nil {
		return record.Wrap(record.CodeIOError, err, "migrate records table")
	}
	return nil
}

// NewSQLiteStore binds one record kind to the shared records table.
func NewSQLiteStore[T any](db *sql.DB, kind record.Kind, load Loader[T]) *SQLiteStore[T] {
	return &SQLiteStore[T]{db: db, kind: kind, load: load}
}

// Get reads and validates one record; (nil, nil) when absent.
func (s *SQLiteStore[T]) Get(ctx context.Context, id string) (*record.Record[T], error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM records WHERE kind = ? AND id = ?`, string(s.kind), id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "select record %s", id)
	}
	return s.load([]byte(body))
}

// Put upserts the record body. Last writer wins.
func (s *SQLiteStore[T]) Put(ctx context.Context, id string, rec *record.Record[T]) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return record.Wrap(record.CodeInvalidData, err, "encode record %s", id)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (kind, id, body) VALUES (?, ?, ?)
		 ON CONFLICT (kind, id) DO UPDATE SET body = excluded.body`,
		string(s.kind), id, string(data))
	if err != nil {
		return record.Wrap(record.CodeIOError, err, "upsert record %s", id)
	}
	return nil
}

// Delete removes the record; missing ids are a no-op.
func (s *SQLiteStore[T]) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE kind = ? AND id = ?`, string(s.kind), id); err != nil {
		return record.Wrap(record.CodeIOError, err, "delete record %s", id)
	}
	return nil
}

// List returns all ids of this kind, sorted by the table's collation.
func (s *SQLiteStore[T]) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM records WHERE kind = ? ORDER BY id`, string(s.kind))
	if err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "list %s records", s.kind)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, record.Wrap(record.CodeIOError, err, "scan %s id", s.kind)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "iterate %s ids", s.kind)
	}
	return ids, nil
}

// Exists reports whether a record row exists for id.
func (s *SQLiteStore[T]) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM records WHERE kind = ? AND id = ?`, string(s.kind), id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, record.Wrap(record.CodeIOError, err, "probe record %s", id)
	}
	return true, nil
}

var _ Store[record.TaskPayload] = (*SQLiteStore[record.TaskPayload])(nil)

// NewSQLiteStores wires the full per-kind store set over one database.
func NewSQLiteStores(db *sql.DB) *Stores {
	return &Stores{
		Actors:     NewSQLiteStore(db, record.KindActor, record.LoadActor),
		Agents:     NewSQLiteStore(db, record.KindAgent, record.LoadAgent),
		Tasks:      NewSQLiteStore(db, record.KindTask, record.LoadTask),
		Cycles:     NewSQLiteStore(db, record.KindCycle, record.LoadCycle),
		Feedback:   NewSQLiteStore(db, record.KindFeedback, record.LoadFeedback),
		Executions: NewSQLiteStore(db, record.KindExecution, record.LoadExecution),
		Changelogs: NewSQLiteStore(db, record.KindChangelog, record.LoadChangelog),
	}
}
