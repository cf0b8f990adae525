// internal/store/sqlite.go
//
// SQLite implementation of the Store interface.
// Responsibilities:
//   - Opening the database with safe defaults (WAL, busy timeout, immediate
//     transactions so writers serialize on BEGIN).
//   - Applying embedded migrations (idempotent, recorded in _migrations).
//   - Session CRUD with lazy TTL expiry.
//
// Each session is one row; the record column carries the JSON-encoded
// game.Session and created_at mirrors its CreatedAt in unix nanoseconds.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/numguess/assets"
	"github.com/robalobadob/numguess/internal/game"
)

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (and creates if missing) the database at path and
// applies migrations.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, opts: newOptions(opts)}, nil
}

// openDB opens a SQLite file, creating its parent directory for relative
// paths like ./data/numguess.db.
func openDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "mkdir %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set pragmas")
	}
	return db, nil
}

// migrate applies embedded migrations in lexical order, each in its own
// transaction, skipping those already recorded in _migrations.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return errors.Wrap(err, "create _migrations")
	}

	migrations, err := assets.Migrations()
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	for _, m := range migrations {
		var done int
		err := db.QueryRow(`SELECT 1 FROM _migrations WHERE name=?`, m.Name).Scan(&done)
		if err == nil {
			log.Debug().Str("migration", m.Name).Msg("already applied")
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrap(err, "query _migrations")
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "apply %s", m.Name)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations(name) VALUES (?)`, m.Name); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "record %s", m.Name)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", m.Name)
		}
		log.Info().Str("migration", m.Name).Msg("applied")
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, sess *game.Session) (*game.Session, error) {
	for i := 0; i < s.opts.maxAttempts; i++ {
		id := s.opts.nextID()
		rec, err := s.tryInsert(ctx, sess, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
	return nil, ErrGenerationExhausted
}

// tryInsert stores sess under id unless a live session holds it.
// It returns (nil, nil) on collision.
func (s *SQLiteStore) tryInsert(ctx context.Context, sess *game.Session, id string) (*game.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	var createdAt int64
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM sessions WHERE id=?`, id).Scan(&createdAt)
	switch {
	case err == nil:
		if !s.opts.expired(time.Unix(0, createdAt)) {
			return nil, nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id); err != nil {
			return nil, errors.Wrap(err, "delete expired")
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, errors.Wrap(err, "lookup id")
	}

	rec := s.opts.stamp(sess, id)
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode session")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, version, record) VALUES (?,?,?,?)`,
		rec.ID, rec.CreatedAt.UnixNano(), rec.Version, string(data),
	); err != nil {
		return nil, errors.Wrap(err, "insert session")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*game.Session, error) {
	id = NormalizeID(id)
	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT record FROM sessions WHERE id=?`, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get session")
	}
	rec, err := decodeSession([]byte(raw))
	if err != nil {
		return nil, err
	}
	if s.opts.expired(rec.CreatedAt) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=? AND created_at=?`,
			id, rec.CreatedAt.UnixNano()); err != nil {
			log.Warn().Err(err).Str("session", id).Msg("delete expired session")
		}
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn Mutation) (*game.Session, error) {
	id = NormalizeID(id)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT record FROM sessions WHERE id=?`, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get session")
	}
	rec, err := decodeSession([]byte(raw))
	if err != nil {
		return nil, err
	}
	if s.opts.expired(rec.CreatedAt) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id); err != nil {
			return nil, errors.Wrap(err, "delete expired")
		}
		if err := tx.Commit(); err != nil {
			return nil, errors.Wrap(err, "commit")
		}
		return nil, ErrNotFound
	}

	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.Version++
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode session")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET version=?, record=? WHERE id=?`,
		rec.Version, string(data), id); err != nil {
		return nil, errors.Wrap(err, "update session")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return rec, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func decodeSession(data []byte) (*game.Session, error) {
	var rec game.Session
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	if rec.First.History == nil {
		rec.First.History = []game.ScoredGuess{}
	}
	if rec.Second.History == nil {
		rec.Second.History = []game.ScoredGuess{}
	}
	return &rec, nil
}
