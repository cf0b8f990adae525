// internal/store/bolt.go
//
// BBolt implementation of the Store interface. Sessions live in a single
// bucket keyed by identifier with JSON values. bbolt runs one read-write
// transaction at a time, which serializes updates.

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/robalobadob/numguess/internal/game"
)

var sessionsBucket = []byte("sessions")

// BoltStore is a Store backed by a bbolt database file.
type BoltStore struct {
	db   *bbolt.DB
	opts options
}

var _ Store = (*BoltStore)(nil)

// OpenBolt opens (and creates if missing) the bbolt database at path.
func OpenBolt(path string, opts ...Option) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening bbolt db")
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create sessions bucket")
	}
	return &BoltStore{db: db, opts: newOptions(opts)}, nil
}

func (s *BoltStore) Create(ctx context.Context, sess *game.Session) (*game.Session, error) {
	var out *game.Session
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		for i := 0; i < s.opts.maxAttempts; i++ {
			id := s.opts.nextID()
			if data := b.Get([]byte(id)); data != nil {
				old, err := decodeSession(data)
				if err != nil {
					return err
				}
				if !s.opts.expired(old.CreatedAt) {
					continue
				}
			}
			rec := s.opts.stamp(sess, id)
			if err := putSession(b, rec); err != nil {
				return err
			}
			out = rec
			return nil
		}
		return ErrGenerationExhausted
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Get(ctx context.Context, id string) (*game.Session, error) {
	id = NormalizeID(id)
	var out *game.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		rec, err := decodeSession(data)
		if err != nil {
			return err
		}
		// Expired keys are left for the next Update to delete.
		if s.opts.expired(rec.CreatedAt) {
			return ErrNotFound
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Update(ctx context.Context, id string, fn Mutation) (*game.Session, error) {
	id = NormalizeID(id)
	var (
		out     *game.Session
		expired bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		rec, err := decodeSession(data)
		if err != nil {
			return err
		}
		if s.opts.expired(rec.CreatedAt) {
			// Commit the delete; report not found after the transaction.
			expired = true
			return b.Delete([]byte(id))
		}
		if err := fn(rec); err != nil {
			return err
		}
		rec.Version++
		if err := putSession(b, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrNotFound
	}
	return out, nil
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error { return s.db.Close() }

func putSession(b *bbolt.Bucket, rec *game.Session) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	return b.Put([]byte(rec.ID), data)
}
