// internal/store/store.go
//
// SessionStore contract shared by the memory, sqlite and bolt backends.
//
// Characteristics:
//   - Identifiers are 6 characters over [0-9A-Z]; lookups are case-insensitive.
//   - Every record expires TTL after creation. Expiry is checked lazily on
//     read/update; an expired record is never returned again.
//   - Update runs the mutation against a copy under a per-session write
//     serialization and persists it only if the mutation returns nil.

package store

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/robalobadob/numguess/internal/game"
)

var (
	// ErrNotFound is returned for unknown or expired sessions.
	ErrNotFound = errors.New("session not found")
	// ErrGenerationExhausted is returned when no free identifier was found.
	ErrGenerationExhausted = errors.New("session id generation exhausted")
)

const (
	DefaultTTL         = 24 * time.Hour
	DefaultMaxAttempts = 16
	IDLength           = 6
	idAlphabet         = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Mutation edits a session in place. Returning an error discards the edit.
type Mutation func(s *game.Session) error

// Store persists game sessions.
type Store interface {
	// Create stores a copy of s under a fresh identifier and returns it with
	// ID, CreatedAt and Version filled in.
	Create(ctx context.Context, s *game.Session) (*game.Session, error)

	// Get returns a copy of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (*game.Session, error)

	// Update applies fn atomically and returns the stored result.
	// Errors from fn are returned unchanged.
	Update(ctx context.Context, id string, fn Mutation) (*game.Session, error)

	Close() error
}

// Option configures a Store.
type Option func(*options)

type options struct {
	ttl         time.Duration
	now         func() time.Time
	newID       func() string
	maxAttempts int
}

// WithTTL sets how long a session stays reachable after creation.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides identifier generation.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// WithMaxAttempts bounds the collision retries in Create.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		ttl:         DefaultTTL,
		now:         time.Now,
		newID:       NewID,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// expired reports whether a record created at createdAt is past its TTL.
func (o options) expired(createdAt time.Time) bool {
	return !o.now().Before(createdAt.Add(o.ttl))
}

// nextID returns a normalized candidate identifier.
func (o options) nextID() string { return NormalizeID(o.newID()) }

// stamp prepares a new record for insertion under id.
func (o options) stamp(s *game.Session, id string) *game.Session {
	rec := s.Clone()
	rec.ID = id
	rec.CreatedAt = o.now().UTC()
	rec.Version = 1
	return rec
}

// NormalizeID upper-cases and trims an identifier.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// NewID returns a crypto-random identifier of IDLength characters.
func NewID() string {
	max := big.NewInt(int64(len(idAlphabet)))
	b := make([]byte, IDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(errors.Wrap(err, "read random"))
		}
		b[i] = idAlphabet[n.Int64()]
	}
	return string(b)
}
