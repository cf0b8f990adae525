// internal/store/memory.go
//
// In-memory implementation of the Store interface.
// Used by default and in tests; state is lost when the process restarts.
//
// Characteristics:
//   - The sessions map is guarded by an RWMutex (membership only).
//   - Each session has its own mutex, so updates on one id never wait on
//     another id.
//   - Mutations run on a deep copy that replaces the stored record only on
//     success; readers never see a half-applied update.

package store

import (
	"context"
	"sync"

	"github.com/robalobadob/numguess/internal/game"
)

// entry is one stored session. gone is set once the record is observed
// expired, after which the entry is unreachable even if still mapped.
type entry struct {
	mu   sync.Mutex
	rec  *game.Session
	gone bool
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	opts     options
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore(opts ...Option) Store {
	return &memory{sessions: make(map[string]*entry), opts: newOptions(opts)}
}

func (m *memory) Create(ctx context.Context, s *game.Session) (*game.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < m.opts.maxAttempts; i++ {
		id := m.opts.nextID()
		if old, ok := m.sessions[id]; ok && m.live(old) {
			continue
		}
		rec := m.opts.stamp(s, id)
		m.sessions[id] = &entry{rec: rec}
		return rec.Clone(), nil
	}
	return nil, ErrGenerationExhausted
}

// live reports whether e is still reachable, marking it gone if expired.
func (m *memory) live(e *entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.gone && m.opts.expired(e.rec.CreatedAt) {
		e.gone = true
	}
	return !e.gone
}

func (m *memory) Get(ctx context.Context, id string) (*game.Session, error) {
	var out *game.Session
	err := m.with(id, func(e *entry) error {
		out = e.rec.Clone()
		return nil
	})
	return out, err
}

func (m *memory) Update(ctx context.Context, id string, fn Mutation) (*game.Session, error) {
	var out *game.Session
	err := m.with(id, func(e *entry) error {
		rec := e.rec.Clone()
		if err := fn(rec); err != nil {
			return err
		}
		rec.Version++
		e.rec = rec
		out = rec.Clone()
		return nil
	})
	return out, err
}

// with runs fn while holding the entry lock for id. Expired entries are
// marked gone and dropped from the map.
func (m *memory) with(id string, fn func(e *entry) error) error {
	id = NormalizeID(id)
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	if !e.gone && m.opts.expired(e.rec.CreatedAt) {
		e.gone = true
	}
	if e.gone {
		e.mu.Unlock()
		m.drop(id, e)
		return ErrNotFound
	}
	err := fn(e)
	e.mu.Unlock()
	return err
}

// drop removes e from the map if it is still the entry stored under id.
func (m *memory) drop(id string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] == e {
		delete(m.sessions, id)
	}
}

func (m *memory) Close() error { return nil }
