// internal/match/service.go
//
// GameSession operations.
// Each operation is one atomic store update (or read) that runs the
// matching state transition from the game package:
//   - CreateGame:   allocate a session, caller becomes RoleFirst.
//   - JoinGame:     occupy RoleSecond.
//   - SubmitSecret: record a role's secret; start play when both are ready.
//   - Guess:        score a guess and advance the turn or finish the game.
//   - GetView:      role-scoped projection for polling clients.
//
// Errors are the typed sentinels of the game and store packages, passed
// through unchanged so the boundary can map them with errors.Is.
//
// A caller that knows which session instance it belongs to (for example from
// a role token) attaches it with WithInstance; operations then fail
// ErrSessionReplaced when the id now names a different, newer session.

package match

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/numguess/internal/game"
	"github.com/robalobadob/numguess/internal/store"
)

// ErrSessionReplaced is returned when the caller's session instance is no
// longer the one stored under the id.
var ErrSessionReplaced = errors.New("session id now belongs to another game")

type instanceKey struct{}

// WithInstance scopes ctx to the session created at createdAt.
func WithInstance(ctx context.Context, createdAt time.Time) context.Context {
	return context.WithValue(ctx, instanceKey{}, createdAt)
}

// checkInstance rejects g if ctx is scoped to another session instance.
func checkInstance(ctx context.Context, g *game.Session) error {
	want, ok := ctx.Value(instanceKey{}).(time.Time)
	if !ok {
		return nil
	}
	if want.UnixNano() != g.CreatedAt.UnixNano() {
		return ErrSessionReplaced
	}
	return nil
}

// Service runs game operations against a Store.
type Service struct {
	store store.Store
	ttl   time.Duration
}

// New returns a Service. ttl must match the store's TTL; it is only used to
// report expiry times in views.
func New(st store.Store, ttl time.Duration) *Service {
	return &Service{store: st, ttl: ttl}
}

// Joined is the result of CreateGame and JoinGame.
type Joined struct {
	SessionID string    `json:"sessionId"`
	Role      game.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// SecretResult is the result of SubmitSecret.
type SecretResult struct {
	Accepted bool       `json:"accepted"`
	Phase    game.Phase `json:"phase"`
}

// GuessResult is the result of Guess.
type GuessResult struct {
	ScoredGuess game.ScoredGuess `json:"scoredGuess"`
	Winner      game.Role        `json:"winner,omitempty"`
	Turn        game.Role        `json:"turn"`
	Phase       game.Phase       `json:"phase"`
}

// CreateGame allocates a new session and assigns the caller RoleFirst.
func (s *Service) CreateGame(ctx context.Context) (Joined, error) {
	sess, err := s.store.Create(ctx, game.NewSession())
	if err != nil {
		return Joined{}, err
	}
	log.Info().Str("session", sess.ID).Msg("session created")
	return Joined{SessionID: sess.ID, Role: game.RoleFirst, CreatedAt: sess.CreatedAt}, nil
}

// JoinGame occupies the second slot of sessionID.
func (s *Service) JoinGame(ctx context.Context, sessionID string) (Joined, error) {
	var role game.Role
	sess, err := s.store.Update(ctx, sessionID, func(g *game.Session) error {
		if err := checkInstance(ctx, g); err != nil {
			return err
		}
		r, err := g.Join()
		role = r
		return err
	})
	if err != nil {
		return Joined{}, err
	}
	log.Info().Str("session", sess.ID).Stringer("role", role).Msg("player joined")
	return Joined{SessionID: sess.ID, Role: role, CreatedAt: sess.CreatedAt}, nil
}

// SubmitSecret records role's secret.
func (s *Service) SubmitSecret(ctx context.Context, sessionID string, role game.Role, secret string) (SecretResult, error) {
	if !role.Valid() {
		return SecretResult{}, game.ErrInvalidRole
	}
	var started bool
	sess, err := s.store.Update(ctx, sessionID, func(g *game.Session) error {
		if err := checkInstance(ctx, g); err != nil {
			return err
		}
		before := g.Phase
		if err := g.SubmitSecret(role, secret); err != nil {
			return err
		}
		started = before != g.Phase
		return nil
	})
	if err != nil {
		return SecretResult{}, err
	}
	log.Debug().Str("session", sess.ID).Stringer("role", role).Msg("secret submitted")
	if started {
		log.Info().Str("session", sess.ID).Msg("game started")
	}
	return SecretResult{Accepted: true, Phase: sess.Phase}, nil
}

// Guess scores guess for role against the opponent's secret.
func (s *Service) Guess(ctx context.Context, sessionID string, role game.Role, guess string) (GuessResult, error) {
	if !role.Valid() {
		return GuessResult{}, game.ErrInvalidRole
	}
	var scored game.ScoredGuess
	sess, err := s.store.Update(ctx, sessionID, func(g *game.Session) error {
		if err := checkInstance(ctx, g); err != nil {
			return err
		}
		sg, err := g.ApplyGuess(role, guess)
		scored = sg
		return err
	})
	if err != nil {
		return GuessResult{}, err
	}
	if sess.Winner != game.RoleNone {
		log.Info().Str("session", sess.ID).Stringer("winner", sess.Winner).
			Int("guesses", scored.Seq).Msg("game won")
	}
	return GuessResult{
		ScoredGuess: scored,
		Winner:      sess.Winner,
		Turn:        sess.Turn,
		Phase:       sess.Phase,
	}, nil
}

// GetView returns the role-scoped projection of sessionID.
func (s *Service) GetView(ctx context.Context, sessionID string, role game.Role) (game.View, error) {
	if !role.Valid() {
		return game.View{}, game.ErrInvalidRole
	}
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return game.View{}, err
	}
	if err := checkInstance(ctx, sess); err != nil {
		return game.View{}, err
	}
	v, err := sess.View(role, s.ttl)
	if err != nil {
		return game.View{}, errors.Wrap(err, "project view")
	}
	return v, nil
}
