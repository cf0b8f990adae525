// internal/game/engine.go
//
// State transitions for a single session record.
// Responsibilities:
//   - Create a fresh record with the creator occupying the First slot.
//   - Occupy the Second slot (join), enforcing the two-slot cap.
//   - Accept each role's secret once; start play when both are ready.
//   - Validate, score and record guesses; flip or freeze the turn.
//
// Notes:
//   - Every method validates before mutating, so a returned error always
//     leaves the record unchanged.
//   - Persistence and atomicity are the store's job; these methods are pure
//     with respect to the record they are called on.
package game

import "github.com/pkg/errors"

// NewSession returns a record in PhaseWaitingForSecrets with the First slot
// occupied. The store assigns ID and CreatedAt.
func NewSession() *Session {
	return &Session{
		First:  Slot{Joined: true, History: []ScoredGuess{}},
		Second: Slot{History: []ScoredGuess{}},
		Phase:  PhaseWaitingForSecrets,
	}
}

// Slot returns the slot for role, or nil for an invalid role.
func (s *Session) Slot(role Role) *Slot {
	switch role {
	case RoleFirst:
		return &s.First
	case RoleSecond:
		return &s.Second
	}
	return nil
}

// Join occupies the Second slot.
func (s *Session) Join() (Role, error) {
	if s.Second.Joined {
		return RoleNone, ErrGameFull
	}
	s.Second.Joined = true
	return RoleSecond, nil
}

// SubmitSecret records role's secret and marks it ready. When both roles are
// ready the game starts with RoleFirst to move.
func (s *Session) SubmitSecret(role Role, secret string) error {
	slot := s.Slot(role)
	if slot == nil {
		return ErrInvalidRole
	}
	if !ValidDigits(secret) {
		return ErrInvalidSecret
	}
	if slot.Ready {
		return errors.Wrapf(ErrSecretAlreadySet, "role %s", role)
	}

	slot.Joined = true
	slot.Secret = secret
	slot.Ready = true

	if s.Phase == PhaseWaitingForSecrets && s.First.Ready && s.Second.Ready {
		s.advance(PhaseInProgress)
		s.Turn = RoleFirst
	}
	return nil
}

// ApplyGuess scores guess against the opponent's secret and appends it to
// role's history. A full place match finishes the game with role as winner
// and leaves Turn on role; otherwise the turn passes to the opponent.
func (s *Session) ApplyGuess(role Role, guess string) (ScoredGuess, error) {
	slot := s.Slot(role)
	if slot == nil {
		return ScoredGuess{}, ErrInvalidRole
	}
	if !ValidDigits(guess) {
		return ScoredGuess{}, ErrInvalidGuess
	}
	if s.Phase != PhaseInProgress || s.Turn != role {
		return ScoredGuess{}, ErrNotYourTurn
	}
	opp := s.Slot(role.Opponent())
	if opp.Secret == "" {
		return ScoredGuess{}, ErrOpponentSecretMissing
	}

	sg := Score(guess, opp.Secret)
	sg.Seq = len(slot.History) + 1
	slot.History = append(slot.History, sg)

	if sg.Won() {
		s.Winner = role
		s.advance(PhaseFinished)
	} else {
		s.Turn = role.Opponent()
	}
	return sg, nil
}

// advance moves the phase forward; it never moves backward.
func (s *Session) advance(p Phase) {
	if p.rank() > s.Phase.rank() {
		s.Phase = p
	}
}

// Clone returns a deep copy of the record.
func (s *Session) Clone() *Session {
	c := *s
	c.First.History = append([]ScoredGuess{}, s.First.History...)
	c.Second.History = append([]ScoredGuess{}, s.Second.History...)
	return &c
}
