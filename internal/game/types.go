// internal/game/types.go
//
// Core type definitions for the two-player secret number game.
// Defines:
//   - Role:        one of the two fixed player slots (First / Second).
//   - Phase:       session lifecycle (waiting_for_secrets → in_progress → finished).
//   - ScoredGuess: an immutable scored guess appended to a role's history.
//   - Slot:        per-role state (occupancy, readiness, secret, history).
//   - Session:     the authoritative record for one game.

package game

import (
	"time"

	"github.com/pkg/errors"
)

// DigitCount is the length of every secret and guess.
const DigitCount = 4

// Role identifies a player slot. On the wire it is the integer player id.
type Role int

const (
	RoleNone   Role = 0
	RoleFirst  Role = 1
	RoleSecond Role = 2
)

// Valid reports whether r names one of the two player slots.
func (r Role) Valid() bool { return r == RoleFirst || r == RoleSecond }

// Opponent returns the other role. RoleNone maps to RoleNone.
func (r Role) Opponent() Role {
	switch r {
	case RoleFirst:
		return RoleSecond
	case RoleSecond:
		return RoleFirst
	}
	return RoleNone
}

func (r Role) String() string {
	switch r {
	case RoleFirst:
		return "first"
	case RoleSecond:
		return "second"
	}
	return "none"
}

// ParseRole accepts "1"/"2" or "first"/"second".
func ParseRole(s string) (Role, error) {
	switch s {
	case "1", "first":
		return RoleFirst, nil
	case "2", "second":
		return RoleSecond, nil
	}
	return RoleNone, errors.Wrapf(ErrInvalidRole, "role %q", s)
}

// Phase is the coarse lifecycle of a session. It only ever moves forward.
type Phase string

const (
	PhaseWaitingForSecrets Phase = "waiting_for_secrets"
	PhaseInProgress        Phase = "in_progress"
	PhaseFinished          Phase = "finished"
)

// rank orders phases so transitions can be checked for monotonicity.
func (p Phase) rank() int {
	switch p {
	case PhaseWaitingForSecrets:
		return 0
	case PhaseInProgress:
		return 1
	case PhaseFinished:
		return 2
	}
	return -1
}

// ScoredGuess is one recorded guess and its score.
type ScoredGuess struct {
	Seq               int    `json:"seq"`
	Guess             string `json:"guess"`
	ExactDigitMatches int    `json:"exactDigitMatches"`
	ExactPlaceMatches int    `json:"exactPlaceMatches"`
}

// Slot holds the state of one role.
type Slot struct {
	Joined  bool          `json:"joined"`
	Ready   bool          `json:"ready"`
	Secret  string        `json:"secret,omitempty"`
	History []ScoredGuess `json:"history"`
}

// Session is the stored record of one game.
//
// Turn is RoleNone while waiting for secrets; it is set when play starts and
// frozen at the winner once the game is finished.
type Session struct {
	ID        string    `json:"id"`
	First     Slot      `json:"first"`
	Second    Slot      `json:"second"`
	Phase     Phase     `json:"phase"`
	Turn      Role      `json:"turn"`
	Winner    Role      `json:"winner"`
	CreatedAt time.Time `json:"createdAt"`
	Version   int64     `json:"version"`
}

// Errors returned by the state transitions.
var (
	ErrGameFull              = errors.New("game is full")
	ErrInvalidSecret         = errors.New("secret must be exactly 4 digits")
	ErrInvalidGuess          = errors.New("guess must be exactly 4 digits")
	ErrNotYourTurn           = errors.New("not your turn")
	ErrOpponentSecretMissing = errors.New("opponent secret missing")
	ErrSecretAlreadySet      = errors.New("secret already submitted")
	ErrInvalidRole           = errors.New("invalid role")
)
