package game

import "time"

// PlayerStatus is the public part of a slot.
type PlayerStatus struct {
	Joined bool `json:"joined"`
	Ready  bool `json:"ready"`
}

// View is what a polling client is allowed to see, scoped to its own role.
// The opponent's secret is only filled in once the game is finished, and the
// opponent's guess history is never included.
type View struct {
	SessionID      string         `json:"sessionId"`
	Role           Role           `json:"role"`
	Phase          Phase          `json:"phase"`
	Turn           Role           `json:"turn,omitempty"`
	Winner         Role           `json:"winner,omitempty"`
	Players        PlayerStatuses `json:"players"`
	Secret         string         `json:"secret,omitempty"`
	OpponentSecret string         `json:"opponentSecret,omitempty"`
	History        []ScoredGuess  `json:"history"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"createdAt"`
	ExpiresAt      time.Time      `json:"expiresAt"`
}

// PlayerStatuses lists both slots' public status.
type PlayerStatuses struct {
	First  PlayerStatus `json:"first"`
	Second PlayerStatus `json:"second"`
}

// View projects the record for role. ttl only feeds ExpiresAt.
func (s *Session) View(role Role, ttl time.Duration) (View, error) {
	own := s.Slot(role)
	if own == nil {
		return View{}, ErrInvalidRole
	}
	v := View{
		SessionID: s.ID,
		Role:      role,
		Phase:     s.Phase,
		Winner:    s.Winner,
		Players: PlayerStatuses{
			First:  PlayerStatus{Joined: s.First.Joined, Ready: s.First.Ready},
			Second: PlayerStatus{Joined: s.Second.Joined, Ready: s.Second.Ready},
		},
		Secret:    own.Secret,
		History:   append([]ScoredGuess{}, own.History...),
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.CreatedAt.Add(ttl),
	}
	if s.Phase != PhaseWaitingForSecrets {
		v.Turn = s.Turn
	}
	if s.Phase == PhaseFinished {
		v.OpponentSecret = s.Slot(role.Opponent()).Secret
	}
	return v, nil
}
