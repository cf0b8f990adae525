// internal/auth/token.go
//
// Per-session role tokens.
// A token binds a bearer to one role in one session instance: it carries the
// session id (sid), the session's creation time (sct, unix nanoseconds), the
// role, and a random token id (jti). It expires when the session does, so a
// recycled session id never honors tokens issued for its previous occupant.
// Tokens are HS256 JWTs signed with a server secret.

package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/robalobadob/numguess/internal/game"
)

var (
	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("missing role token")
	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid role token")
	// ErrTokenMismatch is returned when a valid token names another session or role.
	ErrTokenMismatch = errors.New("role token does not match request")
)

// Claims are the role token claims.
type Claims struct {
	SessionID string    `json:"sid"`
	Instance  int64     `json:"sct"`
	Role      game.Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionCreatedAt returns the creation time of the session instance the
// token was issued for.
func (c *Claims) SessionCreatedAt() time.Time { return time.Unix(0, c.Instance).UTC() }

// Issuer signs and verifies role tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer. ttl is the session TTL; tokens expire ttl
// after the session was created.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign issues a token for role in the session instance identified by
// sessionID and createdAt.
func (i *Issuer) Sign(sessionID string, role game.Role, createdAt time.Time) (string, time.Time, error) {
	now := i.now()
	exp := createdAt.Add(i.ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SessionID: sessionID,
		Instance:  createdAt.UnixNano(),
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	ss, err := t.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign role token")
	}
	return ss, exp, nil
}

// Parse validates a token and returns its claims.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !t.Valid {
		return nil, errors.Wrapf(ErrInvalidToken, "%v", err)
	}
	if claims.SessionID == "" || claims.Instance == 0 || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authorize checks that the request's bearer token grants role in sessionID
// and returns its claims. The caller still has to match the claimed session
// instance against the stored record.
func (i *Issuer) Authorize(r *http.Request, sessionID string, role game.Role) (*Claims, error) {
	tok := BearerToken(r)
	if tok == "" {
		return nil, ErrMissingToken
	}
	c, err := i.Parse(tok)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(c.SessionID, sessionID) || c.Role != role {
		return nil, ErrTokenMismatch
	}
	return c, nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return ""
}
