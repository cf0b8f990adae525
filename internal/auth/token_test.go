package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/numguess/internal/game"
)

func requestWith(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestSignAndParse(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	created := time.Now().UTC()
	tok, exp, err := iss.Sign("ABC123", game.RoleSecond, created)
	require.NoError(t, err)
	assert.True(t, created.Add(time.Hour).Equal(exp))

	c, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", c.SessionID)
	assert.Equal(t, game.RoleSecond, c.Role)
	assert.True(t, created.Equal(c.SessionCreatedAt()))
	assert.NotEmpty(t, c.ID)
}

func TestExpiryFollowsSessionCreation(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)

	// Issued late in the session's life: only the remainder is granted.
	created := time.Now().Add(-50 * time.Minute)
	tok, exp, err := iss.Sign("ABC123", game.RoleFirst, created)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), exp, 5*time.Second)
	_, err = iss.Parse(tok)
	require.NoError(t, err)

	// Issued for a session that has already expired.
	tok, _, err = iss.Sign("ABC123", game.RoleFirst, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIDsAreUnique(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	a, _, err := iss.Sign("ABC123", game.RoleFirst, time.Now())
	require.NoError(t, err)
	b, _, err := iss.Sign("ABC123", game.RoleFirst, time.Now())
	require.NoError(t, err)

	ca, err := iss.Parse(a)
	require.NoError(t, err)
	cb, err := iss.Parse(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestParseRejectsForgedAndExpired(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	other := NewIssuer("other-secret", time.Hour)
	tok, _, err := other.Sign("ABC123", game.RoleFirst, time.Now())
	require.NoError(t, err)
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	tok, _, err = iss.Sign("ABC123", game.RoleFirst, time.Now())
	require.NoError(t, err)
	iss.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsNoneAlgorithm(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{SessionID: "ABC123", Instance: 1, Role: game.RoleFirst})
	tok, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthorize(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	tok, _, err := iss.Sign("ABC123", game.RoleFirst, time.Now())
	require.NoError(t, err)

	c, err := iss.Authorize(requestWith(tok), "ABC123", game.RoleFirst)
	require.NoError(t, err)
	assert.Equal(t, game.RoleFirst, c.Role)
	_, err = iss.Authorize(requestWith(tok), "abc123", game.RoleFirst)
	assert.NoError(t, err)
	_, err = iss.Authorize(requestWith(tok), "ABC123", game.RoleSecond)
	assert.ErrorIs(t, err, ErrTokenMismatch)
	_, err = iss.Authorize(requestWith(tok), "XYZ999", game.RoleFirst)
	assert.ErrorIs(t, err, ErrTokenMismatch)
	_, err = iss.Authorize(requestWith(""), "ABC123", game.RoleFirst)
	assert.ErrorIs(t, err, ErrMissingToken)
}
