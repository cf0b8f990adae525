package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/numguess/internal/auth"
	"github.com/robalobadob/numguess/internal/game"
	"github.com/robalobadob/numguess/internal/match"
	"github.com/robalobadob/numguess/internal/store"
)

type player struct {
	SessionID string    `json:"sessionId"`
	Role      game.Role `json:"role"`
	Token     string    `json:"token"`
}

func newTestServer(t *testing.T, requireToken bool) *httptest.Server {
	return newTestServerWith(t, requireToken, store.DefaultTTL)
}

func newTestServerWith(t *testing.T, requireToken bool, ttl time.Duration, opts ...store.Option) *httptest.Server {
	t.Helper()
	opts = append([]store.Option{store.WithTTL(ttl)}, opts...)
	svc := match.New(store.NewMemoryStore(opts...), ttl)
	srv := New(svc, auth.NewIssuer("test-secret", ttl), Options{
		ClientOrigin:     "http://example.test",
		RequireRoleToken: requireToken,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	out := map[string]any{}
	if res.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	}
	return res.StatusCode, out
}

func enter(t *testing.T, ts *httptest.Server, path string, body any) player {
	t.Helper()
	code, out := do(t, ts, http.MethodPost, path, "", body)
	require.Equal(t, http.StatusOK, code, out)
	b, _ := json.Marshal(out)
	var p player
	require.NoError(t, json.Unmarshal(b, &p))
	return p
}

func startGame(t *testing.T, ts *httptest.Server) (player, player) {
	t.Helper()
	p1 := enter(t, ts, "/api/game/create", nil)
	p2 := enter(t, ts, "/api/game/join", map[string]string{"sessionId": p1.SessionID})

	code, _ := do(t, ts, http.MethodPost, "/api/game/submit-secret", p1.Token,
		map[string]any{"sessionId": p1.SessionID, "role": 1, "secret": "1234"})
	require.Equal(t, http.StatusOK, code)
	code, out := do(t, ts, http.MethodPost, "/api/game/submit-secret", p2.Token,
		map[string]any{"sessionId": p2.SessionID, "role": 2, "secret": "5678"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, string(game.PhaseInProgress), out["phase"])
	return p1, p2
}

func TestHealthAndIndex(t *testing.T) {
	ts := newTestServer(t, true)

	code, out := do(t, ts, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["ok"])

	code, out = do(t, ts, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "numguess-go", out["service"])

	code, out = do(t, ts, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", out["error"])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, true)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/game/create", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "http://example.test", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", res.Header.Get("Access-Control-Allow-Credentials"))
}

func TestFullGameOverHTTP(t *testing.T) {
	ts := newTestServer(t, true)
	p1, p2 := startGame(t, ts)
	assert.Equal(t, game.RoleFirst, p1.Role)
	assert.Equal(t, game.RoleSecond, p2.Role)

	code, out := do(t, ts, http.MethodPost, "/api/game/guess", p1.Token,
		map[string]any{"sessionId": p1.SessionID, "role": 1, "guess": "5679"})
	require.Equal(t, http.StatusOK, code, out)
	sg := out["scoredGuess"].(map[string]any)
	assert.EqualValues(t, 3, sg["exactDigitMatches"])
	assert.EqualValues(t, 3, sg["exactPlaceMatches"])
	assert.EqualValues(t, 2, out["turn"])

	code, _ = do(t, ts, http.MethodPost, "/api/game/guess", p2.Token,
		map[string]any{"sessionId": p2.SessionID, "role": 2, "guess": "4321"})
	require.Equal(t, http.StatusOK, code)

	code, out = do(t, ts, http.MethodPost, "/api/game/guess", p1.Token,
		map[string]any{"sessionId": p1.SessionID, "role": 1, "guess": "5678"})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, out["winner"])
	assert.Equal(t, string(game.PhaseFinished), out["phase"])

	code, out = do(t, ts, http.MethodGet, "/api/game/"+strings.ToLower(p2.SessionID)+"?role=2", p2.Token, nil)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "5678", out["secret"])
	assert.Equal(t, "1234", out["opponentSecret"])
	assert.EqualValues(t, 1, out["winner"])
	assert.Len(t, out["history"], 1)
}

func TestViewHidesOpponentSecretDuringPlay(t *testing.T) {
	ts := newTestServer(t, true)
	p1, _ := startGame(t, ts)

	code, out := do(t, ts, http.MethodGet, "/api/game/"+p1.SessionID+"?role=1", p1.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1234", out["secret"])
	assert.NotContains(t, out, "opponentSecret")
	assert.Empty(t, out["history"])
}

func TestSubmitNumberAlias(t *testing.T) {
	ts := newTestServer(t, false)
	p1 := enter(t, ts, "/api/game/create", nil)

	code, out := do(t, ts, http.MethodPost, "/api/game/submit-number", "",
		map[string]any{"sessionId": p1.SessionID, "role": 1, "number": "0912"})
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, true, out["accepted"])
}

func TestErrorStatusCodes(t *testing.T) {
	ts := newTestServer(t, true)
	p1, p2 := startGame(t, ts)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		kind   string
	}{
		{"unknown session on join", http.MethodPost, "/api/game/join", "", map[string]string{"sessionId": "ZZZZZZ"}, http.StatusNotFound, "not_found"},
		{"missing session id", http.MethodPost, "/api/game/join", "", map[string]string{}, http.StatusBadRequest, "missing_field"},
		{"third player", http.MethodPost, "/api/game/join", "", map[string]string{"sessionId": p1.SessionID}, http.StatusBadRequest, "game_full"},
		{"bad json", http.MethodPost, "/api/game/guess", p1.Token, "not an object", http.StatusBadRequest, "bad_json"},
		{"invalid role", http.MethodGet, "/api/game/" + p1.SessionID + "?role=3", p1.Token, nil, http.StatusBadRequest, "invalid_role"},
		{"invalid guess", http.MethodPost, "/api/game/guess", p1.Token, map[string]any{"sessionId": p1.SessionID, "role": 1, "guess": "12a4"}, http.StatusBadRequest, "invalid_guess"},
		{"not your turn", http.MethodPost, "/api/game/guess", p2.Token, map[string]any{"sessionId": p2.SessionID, "role": 2, "guess": "1234"}, http.StatusConflict, "not_your_turn"},
		{"secret twice", http.MethodPost, "/api/game/submit-secret", p1.Token, map[string]any{"sessionId": p1.SessionID, "role": 1, "secret": "9999"}, http.StatusConflict, "secret_already_set"},
		{"missing token", http.MethodGet, "/api/game/" + p1.SessionID + "?role=1", "", nil, http.StatusUnauthorized, "unauthorized"},
		{"garbage token", http.MethodGet, "/api/game/" + p1.SessionID + "?role=1", "garbage", nil, http.StatusUnauthorized, "unauthorized"},
		{"token for other role", http.MethodGet, "/api/game/" + p1.SessionID + "?role=2", p1.Token, nil, http.StatusForbidden, "forbidden"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, out := do(t, ts, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.status, code, out)
			assert.Equal(t, tc.kind, out["error"])
		})
	}
}

func TestGuessBeforeStart(t *testing.T) {
	ts := newTestServer(t, false)
	p1 := enter(t, ts, "/api/game/create", nil)

	code, out := do(t, ts, http.MethodPost, "/api/game/guess", "",
		map[string]any{"sessionId": p1.SessionID, "role": 1, "guess": "1234"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "not_your_turn", out["error"])
}

func TestTokensOptional(t *testing.T) {
	ts := newTestServer(t, false)
	p1 := enter(t, ts, "/api/game/create", nil)

	code, out := do(t, ts, http.MethodGet, "/api/game/"+p1.SessionID+"?role=1", "", nil)
	assert.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, string(game.PhaseWaitingForSecrets), out["phase"])
	assert.NotContains(t, out, "turn")
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTokensDoNotCarryOverToRecycledID(t *testing.T) {
	clock := &testClock{now: time.Now()}
	ts := newTestServerWith(t, true, time.Minute,
		store.WithClock(clock.Now),
		store.WithIDGenerator(func() string { return "SAME01" }),
		store.WithMaxAttempts(1))

	oldFirst := enter(t, ts, "/api/game/create", nil)
	oldSecond := enter(t, ts, "/api/game/join", map[string]string{"sessionId": oldFirst.SessionID})

	clock.Advance(time.Minute + time.Second)
	newFirst := enter(t, ts, "/api/game/create", nil)
	require.Equal(t, oldFirst.SessionID, newFirst.SessionID)

	code, out := do(t, ts, http.MethodPost, "/api/game/submit-secret", oldSecond.Token,
		map[string]any{"sessionId": newFirst.SessionID, "role": 2, "secret": "1234"})
	assert.Equal(t, http.StatusForbidden, code, out)
	assert.Equal(t, "forbidden", out["error"])

	code, out = do(t, ts, http.MethodGet, "/api/game/"+newFirst.SessionID+"?role=1", oldFirst.Token, nil)
	assert.Equal(t, http.StatusForbidden, code, out)

	code, out = do(t, ts, http.MethodPost, "/api/game/guess", oldFirst.Token,
		map[string]any{"sessionId": newFirst.SessionID, "role": 1, "guess": "1234"})
	assert.Equal(t, http.StatusForbidden, code, out)

	// The new game still has a free second slot and answers its own tokens.
	newSecond := enter(t, ts, "/api/game/join", map[string]string{"sessionId": newFirst.SessionID})
	assert.Equal(t, game.RoleSecond, newSecond.Role)

	code, out = do(t, ts, http.MethodGet, "/api/game/"+newFirst.SessionID+"?role=2", newSecond.Token, nil)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, false, out["players"].(map[string]any)["second"].(map[string]any)["ready"])
}

func TestTokenExpiryMatchesSession(t *testing.T) {
	ts := newTestServer(t, true)
	code, out := do(t, ts, http.MethodPost, "/api/game/create", "", nil)
	require.Equal(t, http.StatusOK, code)

	exp, err := time.Parse(time.RFC3339Nano, out["tokenExpiresAt"].(string))
	require.NoError(t, err)

	code, view := do(t, ts, http.MethodGet, "/api/game/"+out["sessionId"].(string)+"?role=1", out["token"].(string), nil)
	require.Equal(t, http.StatusOK, code)
	viewExp, err := time.Parse(time.RFC3339Nano, view["expiresAt"].(string))
	require.NoError(t, err)
	assert.True(t, exp.Equal(viewExp))
}
