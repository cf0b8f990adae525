// internal/httpserver/server.go
//
// HTTP server wiring for the number-guessing backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs,
//     access logging).
//   - Public endpoints: "/", "/health".
//   - Game endpoints under /api/game: create, join, submit-secret, guess,
//     and the per-role session view polled by clients.
//   - Role token issue (create/join) and verification (everything else).
//   - Mapping core error kinds to status codes.
//
// Notes:
//   - Session ids are normalized (trimmed, upper-cased) here before reaching
//     the core.
//   - Roles on the wire are the integer player ids 1 and 2.
//   - A role token names one session instance; requests carrying it are
//     rejected with 403 once its id has been recycled for a new game.

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/numguess/internal/auth"
	"github.com/robalobadob/numguess/internal/game"
	"github.com/robalobadob/numguess/internal/match"
	"github.com/robalobadob/numguess/internal/store"
)

// Options tunes the HTTP layer.
type Options struct {
	ClientOrigin     string
	RequireRoleToken bool
	RequestTimeout   time.Duration
}

// Server bundles router, game service and token issuer.
type Server struct {
	r            *chi.Mux
	svc          *match.Service
	tokens       *auth.Issuer
	requireToken bool
}

// New constructs a Server, installs middleware, and registers routes.
func New(svc *match.Service, tokens *auth.Issuer, opts Options) *Server {
	s := &Server{r: chi.NewRouter(), svc: svc, tokens: tokens, requireToken: opts.RequireRoleToken}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.ClientOrigin == "" {
		opts.ClientOrigin = "http://localhost:3000"
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                    // add X-Request-ID
	s.r.Use(chimw.RealIP)                       // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(hlog.NewHandler(log.Logger))        // request-scoped logger
	s.r.Use(hlog.AccessHandler(accessLog))      // one line per request
	s.r.Use(chimw.Recoverer)                    // recover from panics
	s.r.Use(chimw.Timeout(opts.RequestTimeout)) // bound handler time
	s.r.Use(jsonContentType)                    // default JSON responses
	s.r.Use(cors(opts.ClientOrigin))            // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "numguess-go",
			"endpoints": []string{
				"/health",
				"POST /api/game/create",
				"POST /api/game/join",
				"POST /api/game/submit-secret",
				"POST /api/game/guess",
				"GET /api/game/{sessionId}?role=",
			},
		})
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	s.r.Route("/api/game", func(r chi.Router) {
		r.Post("/create", s.handleCreate)
		r.Post("/join", s.handleJoin)
		r.Post("/submit-secret", s.handleSubmitSecret)
		r.Post("/submit-number", s.handleSubmitSecret)
		r.Post("/guess", s.handleGuess)
		r.Get("/{sessionId}", s.handleView)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
	})

	return s
}

// Handler exposes the router as an http.Handler.
func (s *Server) Handler() http.Handler { return s.r }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ------------------------------ GAME ---------------------------------------

// joinRes is returned by create and join.
type joinRes struct {
	SessionID      string    `json:"sessionId"`
	Role           game.Role `json:"role"`
	Token          string    `json:"token"`
	TokenExpiresAt time.Time `json:"tokenExpiresAt"`
}

// handleCreate allocates a session; the caller plays first.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	joined, err := s.svc.CreateGame(r.Context())
	if err != nil {
		mapError(w, r, err)
		return
	}
	s.writeJoined(w, r, joined)
}

type joinReq struct {
	SessionID string `json:"sessionId"`
}

// handleJoin takes the second slot of an existing session.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinReq
	if !decode(w, r, &req) {
		return
	}
	id := store.NormalizeID(req.SessionID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "sessionId is required")
		return
	}
	joined, err := s.svc.JoinGame(r.Context(), id)
	if err != nil {
		mapError(w, r, err)
		return
	}
	s.writeJoined(w, r, joined)
}

func (s *Server) writeJoined(w http.ResponseWriter, r *http.Request, j match.Joined) {
	tok, exp, err := s.tokens.Sign(j.SessionID, j.Role, j.CreatedAt)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, joinRes{SessionID: j.SessionID, Role: j.Role, Token: tok, TokenExpiresAt: exp})
}

// submitSecretReq also accepts the legacy "number" field.
type submitSecretReq struct {
	SessionID string    `json:"sessionId"`
	Role      game.Role `json:"role"`
	Secret    string    `json:"secret"`
	Number    string    `json:"number"`
}

// handleSubmitSecret records the caller's secret.
func (s *Server) handleSubmitSecret(w http.ResponseWriter, r *http.Request) {
	var req submitSecretReq
	if !decode(w, r, &req) {
		return
	}
	if req.Secret == "" {
		req.Secret = req.Number
	}
	id := store.NormalizeID(req.SessionID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "sessionId is required")
		return
	}
	ctx, ok := s.authorize(w, r, id, req.Role)
	if !ok {
		return
	}
	res, err := s.svc.SubmitSecret(ctx, id, req.Role, req.Secret)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type guessReq struct {
	SessionID string    `json:"sessionId"`
	Role      game.Role `json:"role"`
	Guess     string    `json:"guess"`
}

// handleGuess scores a guess for the caller.
func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if !decode(w, r, &req) {
		return
	}
	id := store.NormalizeID(req.SessionID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "sessionId is required")
		return
	}
	ctx, ok := s.authorize(w, r, id, req.Role)
	if !ok {
		return
	}
	res, err := s.svc.Guess(ctx, id, req.Role, req.Guess)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleView returns the caller's projection of the session.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	id := store.NormalizeID(chi.URLParam(r, "sessionId"))
	role, err := game.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		mapError(w, r, err)
		return
	}
	ctx, ok := s.authorize(w, r, id, role)
	if !ok {
		return
	}
	v, err := s.svc.GetView(ctx, id, role)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// authorize enforces the role token when required and returns the request
// context scoped to the token's session instance. It writes the error
// response and returns false on failure.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, sessionID string, role game.Role) (context.Context, bool) {
	if !role.Valid() {
		mapError(w, r, game.ErrInvalidRole)
		return nil, false
	}
	if !s.requireToken {
		return r.Context(), true
	}
	claims, err := s.tokens.Authorize(r, sessionID, role)
	if err != nil {
		mapError(w, r, err)
		return nil, false
	}
	return match.WithInstance(r.Context(), claims.SessionCreatedAt()), true
}

// ------------------------------ JSON ---------------------------------------

type errorRes struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "request body must be a JSON object")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorRes{Error: kind, Message: msg})
}

// mapError translates core error kinds into status codes.
func mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Game not found")
	case errors.Is(err, game.ErrGameFull):
		writeError(w, http.StatusBadRequest, "game_full", "Game is full")
	case errors.Is(err, game.ErrInvalidSecret):
		writeError(w, http.StatusBadRequest, "invalid_secret", err.Error())
	case errors.Is(err, game.ErrInvalidGuess):
		writeError(w, http.StatusBadRequest, "invalid_guess", err.Error())
	case errors.Is(err, game.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "invalid_role", "role must be 1 or 2")
	case errors.Is(err, game.ErrNotYourTurn):
		writeError(w, http.StatusConflict, "not_your_turn", err.Error())
	case errors.Is(err, game.ErrSecretAlreadySet):
		writeError(w, http.StatusConflict, "secret_already_set", err.Error())
	case errors.Is(err, game.ErrOpponentSecretMissing):
		writeError(w, http.StatusConflict, "opponent_secret_missing", err.Error())
	case errors.Is(err, store.ErrGenerationExhausted):
		writeError(w, http.StatusServiceUnavailable, "generation_exhausted", "no free session id, try again")
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, auth.ErrTokenMismatch), errors.Is(err, match.ErrSessionReplaced):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
