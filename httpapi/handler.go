package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/estateauth"
	"github.com/MrEthical07/estateauth/middleware"
	"github.com/gorilla/mux"
)

// RefreshTokenCookie carries the refresh token when cookies are enabled.
const RefreshTokenCookie = "refresh_token"

const maxBodyBytes = 1 << 16

// Engine is the subset of *estateauth.Engine the handlers use.
type Engine interface {
	middleware.Authenticator
	middleware.Admitter
	Login(ctx context.Context, identifier, password string) (*estateauth.SessionTokens, error)
	RefreshSession(ctx context.Context, refreshToken string) (*estateauth.SessionTokens, error)
	EndSessionByToken(ctx context.Context, token string) (*estateauth.EndSessionResult, error)
}

// Options tune the handlers.
type Options struct {
	// LoginRetryAfter is reported on a throttled login. It is normally the
	// engine's LoginCooldownDuration.
	LoginRetryAfter time.Duration
	// SetCookies also returns tokens as HttpOnly cookies.
	SetCookies    bool
	SecureCookies bool
	// RefreshTTL bounds the refresh cookie lifetime.
	RefreshTTL        time.Duration
	TrustForwardedFor bool
	Logger            *slog.Logger
}

// Handler holds the endpoints.
type Handler struct {
	engine Engine
	opts   Options
	logger *slog.Logger
}

// New returns a Handler.
func New(engine Engine, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{engine: engine, opts: opts, logger: logger}
}

// Register mounts the endpoints on r. Every route is rate limited by client
// IP; /auth/me is also guarded.
func (h *Handler) Register(r *mux.Router) {
	byIP := middleware.ByClientIP(h.opts.TrustForwardedFor)
	authLimit := middleware.RateLimit(h.engine, estateauth.RouteAuth, byIP)
	userLimit := middleware.RateLimit(h.engine, estateauth.RouteAuthenticated, byIP)
	withIP := middleware.ClientIPContext(h.opts.TrustForwardedFor)

	s := r.PathPrefix("/auth").Subrouter()
	s.Handle("/login", authLimit(withIP(http.HandlerFunc(h.Login)))).Methods(http.MethodPost)
	s.Handle("/refresh", authLimit(withIP(http.HandlerFunc(h.Refresh)))).Methods(http.MethodPost)
	s.Handle("/logout", authLimit(withIP(http.HandlerFunc(h.Logout)))).Methods(http.MethodPost)
	s.Handle("/me", userLimit(withIP(middleware.WithAuth(h.engine, http.HandlerFunc(h.Me), estateauth.Requirement{
		RequireAuth: true,
	})))).Methods(http.MethodGet)
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	Success      bool   `json:"success"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type okResponse struct {
	Success bool `json:"success"`
}

type meUser struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type meResponse struct {
	Success bool   `json:"success"`
	User    meUser `json:"user"`
}

// Login exchanges credentials for a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, estateauth.ErrMissingInput)
		return
	}

	tokens, err := h.engine.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.fail(w, r, "login", err, h.opts.LoginRetryAfter)
		return
	}
	h.writeTokens(w, tokens)
}

// Refresh rotates the presented refresh token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, estateauth.ErrMissingInput)
		return
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(RefreshTokenCookie); err == nil {
			req.RefreshToken = c.Value
		}
	}

	tokens, err := h.engine.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, estateauth.ErrUnauthenticated) && h.opts.SetCookies {
			h.clearCookies(w)
		}
		h.fail(w, r, "refresh", err, 0)
		return
	}
	h.writeTokens(w, tokens)
}

// Logout ends the session of the presented token. Candidates are tried in
// order: body, bearer header or access cookie, refresh cookie. A candidate
// that does not verify, such as an expired access token, falls through to
// the next one. Raw family ids are not accepted here.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, estateauth.ErrMissingInput)
		return
	}

	candidates := make([]string, 0, 3)
	if req.Token != "" {
		candidates = append(candidates, req.Token)
	}
	if token, ok := middleware.TokenFromRequest(r); ok && token != "" {
		candidates = append(candidates, token)
	}
	if c, err := r.Cookie(RefreshTokenCookie); err == nil && c.Value != "" {
		candidates = append(candidates, c.Value)
	}
	if len(candidates) == 0 {
		middleware.WriteError(w, estateauth.ErrMissingInput)
		return
	}

	var lastErr error
	for _, token := range candidates {
		_, err := h.engine.EndSessionByToken(r.Context(), token)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if !errors.Is(err, estateauth.ErrUnauthenticated) {
			break
		}
	}
	if lastErr != nil {
		h.fail(w, r, "logout", lastErr, 0)
		return
	}
	if h.opts.SetCookies {
		h.clearCookies(w)
	}
	middleware.WriteJSON(w, http.StatusOK, okResponse{Success: true})
}

// Me describes the authenticated caller.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok || id.Anonymous() {
		middleware.WriteError(w, estateauth.ErrUnauthenticated)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, meResponse{
		Success: true,
		User: meUser{
			ID:          id.Subject,
			Role:        id.Role.String(),
			Permissions: id.Permissions.Strings(),
		},
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error, retryAfter time.Duration) {
	status := middleware.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WarnContext(r.Context(), "auth request failed", "op", op, "status", status, "error", err)
	}
	if status == http.StatusTooManyRequests {
		middleware.WriteRateLimited(w, retryAfter)
		return
	}
	middleware.WriteError(w, err)
}

func (h *Handler) writeTokens(w http.ResponseWriter, t *estateauth.SessionTokens) {
	if h.opts.SetCookies {
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.AccessTokenCookie,
			Value:    t.AccessToken,
			Path:     "/",
			MaxAge:   int(t.ExpiresIn / time.Second),
			HttpOnly: true,
			Secure:   h.opts.SecureCookies,
			SameSite: http.SameSiteStrictMode,
		})
		http.SetCookie(w, &http.Cookie{
			Name:     RefreshTokenCookie,
			Value:    t.RefreshToken,
			Path:     "/auth",
			MaxAge:   int(h.opts.RefreshTTL / time.Second),
			HttpOnly: true,
			Secure:   h.opts.SecureCookies,
			SameSite: http.SameSiteStrictMode,
		})
	}
	middleware.WriteJSON(w, http.StatusOK, tokenResponse{
		Success:      true,
		Token:        t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    int64(t.ExpiresIn / time.Second),
	})
}

func (h *Handler) clearCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{middleware.AccessTokenCookie, "/"},
		{RefreshTokenCookie, "/auth"},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.opts.SecureCookies,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// decode reads a JSON body into v. An empty body leaves v zero.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
