package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/estateauth"
	"github.com/MrEthical07/estateauth/httpapi"
	"github.com/MrEthical07/estateauth/internal/serverconfig"
	"github.com/MrEthical07/estateauth/metrics/export/prometheus"
	"github.com/MrEthical07/estateauth/middleware"
	"github.com/MrEthical07/estateauth/password"
	"github.com/MrEthical07/estateauth/permission"
	"github.com/gorilla/mux"
)

type ctxKey int

const ctxKeyRequestID ctxKey = iota

func newHasher(cfg estateauth.PasswordConfig) (*password.Argon2, error) {
	return password.NewArgon2(password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
}

func newRouter(engine *estateauth.Engine, cfg serverconfig.Config, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(requestID, recovery(logger), requestLog(logger))

	engineCfg := engine.Config()
	httpapi.New(engine, httpapi.Options{
		LoginRetryAfter:   engineCfg.RateLimit.LoginCooldownDuration,
		SetCookies:        true,
		SecureCookies:     cfg.HTTP.SecureCookies,
		RefreshTTL:        engineCfg.JWT.RefreshTTL,
		TrustForwardedFor: cfg.HTTP.TrustForwardedFor,
		Logger:            logger,
	}).Register(r)

	byIP := middleware.ByClientIP(cfg.HTTP.TrustForwardedFor)
	withIP := middleware.ClientIPContext(cfg.HTTP.TrustForwardedFor)
	publicLimit := middleware.RateLimit(engine, estateauth.RoutePublic, byIP)
	userLimit := middleware.RateLimit(engine, estateauth.RouteAuthenticated, byIP)
	adminLimit := middleware.RateLimit(engine, estateauth.RouteAdmin, byIP)

	r.Handle("/healthz", publicLimit(health(engine))).Methods(http.MethodGet)

	// Listing routes are owned by the listings service; these only prove the
	// guard wiring end to end.
	r.Handle("/listings", publicLimit(withIP(middleware.WithAuth(engine, whoami(), estateauth.Requirement{})))).
		Methods(http.MethodGet)
	r.Handle("/listings/mine", userLimit(withIP(middleware.WithAuth(engine, whoami(), estateauth.Requirement{
		RequireAuth:         true,
		AllowedRoles:        permission.RolesOf(permission.RoleSeller, permission.RoleAgent),
		RequiredPermissions: permission.Of(permission.ListingWrite),
	})))).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Handle("/families/{id}", adminLimit(withIP(middleware.WithAdmin(engine, familyInfo(engine))))).
		Methods(http.MethodGet)
	admin.Handle("/users/{id}/sessions", adminLimit(withIP(middleware.WithAdmin(engine, endAllSessions(engine))))).
		Methods(http.MethodDelete)

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, prometheus.NewExporter(engine).Handler()).Methods(http.MethodGet)
	}
	return r
}

func health(engine *estateauth.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := engine.Ping(ctx); err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
	})
}

func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := middleware.IdentityFromContext(r.Context())
		body := map[string]any{"success": true, "anonymous": id.Anonymous()}
		if !id.Anonymous() {
			body["userId"] = id.Subject
			body["role"] = id.Role.String()
		}
		middleware.WriteJSON(w, http.StatusOK, body)
	})
}

func familyInfo(engine *estateauth.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := engine.FamilyInfo(r.Context(), mux.Vars(r)["id"])
		if errors.Is(err, estateauth.ErrFamilyNotFound) {
			middleware.WriteJSON(w, http.StatusNotFound, middleware.Failure{Error: "not_found"})
			return
		}
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"id":        info.ID,
			"userId":    info.Subject,
			"rotations": info.Rotations,
			"revoked":   info.Revoked,
			"createdAt": info.CreatedAt,
			"expiresAt": info.ExpiresAt,
		})
	})
}

func endAllSessions(engine *estateauth.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := engine.EndAllSessions(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "revoked": n})
	})
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			var b [8]byte
			_, _ = rand.Read(b[:])
			id = hex.EncodeToString(b[:])
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

func recovery(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered in HTTP handler",
						"error", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", r.Context().Value(ctxKeyRequestID),
					)
					middleware.WriteJSON(w, http.StatusInternalServerError, middleware.Failure{Error: middleware.CodeInternal})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func requestLog(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", r.Context().Value(ctxKeyRequestID),
			)
		})
	}
}
