package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/estateauth"
	"github.com/MrEthical07/estateauth/internal/serverconfig"
	"github.com/MrEthical07/estateauth/permission"
	"github.com/MrEthical07/estateauth/userstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	handler http.Handler
	store   *userstore.Store
	engine  *estateauth.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, userstore.Migrate(ctx, db, userstore.DialectSQLite))
	store, err := userstore.New(db, userstore.DialectSQLite)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg, err := serverconfig.LoadWithEnv("", map[string]string{
		"ESTATEAUTH_AUTH_JWT_SECRET": "0123456789abcdef0123456789abcdef",
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := buildEngine(cfg, rdb, store, logger)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &harness{handler: newRouter(engine, cfg, logger), store: store, engine: engine}
}

func (h *harness) addUser(t *testing.T, identifier, plaintext string, role permission.Role) estateauth.UserRecord {
	t.Helper()
	hash, err := h.engine.HashPassword(plaintext)
	require.NoError(t, err)
	u, err := h.store.CreateUser(context.Background(), userstore.NewUser{
		Identifier:   identifier,
		PasswordHash: hash,
		Role:         role,
		Verified:     true,
	})
	require.NoError(t, err)
	return u
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.44:1000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T, identifier, plaintext string) map[string]any {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/auth/login", "", map[string]string{"identifier": identifier, "password": plaintext})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRouterEndToEnd(t *testing.T) {
	h := newHarness(t)
	seller := h.addUser(t, "seller@example.com", "seller-pass", permission.RoleSeller)
	h.addUser(t, "admin@example.com", "admin-pass", permission.RoleAdmin)
	h.addUser(t, "buyer@example.com", "buyer-pass", permission.RoleBuyer)

	s := h.login(t, "seller@example.com", "seller-pass")
	sellerToken := s["token"].(string)

	rec := h.do(t, http.MethodGet, "/listings/mine", sellerToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	b := h.login(t, "buyer@example.com", "buyer-pass")
	rec = h.do(t, http.MethodGet, "/listings/mine", b["token"].(string), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/listings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"anonymous":true`)

	adminToken := h.login(t, "admin@example.com", "admin-pass")["token"].(string)

	rec = h.do(t, http.MethodDelete, "/admin/users/"+seller.ID+"/sessions", sellerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodDelete, "/admin/users/"+seller.ID+"/sessions", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"revoked":1`)

	rec = h.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": s["refreshToken"].(string)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/admin/families/00000000-0000-0000-0000-000000000000", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h.do(t, http.MethodPost, "/auth/login", "", map[string]string{"identifier": "nobody@example.com", "password": "x"})

	rec = h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "estateauth_login_failure_total 1"), rec.Body.String())
}

func TestRecoveryWritesInternalError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := requestID(recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestSigningSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := serverconfig.Default()
	secret, err := signingSecret(cfg, logger)
	require.NoError(t, err)
	assert.Len(t, secret, 32)

	cfg.Environment = "production"
	_, err = signingSecret(cfg, logger)
	assert.ErrorIs(t, err, serverconfig.ErrMissingSecret)

	cfg.Auth.JWTSecret = "configured-secret-configured-secret"
	secret, err = signingSecret(cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, []byte("configured-secret-configured-secret"), secret)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTelemetryExportsEngineMetrics(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/auth/login", "", map[string]string{"identifier": "nobody@example.com", "password": "x"})

	var out lockedBuffer
	tel, err := startTelemetry(h.engine, serverconfig.OTelConfig{Enabled: true, Interval: time.Hour}, &out)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tel.Flush(ctx))
	require.NoError(t, tel.Shutdown(ctx))

	body := out.String()
	assert.Contains(t, body, "estateauth_login_failure_total")
	assert.Contains(t, body, "estateauth_authenticate_latency_seconds_bucket")
	assert.Contains(t, body, meterName)
}
