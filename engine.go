package estateauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/estateauth/internal/flows"
	"github.com/MrEthical07/estateauth/internal/rate"
	"github.com/MrEthical07/estateauth/jwt"
	"github.com/MrEthical07/estateauth/password"
	"github.com/MrEthical07/estateauth/session"
	"github.com/google/uuid"
)

// Engine is the authentication core. It is safe for concurrent use once
// built.
type Engine struct {
	config       Config
	now          func() time.Time
	logger       *slog.Logger
	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	policies     map[RouteClass]rate.Policy
	audit        *auditDispatcher
	metrics      *Metrics
	passwords    *password.Verifier
	jwtManager   *jwt.Manager
	userProvider UserProvider
	flowDeps     flows.Deps
}

// Close flushes pending audit events. It does not close the Redis client.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the Engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks that the shared state store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if err := e.sessionStore.Ping(ctx); err != nil {
		return errors.Join(ErrUpstreamUnavailable, err)
	}
	return nil
}

// Config returns a copy of the Engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, args ...any) {
	e.logger.Warn(msg, args...)
}

// auditDropped logs the first drop and every power of two after it.
func (e *Engine) auditDropped(total uint64) {
	if total&(total-1) == 0 {
		e.logger.Warn("estateauth: audit buffer full, events dropped", "dropped_total", total)
	}
}

// HashPassword returns an argon2id hash for storage by the user store.
func (e *Engine) HashPassword(plaintext string) (string, error) {
	if e == nil || e.passwords == nil {
		return "", ErrEngineNotReady
	}
	return e.passwords.Hash(plaintext)
}

// VerifyPassword reports whether plaintext matches storedHash. Malformed or
// unsupported hashes never match.
func (e *Engine) VerifyPassword(plaintext, storedHash string) bool {
	if e == nil || e.passwords == nil {
		return false
	}
	return e.passwords.Verify(plaintext, storedHash)
}

// VerifyAccess checks an access token's signature and expiry without any
// store lookup.
func (e *Engine) VerifyAccess(token string) (*jwt.AccessClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		return nil, tokenError(err)
	}
	return claims, nil
}

// VerifyRefresh checks a refresh token's signature and expiry without any
// store lookup. It does not tell whether the family is still live.
func (e *Engine) VerifyRefresh(token string) (*jwt.RefreshClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.ParseRefresh(token)
	if err != nil {
		return nil, tokenError(err)
	}
	return claims, nil
}

// tokenError maps a jwt package error to the root taxonomy.
func tokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return unauthenticated(ErrExpired)
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return unauthenticated(ErrSignatureInvalid)
	default:
		return unauthenticated(ErrMalformed)
	}
}

func toAccount(u UserRecord) flows.Account {
	return flows.Account{
		ID:           u.ID,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Permissions:  u.Permissions,
		Active:       u.Active,
		Verified:     u.Verified,
		Deleted:      u.Deleted,
	}
}

func (e *Engine) lookupBySubject(ctx context.Context, subject string) (flows.Account, error) {
	u, err := e.userProvider.LookupUser(ctx, subject)
	if err != nil {
		return flows.Account{}, err
	}
	if u.ID == "" {
		u.ID = subject
	}
	return toAccount(u), nil
}

func (e *Engine) lookupByIdentifier(ctx context.Context, identifier string) (flows.Account, error) {
	u, err := e.userProvider.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return flows.Account{}, err
	}
	if u.ID == "" {
		return flows.Account{}, ErrUserNotFound
	}
	return toAccount(u), nil
}

func isFamilyID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}

func (e *Engine) buildFlowDeps() flows.Deps {
	cfg := e.config
	issue := flows.IssueDeps{
		Tokens:   e.jwtManager,
		Families: e.sessionStore,
		Warn:     e.warn,
	}

	login := flows.LoginDeps{
		ClientIP:           clientIPFromContext,
		CheckLoginRate:     e.rateLimiter.CheckLogin,
		IncrementLoginRate: e.rateLimiter.IncrementLogin,
		ResetLoginRate:     e.rateLimiter.ResetLogin,
		RateLimited:        rate.ErrRateLimited,
		ThrottleFailOpen:   cfg.RateLimit.FailOpen,
		LookupByIdentifier: e.lookupByIdentifier,
		LookupTimeout:      cfg.Account.UserLookupTimeout,
		UserNotFound:       ErrUserNotFound,
		RequireVerified:    cfg.Account.RequireVerified,
		VerifyPassword:     e.passwords.Verify,
		VerifyDummy:        e.passwords.VerifyDummy,
		Issue: func(ctx context.Context, id flows.Identity) flows.IssueResult {
			return flows.RunIssue(ctx, id, issue)
		},
		Warn: e.warn,
	}
	if updater, ok := e.userProvider.(PasswordUpdater); ok && cfg.Account.UpgradeHashOnLogin {
		login.NeedsUpgrade = e.passwords.NeedsUpgrade
		login.HashPassword = e.passwords.Hash
		login.UpdatePasswordHash = updater.UpdatePasswordHash
	}

	return flows.Deps{
		Issue: issue,
		Refresh: flows.RefreshDeps{
			ParseRefresh:    e.jwtManager.ParseRefresh,
			LookupAccount:   e.lookupBySubject,
			LookupTimeout:   cfg.Account.UserLookupTimeout,
			UserNotFound:    ErrUserNotFound,
			RequireVerified: cfg.Account.RequireVerified,
			Tokens:          e.jwtManager,
			Families:        e.sessionStore,
			Warn:            e.warn,
		},
		Authenticate: flows.AuthenticateDeps{
			ParseAccess:     e.jwtManager.ParseAccess,
			LookupAccount:   e.lookupBySubject,
			LookupTimeout:   cfg.Account.UserLookupTimeout,
			UserNotFound:    ErrUserNotFound,
			RequireVerified: cfg.Account.RequireVerified,
			Families:        e.sessionStore,
		},
		Login: login,
		Logout: flows.LogoutDeps{
			ParseAccess:         e.jwtManager.ParseAccess,
			ParseRefresh:        e.jwtManager.ParseRefresh,
			IsFamilyID:          isFamilyID,
			ImmediateRevocation: cfg.Session.ImmediateRevocationOnLogout,
			Families:            e.sessionStore,
		},
	}
}
