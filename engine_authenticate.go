package estateauth

import (
	"context"
	"time"

	"github.com/MrEthical07/estateauth/internal/flows"
)

// Authenticate resolves token against req. An empty token yields an
// anonymous identity (Subject == "") when req.RequireAuth is false.
//
// Errors:
//   - wraps ErrUnauthenticated for bad, expired, revoked or missing tokens
//     and for inactive accounts;
//   - ErrForbidden when the identity fails req's role or permission check;
//   - wraps ErrUpstreamUnavailable when the user store or Redis could not
//     answer in time.
func (e *Engine) Authenticate(ctx context.Context, token string, req Requirement) (*Identity, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()
	}

	in := flows.AuthenticateInput{
		RequireAuth:         req.RequireAuth,
		AllowedRoles:        req.AllowedRoles,
		RequiredPermissions: req.RequiredPermissions,
		CheckRevocation:     req.Strict || e.config.Session.CheckRevocationOnEveryRequest,
	}
	res := flows.RunAuthenticate(ctx, token, in, e.flowDeps.Authenticate)

	switch res.Failure {
	case flows.AuthenticateFailureNone:
		if res.Anonymous {
			e.metricInc(MetricAuthenticateAnonymous)
			return &Identity{}, nil
		}
		e.metricInc(MetricAuthenticateSuccess)
		return &Identity{
			Subject:     res.Identity.Subject,
			Role:        res.Identity.Role,
			Permissions: res.Identity.Permissions,
			FamilyID:    res.Claims.FamilyID,
			TokenID:     res.Claims.ID,
			ExpiresAt:   res.Claims.ExpiresAt.Time,
		}, nil
	case flows.AuthenticateFailureForbidden:
		e.metricInc(MetricForbidden)
		e.emitAudit(ctx, auditEventAccessForbidden, false, res.Identity.Subject, res.Claims.FamilyID, ErrForbidden, func() map[string]string {
			return map[string]string{"role": res.Identity.Role.String()}
		})
		return nil, ErrForbidden
	case flows.AuthenticateFailureUpstream:
		e.metricInc(MetricUpstreamUnavailable)
		e.logger.WarnContext(ctx, "estateauth: request could not be authenticated", "error", res.Err)
		return nil, unavailable(res.Err)
	}

	e.metricInc(MetricAuthenticateFailure)
	switch res.Failure {
	case flows.AuthenticateFailureToken:
		return nil, tokenError(res.Err)
	case flows.AuthenticateFailureRevoked:
		return nil, unauthenticated(ErrRevoked)
	case flows.AuthenticateFailureAccount:
		return nil, unauthenticated(ErrAccountInactive)
	default:
		return nil, ErrUnauthenticated
	}
}
