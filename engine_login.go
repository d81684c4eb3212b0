package estateauth

import (
	"context"
	"fmt"

	"github.com/MrEthical07/estateauth/internal/flows"
)

// Login verifies identifier and password and starts a new session. Unknown
// identifiers cost the same hashing work as wrong passwords, and both return
// ErrInvalidCredentials. Repeated failures trip the per-identifier (and
// optionally per-IP) throttle.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*SessionTokens, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunLogin(ctx, identifier, password, e.flowDeps.Login)
	if res.Failure == flows.LoginFailureNone {
		if res.HashUpgraded {
			e.metricInc(MetricPasswordUpgraded)
			e.emitAudit(ctx, auditEventPasswordUpgraded, true, res.Subject, "", nil, nil)
		}
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricSessionIssued)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.Subject, res.Issue.FamilyID, nil, nil)
		return sessionTokens(res.Subject, res.Issue.FamilyID, res.Issue.Pair), nil
	}

	err := e.loginError(res)
	switch res.Failure {
	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", err, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
	case flows.LoginFailureUpstream:
		e.metricInc(MetricUpstreamUnavailable)
		e.logger.WarnContext(ctx, "estateauth: login could not be evaluated", "error", res.Err)
		e.emitAudit(ctx, auditEventUpstreamUnavailable, false, "", "", err, func() map[string]string {
			return map[string]string{"operation": "login"}
		})
	default:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.Subject, "", err, nil)
	}
	return nil, err
}

func (e *Engine) loginError(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureMissing:
		return ErrMissingInput
	case flows.LoginFailureRateLimited:
		return ErrRateLimited
	case flows.LoginFailureUpstream:
		return unavailable(res.Err)
	case flows.LoginFailureCredentials:
		return unauthenticated(ErrInvalidCredentials)
	case flows.LoginFailureAccount:
		return unauthenticated(ErrAccountInactive)
	default:
		if err := e.issueError(res.Issue); err != nil {
			return err
		}
		return fmt.Errorf("estateauth: login: %w", res.Err)
	}
}
