package estateauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/estateauth/internal/flows"
	"github.com/MrEthical07/estateauth/session"
)

// IssueSession starts a new token family for subject and returns its first
// access/refresh pair. The subject is resolved through the UserProvider so
// the tokens carry the account's current role and permissions; inactive
// accounts are refused.
func (e *Engine) IssueSession(ctx context.Context, subject string) (*SessionTokens, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if subject == "" {
		return nil, ErrMissingInput
	}

	acct, err := e.resolveForIssue(ctx, subject)
	if err != nil {
		return nil, err
	}
	return e.issue(ctx, acct.Identity())
}

func (e *Engine) resolveForIssue(ctx context.Context, subject string) (flows.Account, error) {
	acct, outcome, err := flows.LookupAccount(ctx, e.lookupBySubject, subject, e.config.Account.UserLookupTimeout, ErrUserNotFound)
	switch {
	case outcome == flows.LookupUnavailable:
		e.metricInc(MetricUpstreamUnavailable)
		return flows.Account{}, unavailable(err)
	case outcome == flows.LookupNotFound || !acct.Usable(e.config.Account.RequireVerified):
		return flows.Account{}, unauthenticated(ErrAccountInactive)
	}
	return acct, nil
}

func (e *Engine) issue(ctx context.Context, id flows.Identity) (*SessionTokens, error) {
	res := flows.RunIssue(ctx, id, e.flowDeps.Issue)
	if err := e.issueError(res); err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventSessionIssued, true, id.Subject, res.FamilyID, nil, nil)
	return sessionTokens(id.Subject, res.FamilyID, res.Pair), nil
}

func (e *Engine) issueError(res flows.IssueResult) error {
	switch res.Failure {
	case flows.IssueFailureNone:
		return nil
	case flows.IssueFailureInput:
		return ErrMissingInput
	case flows.IssueFailureCreateFamily, flows.IssueFailureBind:
		e.metricInc(MetricUpstreamUnavailable)
		return unavailable(res.Err)
	default:
		return fmt.Errorf("estateauth: issue session: %w", res.Err)
	}
}

func sessionTokens(subject, familyID string, pair flows.TokenPair) *SessionTokens {
	return &SessionTokens{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		FamilyID:     familyID,
		Subject:      subject,
	}
}

// RefreshSession rotates refreshToken and returns a new pair under the same
// family. Presenting a refresh token that was already rotated revokes the
// whole family and returns ErrReplayDetected.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (*SessionTokens, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flowDeps.Refresh)
	if res.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Subject, res.FamilyID, nil, func() map[string]string {
			return map[string]string{"rotation_jti": res.Pair.Refresh.ID}
		})
		return sessionTokens(res.Subject, res.FamilyID, res.Pair), nil
	}

	err := e.refreshError(res)
	e.metricInc(MetricRefreshFailure)
	if res.FamilyRevoked {
		e.metricInc(MetricFamilyRevoked)
	}

	if res.Failure == flows.RefreshFailureReplay {
		e.metricInc(MetricReplayDetected)
		e.logger.WarnContext(ctx, "estateauth: refresh token replay, family revoked",
			"security_event", "refresh_replay",
			"family_id", res.FamilyID,
			"user_id", res.Subject,
			"client_ip", clientIPFromContext(ctx),
		)
		e.emitAudit(ctx, auditEventRefreshReplayDetected, false, res.Subject, res.FamilyID, err, func() map[string]string {
			return map[string]string{"alert": "true"}
		})
		return nil, err
	}

	e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Subject, res.FamilyID, err, nil)
	return nil, err
}

func (e *Engine) refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureMissing:
		return ErrMissingInput
	case flows.RefreshFailureDecode:
		return tokenError(res.Err)
	case flows.RefreshFailureUpstream, flows.RefreshFailureStore:
		e.metricInc(MetricUpstreamUnavailable)
		e.logger.Warn("estateauth: refresh could not be evaluated", "family_id", res.FamilyID, "error", res.Err)
		return unavailable(res.Err)
	case flows.RefreshFailureAccount:
		return unauthenticated(ErrAccountInactive)
	case flows.RefreshFailureFamilyNotFound, flows.RefreshFailureRevoked:
		return unauthenticated(ErrRevoked)
	case flows.RefreshFailureFamilyExpired:
		return unauthenticated(ErrExpired)
	case flows.RefreshFailureReplay:
		return unauthenticated(ErrReplayDetected)
	default:
		return fmt.Errorf("estateauth: refresh session: %w", res.Err)
	}
}

// EndSession logs out. value may be an access token, a refresh token or a
// raw family id; in every case the family is revoked. When
// Session.ImmediateRevocationOnLogout is set an access token is also denied
// until it expires.
func (e *Engine) EndSession(ctx context.Context, value string) (*EndSessionResult, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	return e.endSession(ctx, value, e.flowDeps.Logout)
}

// EndSessionByToken is EndSession without the raw family id form: the
// caller must present a signed access or refresh token. Public logout
// endpoints use it since family ids are readable from any access token.
func (e *Engine) EndSessionByToken(ctx context.Context, token string) (*EndSessionResult, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	deps := e.flowDeps.Logout
	deps.IsFamilyID = nil
	return e.endSession(ctx, token, deps)
}

func (e *Engine) endSession(ctx context.Context, value string, deps flows.LogoutDeps) (*EndSessionResult, error) {
	res := flows.RunLogout(ctx, value, deps)
	switch res.Failure {
	case flows.LogoutFailureNone:
	case flows.LogoutFailureMissing:
		return nil, ErrMissingInput
	case flows.LogoutFailureUnrecognized:
		return nil, unauthenticated(ErrMalformed)
	default:
		e.metricInc(MetricUpstreamUnavailable)
		return nil, unavailable(res.Err)
	}

	if res.FamilyRevoked {
		e.metricInc(MetricFamilyRevoked)
	}
	if res.AccessRevoked {
		e.metricInc(MetricAccessTokenRevoked)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, res.Subject, res.FamilyID, nil, func() map[string]string {
		return map[string]string{
			"family_revoked": strconv.FormatBool(res.FamilyRevoked),
			"access_revoked": strconv.FormatBool(res.AccessRevoked),
		}
	})

	return &EndSessionResult{
		Subject:       res.Subject,
		FamilyID:      res.FamilyID,
		FamilyRevoked: res.FamilyRevoked,
		AccessRevoked: res.AccessRevoked,
	}, nil
}

// EndAllSessions revokes every live family of subject and returns how many
// were revoked.
func (e *Engine) EndAllSessions(ctx context.Context, subject string) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	if subject == "" {
		return 0, ErrMissingInput
	}

	n, err := e.sessionStore.RevokeAllForSubject(ctx, subject)
	if err != nil {
		e.metricInc(MetricUpstreamUnavailable)
		return n, unavailable(err)
	}
	for i := 0; i < n; i++ {
		e.metricInc(MetricFamilyRevoked)
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, subject, "", nil, func() map[string]string {
		return map[string]string{"families": strconv.Itoa(n)}
	})
	return n, nil
}

// FamilyInfo describes a family for admin tooling. Revoked families are
// reported until their natural expiry.
func (e *Engine) FamilyInfo(ctx context.Context, familyID string) (*FamilyInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if familyID == "" {
		return nil, ErrMissingInput
	}

	fam, err := e.sessionStore.Get(ctx, familyID)
	if err != nil {
		if errors.Is(err, session.ErrFamilyNotFound) {
			return nil, ErrFamilyNotFound
		}
		return nil, unavailable(err)
	}
	return &FamilyInfo{
		ID:        fam.ID,
		Subject:   fam.Subject,
		Rotations: fam.Rotations,
		Revoked:   fam.Revoked,
		CreatedAt: fam.CreatedAt,
		ExpiresAt: fam.ExpiresAt,
	}, nil
}
