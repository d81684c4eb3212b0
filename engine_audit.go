package estateauth

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventSessionIssued         = "session_issued"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshReplayDetected = "refresh_replay_detected"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
	auditEventAccessForbidden       = "access_forbidden"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
	auditEventUpstreamUnavailable   = "upstream_unavailable"
	auditEventPasswordUpgraded      = "password_hash_upgraded"
)

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrMalformed          AuditErrorCode = "malformed_token"
	auditErrExpired            AuditErrorCode = "expired_token"
	auditErrSignature          AuditErrorCode = "bad_signature"
	auditErrRevoked            AuditErrorCode = "revoked"
	auditErrReplay             AuditErrorCode = "replay"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUnavailable        AuditErrorCode = "upstream_unavailable"
	auditErrMissingInput       AuditErrorCode = "missing_input"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	familyID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		FamilyID:  familyID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, metadataBuilder func() map[string]string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

// auditErrorCode picks the most specific label; the precise kind wins over
// the ErrUnauthenticated umbrella.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrReplayDetected):
		return auditErrReplay
	case errors.Is(err, ErrRevoked):
		return auditErrRevoked
	case errors.Is(err, ErrExpired):
		return auditErrExpired
	case errors.Is(err, ErrSignatureInvalid):
		return auditErrSignature
	case errors.Is(err, ErrMalformed):
		return auditErrMalformed
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUpstreamUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrMissingInput):
		return auditErrMissingInput
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	default:
		return auditErrInternal
	}
}
