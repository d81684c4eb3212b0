package internaldefs

import (
	"github.com/MrEthical07/estateauth"
)

// CounterDef names one Engine counter.
type CounterDef struct {
	ID   estateauth.MetricID
	Name string
	Help string
}

// HistogramDef names one Engine histogram.
type HistogramDef struct {
	ID   estateauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for events lost on a full audit buffer.
const AuditDroppedName = "estateauth_audit_dropped_total"

// CounterDefs lists every exported counter in a fixed order.
var CounterDefs = []CounterDef{
	{ID: estateauth.MetricLoginSuccess, Name: "estateauth_login_success_total", Help: "Successful password logins."},
	{ID: estateauth.MetricLoginFailure, Name: "estateauth_login_failure_total", Help: "Rejected password logins."},
	{ID: estateauth.MetricLoginRateLimited, Name: "estateauth_login_rate_limited_total", Help: "Logins refused by the failed-attempt throttle."},
	{ID: estateauth.MetricSessionIssued, Name: "estateauth_session_issued_total", Help: "Token families started."},
	{ID: estateauth.MetricRefreshSuccess, Name: "estateauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: estateauth.MetricRefreshFailure, Name: "estateauth_refresh_failure_total", Help: "Rejected refresh rotations."},
	{ID: estateauth.MetricReplayDetected, Name: "estateauth_refresh_replay_detected_total", Help: "Consumed refresh tokens presented again."},
	{ID: estateauth.MetricFamilyRevoked, Name: "estateauth_family_revoked_total", Help: "Token families revoked."},
	{ID: estateauth.MetricLogout, Name: "estateauth_logout_total", Help: "Single-session logouts."},
	{ID: estateauth.MetricLogoutAll, Name: "estateauth_logout_all_total", Help: "Logout-all operations."},
	{ID: estateauth.MetricAccessTokenRevoked, Name: "estateauth_access_token_revoked_total", Help: "Access tokens put on the deny list."},
	{ID: estateauth.MetricAuthenticateSuccess, Name: "estateauth_authenticate_success_total", Help: "Requests resolved to a live identity."},
	{ID: estateauth.MetricAuthenticateFailure, Name: "estateauth_authenticate_failure_total", Help: "Requests rejected as unauthenticated."},
	{ID: estateauth.MetricAuthenticateAnonymous, Name: "estateauth_authenticate_anonymous_total", Help: "Optional-auth requests without a token."},
	{ID: estateauth.MetricForbidden, Name: "estateauth_forbidden_total", Help: "Requests failing the role or permission check."},
	{ID: estateauth.MetricUpstreamUnavailable, Name: "estateauth_upstream_unavailable_total", Help: "User store or Redis calls that could not be evaluated."},
	{ID: estateauth.MetricRateLimitAdmitted, Name: "estateauth_rate_limit_admitted_total", Help: "Requests admitted by the route limiter."},
	{ID: estateauth.MetricRateLimitDenied, Name: "estateauth_rate_limit_denied_total", Help: "Requests refused by the route limiter."},
	{ID: estateauth.MetricPasswordUpgraded, Name: "estateauth_password_upgraded_total", Help: "Stored password hashes upgraded after login."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: estateauth.MetricAuthenticateLatency, Name: "estateauth_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// HistogramBounds are the upper bounds of the Engine's eight latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
