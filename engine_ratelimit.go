package estateauth

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// Admit counts one request from clientID against class's fixed window. It
// never waits beyond one Redis round trip. A denied decision is returned
// together with ErrRateLimited.
//
// When Redis is unreachable Admit refuses with ErrUpstreamUnavailable, or
// admits when RateLimit.FailOpen is set.
func (e *Engine) Admit(ctx context.Context, clientID string, class RouteClass) (AdmitDecision, error) {
	if e == nil || e.rateLimiter == nil {
		return AdmitDecision{}, ErrEngineNotReady
	}
	policy, ok := e.policies[class]
	if !ok {
		return AdmitDecision{}, fmt.Errorf("%w: %q", ErrUnknownRouteClass, class)
	}

	d, err := e.rateLimiter.Admit(ctx, string(class), clientID, policy)
	if err != nil {
		e.metricInc(MetricUpstreamUnavailable)
		if e.config.RateLimit.FailOpen {
			e.logger.WarnContext(ctx, "estateauth: rate limiter unavailable, failing open", "route_class", string(class), "error", err)
			return AdmitDecision{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit}, nil
		}
		return AdmitDecision{}, unavailable(err)
	}

	out := AdmitDecision{
		Allowed:    d.Allowed,
		Limit:      d.Limit,
		Remaining:  d.Remaining,
		RetryAfter: d.RetryAfter,
		ResetAfter: d.ResetAfter,
	}
	if out.Allowed {
		e.metricInc(MetricRateLimitAdmitted)
		return out, nil
	}

	e.metricInc(MetricRateLimitDenied)
	e.emitRateLimit(ctx, string(class), func() map[string]string {
		return map[string]string{
			"client_id":      clientID,
			"retry_after_ms": strconv.FormatInt(out.RetryAfter.Milliseconds(), 10),
		}
	})
	return out, ErrRateLimited
}

// RouteClasses lists the classes with a configured policy.
func (e *Engine) RouteClasses() []RouteClass {
	out := make([]RouteClass, 0, len(e.policies))
	for c := range e.policies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
