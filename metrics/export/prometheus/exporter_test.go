package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/estateauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeSource struct {
	snapshot estateauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() estateauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: estateauth.MetricsSnapshot{
			Counters:   map[estateauth.MetricID]uint64{},
			Histograms: map[estateauth.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: estateauth.MetricsSnapshot{
			Counters: map[estateauth.MetricID]uint64{
				estateauth.MetricLoginSuccess:   7,
				estateauth.MetricReplayDetected: 1,
			},
			Histograms: map[estateauth.MetricID][]uint64{
				estateauth.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"estateauth_login_success_total 7",
		"estateauth_refresh_replay_detected_total 1",
		"estateauth_rate_limit_denied_total 0",
		`estateauth_authenticate_latency_seconds_bucket{le="0.005"} 1`,
		`estateauth_authenticate_latency_seconds_bucket{le="+Inf"} 36`,
		"estateauth_authenticate_latency_seconds_count 36",
		"estateauth_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: estateauth.MetricsSnapshot{
			Counters:   map[estateauth.MetricID]uint64{estateauth.MetricLoginSuccess: 1},
			Histograms: map[estateauth.MetricID][]uint64{},
		},
	})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestExporterReadsLiveEngine(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := estateauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Metrics.Enabled = true
	cfg.RateLimit.Policies[estateauth.RoutePublic] = estateauth.RatePolicy{Limit: 1, Window: time.Minute}

	engine, err := estateauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(noUsers{}).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	ctx := t.Context()
	_, _ = engine.Admit(ctx, "198.51.100.7", estateauth.RoutePublic)
	_, _ = engine.Admit(ctx, "198.51.100.7", estateauth.RoutePublic)

	out := NewExporter(engine).Render()
	if !strings.Contains(out, "estateauth_rate_limit_admitted_total 1") ||
		!strings.Contains(out, "estateauth_rate_limit_denied_total 1") {
		t.Fatalf("expected limiter counters, got:\n%s", out)
	}
}

type noUsers struct{}

func (noUsers) LookupUser(context.Context, string) (estateauth.UserRecord, error) {
	return estateauth.UserRecord{}, estateauth.ErrUserNotFound
}

func (noUsers) GetUserByIdentifier(context.Context, string) (estateauth.UserRecord, error) {
	return estateauth.UserRecord{}, estateauth.ErrUserNotFound
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: estateauth.MetricsSnapshot{
			Counters: map[estateauth.MetricID]uint64{
				estateauth.MetricLoginSuccess:        1000,
				estateauth.MetricLoginFailure:        40,
				estateauth.MetricRefreshSuccess:      800,
				estateauth.MetricRefreshFailure:      10,
				estateauth.MetricSessionIssued:       800,
				estateauth.MetricFamilyRevoked:       20,
				estateauth.MetricAuthenticateSuccess: 90000,
			},
			Histograms: map[estateauth.MetricID][]uint64{
				estateauth.MetricAuthenticateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
