package session

import (
	"context"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// backend is a Redis server the store is exercised against. miniredis always
// runs; a real server joins when REDIS_ADDR is set.
type backend struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

func backends() []backend {
	out := []backend{{
		name: "miniredis",
		setup: func(t *testing.T) redis.UniversalClient {
			t.Helper()
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return rdb
		},
	}}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		out = append(out, backend{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("redis at %s unreachable: %v", addr, err)
				}
				t.Cleanup(func() { _ = rdb.Close() })
				return rdb
			},
		})
	}
	return out
}

// compatPrefix keeps runs against a shared server apart.
func compatPrefix(t *testing.T) string {
	return "eatest:" + t.Name() + ":" + time.Now().Format("150405.000000000")
}

func TestCompatRotationAndReplay(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := NewStore(b.setup(t), compatPrefix(t), nil)
			ctx := context.Background()

			fam := newBoundFamily(t, s, "buyer-7", "r1")
			if _, err := s.RecordRotation(ctx, fam.ID, "r1", "r2"); err != nil {
				t.Fatalf("rotate: %v", err)
			}
			if _, err := s.RecordRotation(ctx, fam.ID, "r1", "r3"); !errors.Is(err, ErrReplayDetected) {
				t.Fatalf("expected replay, got %v", err)
			}
			if live, err := s.IsLive(ctx, fam.ID); err != nil || live {
				t.Fatalf("family must be dead after replay, live=%v err=%v", live, err)
			}
			if _, err := s.RecordRotation(ctx, fam.ID, "r2", "r4"); !errors.Is(err, ErrFamilyRevoked) {
				t.Fatalf("expected revoked, got %v", err)
			}
		})
	}
}

func TestCompatRevokeIsIdempotent(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := NewStore(b.setup(t), compatPrefix(t), nil)
			ctx := context.Background()

			fam := newBoundFamily(t, s, "seller-2", "r1")
			first, err := s.RevokeFamily(ctx, fam.ID)
			if err != nil || !first {
				t.Fatalf("first revoke: %v %v", first, err)
			}
			if _, err := s.RevokeFamily(ctx, fam.ID); err != nil {
				t.Fatalf("second revoke: %v", err)
			}
			if live, err := s.IsLive(ctx, fam.ID); err != nil || live {
				t.Fatalf("family must stay dead, live=%v err=%v", live, err)
			}
			if missing, err := s.RevokeFamily(ctx, "no-such-family"); err != nil || missing {
				t.Fatalf("unknown family revoke: %v %v", missing, err)
			}
			ids, err := s.ListFamilies(ctx, "seller-2")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(ids) != 0 {
				t.Fatalf("revoked family must leave the subject index, got %v", ids)
			}
		})
	}
}

func TestCompatAccessDenyList(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := NewStore(b.setup(t), compatPrefix(t), nil)
			ctx := context.Background()

			if err := s.RevokeAccessToken(ctx, "jti-9", time.Now().Add(time.Minute)); err != nil {
				t.Fatalf("revoke access: %v", err)
			}
			revoked, err := s.IsAccessTokenRevoked(ctx, "jti-9")
			if err != nil || !revoked {
				t.Fatalf("expected deny-listed token, got %v %v", revoked, err)
			}
			revoked, err = s.IsAccessTokenRevoked(ctx, "jti-10")
			if err != nil || revoked {
				t.Fatalf("unrelated token must pass, got %v %v", revoked, err)
			}
		})
	}
}

// roundTrips counts Redis network round trips: one per single command and
// one per pipeline.
type roundTrips struct {
	n atomic.Int64
}

func (h *roundTrips) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *roundTrips) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.n.Add(1)
		return next(ctx, cmd)
	}
}

func (h *roundTrips) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.n.Add(1)
		return next(ctx, cmds)
	}
}

func (h *roundTrips) measure(f func()) int64 {
	h.n.Store(0)
	f()
	return h.n.Load()
}

func TestRoundTripBudget(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	hook := &roundTrips{}
	rdb.AddHook(hook)

	s := NewStore(rdb, "ea", nil)
	ctx := context.Background()
	// Connection setup commands are not part of any budget.
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	var fam *Family
	if got := hook.measure(func() {
		var err error
		fam, err = s.CreateFamily(ctx, "agent-4", time.Hour)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}); got != 1 {
		t.Fatalf("create family: %d round trips, want 1", got)
	}

	// The first script call may need EVAL after a NOSCRIPT reply.
	if _, err := s.RecordRotation(ctx, fam.ID, "", "r1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	budgets := []struct {
		name string
		max  int64
		op   func() error
	}{
		{"rotate", 1, func() error { _, err := s.RecordRotation(ctx, fam.ID, "r1", "r2"); return err }},
		{"is live", 1, func() error { _, err := s.IsLive(ctx, fam.ID); return err }},
		{"deny list check", 1, func() error { _, err := s.IsAccessTokenRevoked(ctx, "jti"); return err }},
		{"get", 1, func() error { _, err := s.Get(ctx, fam.ID); return err }},
	}
	for _, b := range budgets {
		var opErr error
		got := hook.measure(func() { opErr = b.op() })
		if opErr != nil {
			t.Fatalf("%s: %v", b.name, opErr)
		}
		if got > b.max {
			t.Fatalf("%s: %d round trips, budget %d", b.name, got, b.max)
		}
	}
}
