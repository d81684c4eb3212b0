// Command estateauth-loadtest measures Authenticate, RefreshSession and
// Admit throughput against Redis, or an in-process miniredis when no
// address is given.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/estateauth"
	"github.com/MrEthical07/estateauth/permission"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type sessionState struct {
	mu      sync.Mutex
	access  string
	refresh string
}

type users struct{}

func (users) LookupUser(_ context.Context, subject string) (estateauth.UserRecord, error) {
	return estateauth.UserRecord{ID: subject, Role: permission.RoleBuyer, Active: true, Verified: true}, nil
}

func (users) GetUserByIdentifier(context.Context, string) (estateauth.UserRecord, error) {
	return estateauth.UserRecord{}, estateauth.ErrUserNotFound
}

func main() {
	var (
		sessions    = flag.Int("sessions", 10000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		rps         = flag.Float64("rps", 0, "overall request rate per phase; 0 is unpaced")
		strict      = flag.Bool("strict", false, "authenticate with family and deny-list checks")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "ealt", "redis key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	client, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := estateauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("loadtest-secret-loadtest-secret!")
	cfg.Session.RedisPrefix = *prefix
	cfg.RateLimit.RedisPrefix = *prefix
	cfg.RateLimit.Policies[estateauth.RouteAuthenticated] = estateauth.RatePolicy{Limit: 1000, Window: time.Second}

	engine, err := estateauth.New().WithConfig(cfg).WithRedis(client).WithUserProvider(users{}).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]sessionState, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := range states {
		t, err := engine.IssueSession(ctx, fmt.Sprintf("u-%d", i))
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i].access = t.AccessToken
		states[i].refresh = t.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	req := estateauth.Requirement{RequireAuth: true, Strict: *strict}

	authStats := runPhase(ctx, *ops, *concurrency, *rps, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		token := s.access
		s.mu.Unlock()
		_, err := engine.Authenticate(ctx, token, req)
		return err
	})

	refreshStats := runPhase(ctx, *ops, *concurrency, *rps, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		t, err := engine.RefreshSession(ctx, s.refresh)
		if err != nil {
			return err
		}
		s.access, s.refresh = t.AccessToken, t.RefreshToken
		return nil
	})

	admitStats := runPhase(ctx, *ops, *concurrency, *rps, func(r *rand.Rand, _ int) error {
		_, err := engine.Admit(ctx, fmt.Sprintf("10.0.%d.%d", r.Intn(4), r.Intn(256)), estateauth.RouteAuthenticated)
		if errors.Is(err, estateauth.ErrRateLimited) {
			return nil
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)
	printStats("admit", admitStats)
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// runPhase runs op ops times across concurrency workers. A positive rps
// paces the phase through one shared token bucket.
func runPhase(ctx context.Context, ops, concurrency int, rps float64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	var pacer *rate.Limiter
	if rps > 0 {
		pacer = rate.NewLimiter(rate.Limit(rps), max(1, int(rps/10)))
	}

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				if pacer != nil {
					if err := pacer.Wait(ctx); err != nil {
						return
					}
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}
