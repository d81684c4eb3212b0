package main

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}
	if got := percentile(samples, 50); got != 50*time.Millisecond {
		t.Fatalf("p50 = %s", got)
	}
	if got := percentile(samples, 100); got != 100*time.Millisecond {
		t.Fatalf("p100 = %s", got)
	}
	if got := percentile(nil, 99); got != 0 {
		t.Fatalf("empty p99 = %s", got)
	}
}

func TestRunPhaseCountsEveryOp(t *testing.T) {
	s := runPhase(context.Background(), 200, 8, 0, func(_ *rand.Rand, i int) error {
		if i%10 == 0 {
			return errors.New("fail")
		}
		return nil
	})
	if s.ops != 200 {
		t.Fatalf("ops = %d, want 200", s.ops)
	}
	if s.failures != 20 {
		t.Fatalf("failures = %d, want 20", s.failures)
	}
}

func TestRunPhasePaced(t *testing.T) {
	start := time.Now()
	s := runPhase(context.Background(), 30, 4, 100, func(*rand.Rand, int) error { return nil })
	if s.ops != 30 {
		t.Fatalf("ops = %d, want 30", s.ops)
	}
	// burst 10 at 100/s leaves 20 ops paced at 10ms each
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("pacing not applied, finished in %s", elapsed)
	}
}

func TestConnectFallsBackToMiniredis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	client, cleanup, err := connect("")
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
