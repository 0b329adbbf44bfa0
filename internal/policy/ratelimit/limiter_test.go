package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/paleoapi/compositegw/internal/metrics"
)

func TestLimiterWait(t *testing.T) {
	metrics.Init()

	l := New(Config{
		DefaultRPS:   10,
		DefaultBurst: 1,
	})

	ctx := context.Background()
	url := "https://api.paleobiodb.org/data1.2/occs/list.json"

	start := time.Now()
	if err := l.Wait(ctx, url); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Logf("warning: first wait took %v", time.Since(start))
	}

	// 10 RPS = one token every 100ms, burst 1. The initial token is
	// already consumed, so the next wait blocks for ~100ms.
	start = time.Now()
	if err := l.Wait(ctx, url); err != nil {
		t.Fatal(err)
	}
	dur := time.Since(start)
	if dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiterDifferentHosts(t *testing.T) {
	metrics.Init()

	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
	})

	ctx := context.Background()

	if err := l.Wait(ctx, "https://api.paleobiodb.org/data1.2/occs/list.json"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := l.Wait(ctx, "https://api.neotomadb.org/v2/data/downloads"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("second host blocked unexpectedly")
	}
}
