package cache_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/cache"
	"github.com/solterm/trading-core/pkg/types"
)

func memCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.New(types.CacheConfig{}, zap.NewNop())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFingerprintStableAcrossParamOrder(t *testing.T) {
	a := cache.Fingerprint("sol", cache.KindPrediction, map[string]string{"horizon": "24h", "points": "48"})
	b := cache.Fingerprint("SOL", cache.KindPrediction, map[string]string{"points": "48", "horizon": "24h"})
	if a != b {
		t.Errorf("fingerprints differ: %s vs %s", a, b)
	}
	c := cache.Fingerprint("SOL", cache.KindPrediction, map[string]string{"horizon": "7d", "points": "48"})
	if a == c {
		t.Error("different params produced the same fingerprint")
	}
	d := cache.Fingerprint("SOL", cache.KindSentiment, map[string]string{"horizon": "24h", "points": "48"})
	if a == d {
		t.Error("different kinds produced the same fingerprint")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c := memCache(t)
	ctx := context.Background()
	key := cache.Fingerprint("SOL", cache.KindSentiment, nil)

	type payload struct {
		Score float64 `json:"score"`
		Label string  `json:"label"`
	}
	if err := c.Set(ctx, key, cache.KindSentiment, payload{Score: 0.4, Label: "greed"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got payload
	hit, err := c.Get(ctx, key, &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !hit {
		t.Fatal("expected hit")
	}
	if got.Label != "greed" || got.Score != 0.4 {
		t.Errorf("got %+v", got)
	}
}

func TestMissOnUnknownKey(t *testing.T) {
	c := memCache(t)
	var out map[string]interface{}
	hit, err := c.Get(context.Background(), "mlcache:prediction:nope", &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit {
		t.Error("unexpected hit")
	}
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	c := memCache(t)
	ctx := context.Background()
	key := cache.Fingerprint("SOL", cache.KindAnomaly, nil)

	if err := c.SetWithTTL(ctx, key, map[string]int{"total": 1}, 10*time.Millisecond); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	var out map[string]int
	hit, err := c.Get(ctx, key, &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit {
		t.Error("expired entry returned as hit")
	}
}

func TestTTLClasses(t *testing.T) {
	cases := []struct {
		kind cache.Kind
		want time.Duration
	}{
		{cache.KindPrediction, time.Hour},
		{cache.KindSentiment, 30 * time.Minute},
		{cache.KindAnomaly, 15 * time.Minute},
		{cache.KindPattern, time.Hour},
		{cache.KindTraining, 2 * time.Hour},
	}
	for _, tc := range cases {
		if got := cache.TTLFor(tc.kind); got != tc.want {
			t.Errorf("TTLFor(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}
}
