package limiter_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/toolink/ratelimit/limiter"
)

// Using a LimiterType directly against a Store: read the state, decide,
// and commit with CompareAndSwap. ErrBackendConflict means a concurrent
// caller won the write; repeat the whole cycle.
func Example_directUse() {
	store := limiter.NewMemoryStore()
	bucket := limiter.TokenBucket{Capacity: 2, RefillRate: 1}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		value, token, err := store.Get(ctx, "user_42")
		if err != nil {
			fmt.Println("store:", err)
			return
		}
		newValue, err := bucket.IsRateLimited(value)
		switch {
		case errors.Is(err, limiter.ErrRateExceeded):
			fmt.Println("throttled")
			continue
		case err != nil:
			fmt.Println("decide:", err)
			return
		}
		if err := store.CompareAndSwap(ctx, "user_42", token, newValue); err != nil {
			fmt.Println("commit:", err)
			return
		}
		fmt.Println("admitted")
	}
	// Output:
	// admitted
	// admitted
	// throttled
}

func ExampleNewRateLimiter() {
	cfg := &limiter.Config{
		StorageType: limiter.StorageMemory,
		Rules: []limiter.Rule{{
			Path:      "/api/resolve",
			Algorithm: limiter.AlgorithmFixedWindow,
			Limit:     2,
			Window:    60,
			LimitBy:   []string{limiter.LimitByIP},
		}},
	}
	if err := cfg.ValidateAndPrepare(); err != nil {
		fmt.Println("config:", err)
		return
	}

	rl := limiter.NewRateLimiter(cfg, limiter.NewMemoryStore(),
		limiter.WithMaxRetries(3),
		limiter.WithRetryDelay(5*time.Millisecond),
	)
	rl.SetExtractor(func(ctx context.Context, limitType string) string {
		if limitType == limiter.LimitByIP {
			return "203.0.113.7"
		}
		return ""
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		fmt.Println(rl.Limit(ctx, "/api/resolve"))
	}
	// Output:
	// false
	// false
	// true
}
