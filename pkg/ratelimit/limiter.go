package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Window is the fixed admission window. Counters reset entirely at window
// boundaries.
const Window = 60 * time.Second

const (
	DefaultTenantLimit  int64 = 60
	DefaultAddressLimit int64 = 10
)

type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// Limiter throttles per-identity request admission against a shared Redis
// counter, so the limit holds across all server instances.
type Limiter struct {
	rdb *redis.Client
}

func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

func TenantKey(tenantID string) string {
	return "rate:tenant:" + tenantID
}

func AddressKey(addr string) string {
	return "rate:addr:" + addr
}

// The script runs increment-and-expire as one atomic operation, so a
// counter can never outlive its window with no TTL attached.
var admitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Admit increments the counter for the current window and decides the
// request. The expiry is attached on the first increment of each window.
func (l *Limiter) Admit(ctx context.Context, key string, limit int64) (Decision, error) {
	count, err := admitScript.Run(ctx, l.rdb, []string{key}, int64(Window.Seconds())).Int64()
	if err != nil {
		return Decision{}, fmt.Errorf("admit %s: %w", key, err)
	}

	return Decision{
		Allowed:    count <= limit,
		Count:      count,
		RetryAfter: Window,
	}, nil
}
