package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

var disputeRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisDisputeRateLimiter implements distributed per-user rate limiting on
// dispute opening using Redis. The counter window is one hour.
type RedisDisputeRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisDisputeRateLimiter(client redis.UniversalClient, prefix string) *RedisDisputeRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "sailhaven:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisDisputeRateLimiter{
		client: client,
		prefix: trimmedPrefix,
	}
}

// Allow consumes one dispute-open attempt for the user and reports whether
// the hourly limit still permits it.
func (r *RedisDisputeRateLimiter) Allow(ctx context.Context, userID string, limitPerHour int) (bool, error) {
	if r == nil || r.client == nil || limitPerHour <= 0 {
		return true, nil
	}
	subject := strings.TrimSpace(userID)
	if subject == "" {
		return true, nil
	}

	const windowMs = int64(60 * 60 * 1000)
	key := fmt.Sprintf("%s:disputes:%s", r.prefix, subject)
	rawResult, err := disputeRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return true, err
	}

	count, ok := rawResult.(int64)
	if !ok {
		return true, fmt.Errorf("unexpected redis limiter response type: %T", rawResult)
	}
	return count <= int64(limitPerHour), nil
}
