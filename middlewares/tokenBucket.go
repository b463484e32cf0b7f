package middlewares

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"shorturl-analytics/cache"
)

// TokenBucketScript is a Lua script for token bucket rate limiting.
const TokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refillRate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local bucket = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(bucket[1])
local last_refill = tonumber(bucket[2])
if tokens == nil then
  tokens = capacity
  last_refill = now
end

local delta = now - last_refill
tokens = math.min(capacity, tokens + delta * refillRate)
if tokens < requested then
  return -1
end
tokens = tokens - requested
redis.call("HMSET", key, "tokens", tokens, "last_refill", now)
redis.call("EXPIRE", key, 3600)
return math.floor(tokens)
`

// TokenBucketMiddleware limits a route to capacity requests, refilled at
// refillRate tokens per second. With a Redis store the bucket is shared by
// every instance behind the same Redis; otherwise it lives in memory. Redis
// errors let the request through.
func TokenBucketMiddleware(store *cache.RedisStore, capacity int, refillRate float64) func(http.Handler) http.Handler {
	local := &memoryBucket{capacity: float64(capacity), tokens: float64(capacity), rate: refillRate, last: time.Now()}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokensLeft int64
			if store != nil {
				key := "rate:token:" + r.URL.Path
				now := time.Now().UnixNano() / 1e6 // milliseconds
				res, err := store.Client.Eval(r.Context(), TokenBucketScript, []string{key},
					capacity, refillRate/1000, now, 1).Result()
				if err != nil {
					next.ServeHTTP(w, r)
					return
				}
				left, ok := res.(int64)
				if !ok {
					next.ServeHTTP(w, r)
					return
				}
				tokensLeft = left
			} else {
				tokensLeft = local.take()
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(capacity))
			if tokensLeft < 0 {
				w.Header().Set("X-RateLimit-Remaining", "0")
				http.Error(w, "Rate limit exceeded. Try again later.", http.StatusTooManyRequests)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(tokensLeft, 10))
			next.ServeHTTP(w, r)
		})
	}
}

type memoryBucket struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	rate     float64
	last     time.Time
}

// take removes one token and returns the whole tokens left, or -1 when the
// bucket is empty.
func (b *memoryBucket) take() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.tokens = math.Min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now
	if b.tokens < 1 {
		return -1
	}
	b.tokens--
	return int64(b.tokens)
}
