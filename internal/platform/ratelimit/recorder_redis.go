package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisRecorder keeps admission counters in Redis so they survive restarts
// and can be read by other instances. The limiter itself stays local.
//
// Layout:
//
//	<prefix>:total               hash allowed|burst|minute, never expires
//	<prefix>:minute:YYYYMMDDhhmm hash per-minute bucket, expires after ttl
//	<prefix>:route               hash "METHOD /path:field"
type RedisRecorder struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type RedisRecorderOption func(*RedisRecorder)

func WithRecorderPrefix(prefix string) RedisRecorderOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

func WithRecorderTTL(ttl time.Duration) RedisRecorderOption {
	return func(r *RedisRecorder) { r.ttl = ttl }
}

func NewRedisRecorder(rdb redis.UniversalClient, opts ...RedisRecorderOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:    rdb,
		prefix: "totem:admission",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRecorder) totalKey() string { return r.prefix + ":total" }

func (r *RedisRecorder) bucketKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
}

func routeField(method, path, f string) string {
	route := strings.TrimSpace(strings.TrimSpace(method) + " " + strings.TrimSpace(path))
	if route == "" {
		return ""
	}
	return route + ":" + f
}

func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	f := field(ev)

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.totalKey(), f, 1)
	bucket := r.bucketKey(at)
	pipe.HIncrBy(ctx, bucket, f, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, bucket, r.ttl)
	}
	if rf := routeField(ev.Method, ev.Path, f); rf != "" {
		pipe.HIncrBy(ctx, r.prefix+":route", rf, 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.WithMessage(err, "redis pipeline exec")
	}
	return nil
}

func (r *RedisRecorder) Totals(ctx context.Context) (Totals, error) {
	if r == nil || r.rdb == nil {
		return Totals{}, nil
	}
	vals, err := r.rdb.HGetAll(ctx, r.totalKey()).Result()
	if err != nil {
		return Totals{}, errors.WithMessage(err, "redis hgetall")
	}
	return Totals{
		Allowed:   parseCount(vals["allowed"]),
		Burst:     parseCount(vals["burst"]),
		Sustained: parseCount(vals["minute"]),
	}, nil
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
