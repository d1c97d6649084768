package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores the journal in Redis so several turnstile instances can
// share one audit trail.
//
// Layout under prefix:
//
//	<prefix>:events          sorted set of JSON events scored by UnixNano
//	<prefix>:total           hash {admitted, rejected}, cumulative
//	<prefix>:minute:<ymdhm>  hash {admitted, rejected} per UTC minute
//	<prefix>:key:<key>       hash {admitted, rejected} per key (TrackKeys only)
type RedisBackend struct {
	rdb       *redis.Client
	ownClient bool
	prefix    string
	ttl       time.Duration
	trackKeys bool
	closed    atomic.Bool
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithRedisPrefix sets the key prefix. Default: "turnstile:journal".
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisBackend) {
		if p := strings.Trim(prefix, ":"); p != "" {
			r.prefix = p
		}
	}
}

// WithRedisTTL sets the expiry of per-minute and per-key hashes and of the
// event set. 0 disables expiry.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *RedisBackend) { r.ttl = ttl }
}

// WithRedisTrackKeys enables per-key counter hashes.
func WithRedisTrackKeys(track bool) RedisOption {
	return func(r *RedisBackend) { r.trackKeys = track }
}

// NewRedisBackend wraps an existing client. Close does not close rdb.
func NewRedisBackend(rdb *redis.Client, opts ...RedisOption) *RedisBackend {
	r := &RedisBackend{
		rdb:    rdb,
		prefix: "turnstile:journal",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DialRedis connects to addr and verifies the connection with PING.
// The returned backend owns the client.
func DialRedis(ctx context.Context, redisOpts *redis.Options, opts ...RedisOption) (*RedisBackend, error) {
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", redisOpts.Addr, err)
	}

	r := NewRedisBackend(rdb, opts...)
	r.ownClient = true
	return r, nil
}

func (r *RedisBackend) eventsKey() string { return r.prefix + ":events" }
func (r *RedisBackend) totalKey() string  { return r.prefix + ":total" }

func (r *RedisBackend) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
}

func (r *RedisBackend) keyKey(key string) string {
	return r.prefix + ":key:" + key
}

// Record writes the event and bumps the counters in one pipeline.
func (r *RedisBackend) Record(ctx context.Context, event *Event) error {
	if r.closed.Load() {
		return ErrClosed
	}

	at := event.At
	if at.IsZero() {
		at = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	field := "rejected"
	if event.Admitted {
		field = "admitted"
	}

	pipe := r.rdb.Pipeline()
	pipe.ZAdd(ctx, r.eventsKey(), redis.Z{Score: float64(at.UnixNano()), Member: payload})
	pipe.HIncrBy(ctx, r.totalKey(), field, 1)

	minuteKey := r.minuteKey(at)
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, minuteKey, r.ttl)
		pipe.Expire(ctx, r.eventsKey(), r.ttl)
	}

	if r.trackKeys && strings.TrimSpace(event.Key) != "" {
		keyKey := r.keyKey(event.Key)
		pipe.HIncrBy(ctx, keyKey, field, 1)
		if r.ttl > 0 {
			pipe.Expire(ctx, keyKey, r.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (r *RedisBackend) Query(ctx context.Context, filter Filter) ([]*Event, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	limit := filter.limit()
	var out []*Event
	err := r.scan(ctx, filter, func(e *Event) bool {
		if filter.Match(e) {
			out = append(out, e)
		}
		return len(out) < limit
	})
	return out, err
}

// Summary aggregates matching events from the event set.
func (r *RedisBackend) Summary(ctx context.Context, filter Filter) (*Summary, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	summary := NewSummary()
	err := r.scan(ctx, filter, func(e *Event) bool {
		if filter.Match(e) {
			summary.Add(e)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// Totals returns the cumulative counters. Unlike Summary they are not
// reduced by Cleanup.
func (r *RedisBackend) Totals(ctx context.Context) (*Counts, error) {
	return r.readCounts(ctx, r.totalKey())
}

// MinuteTotals returns the counters of the UTC minute containing at.
func (r *RedisBackend) MinuteTotals(ctx context.Context, at time.Time) (*Counts, error) {
	return r.readCounts(ctx, r.minuteKey(at))
}

// KeyTotals returns the per-key counters. They are only maintained when
// TrackKeys is enabled.
func (r *RedisBackend) KeyTotals(ctx context.Context, key string) (*Counts, error) {
	return r.readCounts(ctx, r.keyKey(key))
}

// Cleanup removes events scored before olderThan.
func (r *RedisBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}

	hi := "(" + strconv.FormatInt(olderThan.UnixNano(), 10)
	n, err := r.rdb.ZRemRangeByScore(ctx, r.eventsKey(), "-inf", hi).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}
	return int(n), nil
}

// Ping sends PING to the server.
func (r *RedisBackend) Ping(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.rdb.Ping(ctx).Err()
}

// Close closes the client if the backend created it.
func (r *RedisBackend) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.ownClient {
		return r.rdb.Close()
	}
	return nil
}

// scanPage is how many events scan fetches per round trip.
const scanPage = 500

// scan walks the event set newest first within the filter's time bounds
// until fn returns false.
func (r *RedisBackend) scan(ctx context.Context, filter Filter, fn func(*Event) bool) error {
	hi := "+inf"
	if !filter.Until.IsZero() {
		hi = "(" + strconv.FormatInt(filter.Until.UnixNano(), 10)
	}
	lo := "-inf"
	if !filter.Since.IsZero() {
		lo = strconv.FormatInt(filter.Since.UnixNano(), 10)
	}

	var offset int64
	for {
		members, err := r.rdb.ZRevRangeByScore(ctx, r.eventsKey(), &redis.ZRangeBy{
			Min:    lo,
			Max:    hi,
			Offset: offset,
			Count:  scanPage,
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to read events: %w", err)
		}

		for _, m := range members {
			var e Event
			if err := json.Unmarshal([]byte(m), &e); err != nil {
				return fmt.Errorf("failed to decode event: %w", err)
			}
			if !fn(&e) {
				return nil
			}
		}

		if len(members) < scanPage {
			return nil
		}
		offset += int64(len(members))
	}
}

func (r *RedisBackend) readCounts(ctx context.Context, hashKey string) (*Counts, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	vals, err := r.rdb.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}

	c := &Counts{}
	if v, ok := vals["admitted"]; ok {
		c.Admitted, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := vals["rejected"]; ok {
		c.Rejected, _ = strconv.ParseInt(v, 10, 64)
	}
	return c, nil
}
