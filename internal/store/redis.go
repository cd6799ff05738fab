package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tracker-codec/internal/observability"
	"tracker-codec/internal/pipeline"
)

var ErrNotFound = errors.New("store: device not found")

const (
	defaultLastTTL  = 24 * time.Hour
	defaultDedupTTL = 10 * time.Minute
	diagCounterTTL  = 48 * time.Hour
)

// Redis guarda el último estado por dispositivo, los contadores diarios de
// diagnósticos y las huellas de uplinks ya vistos.
type Redis struct {
	rdb      *redis.Client
	lastTTL  time.Duration
	dedupTTL time.Duration
}

type Option func(*Redis)

func WithLastTTL(d time.Duration) Option {
	return func(r *Redis) { r.lastTTL = d }
}

func WithDedupTTL(d time.Duration) Option {
	return func(r *Redis) { r.dedupTTL = d }
}

// Connect abre el cliente y hace PING.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func New(rdb *redis.Client, opts ...Option) *Redis {
	r := &Redis{rdb: rdb, lastTTL: defaultLastTTL, dedupTTL: defaultDedupTTL}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func lastKey(devEUI string) string { return "dev:" + devEUI + ":last" }

func diagKey(devEUI string, day time.Time) string {
	return "dev:" + devEUI + ":diag:" + day.UTC().Format("20060102")
}

func seenKey(fp string) string { return "uplink:seen:" + fp }

func (r *Redis) Name() string { return "redis" }

// Save implementa pipeline.Sink.
func (r *Redis) Save(ctx context.Context, tr *pipeline.TrackingObject) error {
	b, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshal tracking: %w", err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, lastKey(tr.DevEUI), b, r.lastTTL)
		if n := len(tr.Diagnostics); n > 0 {
			key := diagKey(tr.DevEUI, tr.Datetime)
			p.IncrBy(ctx, key, int64(n))
			p.Expire(ctx, key, diagCounterTTL)
		}
		return nil
	})
	if err != nil {
		observability.RedisSetErrors.Inc()
		return fmt.Errorf("redis save %s: %w", tr.DevEUI, err)
	}
	return nil
}

func (r *Redis) Last(ctx context.Context, devEUI string) (*pipeline.TrackingObject, error) {
	b, err := r.rdb.Get(ctx, lastKey(devEUI)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", devEUI, err)
	}
	var tr pipeline.TrackingObject
	if err := json.Unmarshal(b, &tr); err != nil {
		return nil, fmt.Errorf("decode last state %s: %w", devEUI, err)
	}
	return &tr, nil
}

// MarkSeen implementa pipeline.Deduper con SETNX.
func (r *Redis) MarkSeen(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, seenKey(fingerprint), 1, r.dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *Redis) DiagnosticCount(ctx context.Context, devEUI string, day time.Time) (int64, error) {
	n, err := r.rdb.Get(ctx, diagKey(devEUI, day)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get diag %s: %w", devEUI, err)
	}
	return n, nil
}
