package keylock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/blog-ugc/internal/platform/logging"
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions tunes the distributed lock.
type RedisOptions struct {
	TTL        time.Duration // lease length, default 5s
	RetryDelay time.Duration // poll interval while contended, default 25ms
}

// Redis is a lease-based lock shared by every replica. When Redis is
// unreachable or the breaker is open it degrades to a process-local lock.
type Redis struct {
	client   redis.UniversalClient
	opts     RedisOptions
	cb       *gobreaker.CircuitBreaker
	fallback *Local
	log      *zap.Logger
}

// NewRedisClient parses dsn as a redis:// URL, or as a bare address.
func NewRedisClient(dsn string) *redis.Client {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		opts = &redis.Options{Addr: dsn}
	}
	return redis.NewClient(opts)
}

func NewRedis(client redis.UniversalClient, opts RedisOptions, log *zap.Logger) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 25 * time.Millisecond
	}
	log = logging.OrNop(log)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ugc-keylock",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &Redis{client: client, opts: opts, cb: cb, fallback: NewLocal(), log: log}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	for {
		res, err := r.cb.Execute(func() (interface{}, error) {
			return r.client.SetNX(ctx, key, token, r.opts.TTL).Result()
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
				r.log.Warn("keylock: redis unavailable, using local lock", zap.String("key", key), zap.Error(err))
			}
			return r.fallback.Lock(ctx, key)
		}
		if acquired, _ := res.(bool); acquired {
			return func() { r.unlock(key, token) }, nil
		}

		t := time.NewTimer(r.opts.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (r *Redis) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := unlockScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		// The lease expires on its own.
		r.log.Warn("keylock: release failed", zap.String("key", key), zap.Error(err))
	}
}
