package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"shiftbook/backend/internal/xid"
)

const (
	defaultLeaseTTL     = 45 * time.Second
	defaultPollInterval = 50 * time.Millisecond
	releaseTimeout      = 3 * time.Second
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a Locker shared across processes. Each lease is a SET NX PX entry holding a
// random token; release deletes the entry only while it still holds that token.
// Leases are not renewed: a locked write must finish within the lease TTL, which is
// one and a half times the acquisition timeout and never below 45s.
type Redis struct {
	client       *redis.Client
	prefix       string
	timeout      time.Duration
	leaseTTL     time.Duration
	pollInterval time.Duration
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedis(client *redis.Client, prefix string, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if prefix == "" {
		prefix = "shiftbook:lock:"
	}
	return &Redis{
		client:       client,
		prefix:       prefix,
		timeout:      timeout,
		leaseTTL:     leaseTTLFor(timeout),
		pollInterval: defaultPollInterval,
	}
}

func leaseTTLFor(timeout time.Duration) time.Duration {
	return max(defaultLeaseTTL, timeout+timeout/2)
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := r.prefix + key
	token := xid.New("lease")

	waitCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(waitCtx, fullKey, token, r.leaseTTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
					defer cancel()
					_ = releaseScript.Run(releaseCtx, r.client, []string{fullKey}, token).Err()
				})
			}, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
			}
			return nil, ErrTimeout
		case <-ticker.C:
		}
	}
}
