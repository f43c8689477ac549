package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis 基于 SET NX PX 的分布式锁。TTL 兜底进程崩溃后锁不释放的情况。
type Redis struct {
	RDB    *redis.Client
	Prefix string
	TTL    time.Duration
	Retry  time.Duration
}

func NewRedis(addr, pass string, db int, ttl time.Duration) *Redis {
	return &Redis{
		RDB:    redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}),
		Prefix: "loan-ledger:lock:",
		TTL:    ttl,
		Retry:  20 * time.Millisecond,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.RDB.Ping(ctx).Err()
}

func (r *Redis) Close() error { return r.RDB.Close() }

func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(keys))

	unlock := func() {
		// 调用方的 ctx 可能已取消，释放用独立 ctx
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = releaseScript.Run(rctx, r.RDB, []string{held[i]}, token).Err()
		}
	}

	for _, k := range keys {
		key := r.Prefix + k
		if err := r.acquire(ctx, key, token); err != nil {
			unlock()
			return nil, err
		}
		held = append(held, key)
	}
	var once sync.Once
	return func() { once.Do(unlock) }, nil
}

func (r *Redis) acquire(ctx context.Context, key, token string) error {
	retry := r.Retry
	if retry <= 0 {
		retry = 20 * time.Millisecond
	}
	for {
		ok, err := r.RDB.SetNX(ctx, key, token, r.TTL).Result()
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-t.C:
		}
	}
}
