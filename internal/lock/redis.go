package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-reservation/internal/logger"
)

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every service instance. A crashed holder's
// lock expires after TTL.
type Redis struct {
	Client *redis.Client
	Logger *logger.Logger
	TTL    time.Duration
	// Wait bounds how long Acquire polls before giving up.
	Wait   time.Duration
	Prefix string
}

func NewRedis(client *redis.Client, log *logger.Logger, ttl, wait time.Duration) *Redis {
	return &Redis{
		Client: client,
		Logger: log,
		TTL:    ttl,
		Wait:   wait,
		Prefix: "event_lock:",
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := r.Prefix + key
	token := uuid.NewString()

	if r.Wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Wait)
		defer cancel()
	}

	backoff := 5 * time.Millisecond
	for {
		ok, err := r.Client.SetNX(ctx, redisKey, token, r.TTL).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire %s: %w", redisKey, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire %s: %w", redisKey, errors.Join(ErrNotAcquired, ctx.Err()))
		case <-time.After(backoff):
		}
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}

	return func() {
		// release on a fresh context so a cancelled request still unlocks
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, r.Client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			if r.Logger != nil {
				r.Logger.Warn("REDIS", fmt.Sprintf("Failed to release %s: %v", redisKey, err))
			}
		}
	}, nil
}

// Held reports whether key is currently locked by anyone.
func (r *Redis) Held(ctx context.Context, key string) (bool, error) {
	n, err := r.Client.Exists(ctx, r.Prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
