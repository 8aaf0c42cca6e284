package redisad

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// only the holder's token may delete the key
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// only the holder's token may extend the key
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

const minRenewEvery = 10 * time.Millisecond

// Locker hands out expiring leases so that only one process runs a poll
// cycle at a time. A held lease is extended every ttl/3 until released, so
// the ttl bounds how long a crashed holder blocks others, not cycle length.
type Locker struct{ c *redis.Client }

func NewLocker(c *redis.Client) *Locker { return &Locker{c: c} }

func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.c.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(key, token, ttl, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			// the caller's ctx may already be done
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.c, []string{key}, token).Err(); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("lease release failed")
			}
		})
	}
	return release, true, nil
}

func (l *Locker) renew(key, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	every := ttl / 3
	if every < minRenewEvery {
		every = minRenewEvery
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			n, err := renewScript.Run(ctx, l.c, []string{key}, token, ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("lease renewal failed")
				continue
			}
			if n == 0 {
				log.Warn().Str("key", key).Msg("lease lost before release")
				return
			}
		}
	}
}
