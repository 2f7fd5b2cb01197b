package adapter

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockfolio/internal/domain"
	"stockfolio/internal/service"
)

// Redis keys for sync locks
const (
	GlobalLockKey        = "stockfolio:lock:global"
	accountLockKeyPrefix = "stockfolio:lock:account:"
)

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSyncLocker is a SyncLocker shared by every instance using the same Redis.
// Locks are leases: a crashed holder's lock expires after its lease.
type RedisSyncLocker struct {
	rdb          *redis.Client
	clock        service.MarketClock
	globalLease  time.Duration
	accountLease time.Duration
	log          zerolog.Logger
}

// NewRedisSyncLocker creates a new Redis backed locker
func NewRedisSyncLocker(rdb *redis.Client, clock service.MarketClock, globalLease, accountLease time.Duration, log zerolog.Logger) *RedisSyncLocker {
	return &RedisSyncLocker{
		rdb:          rdb,
		clock:        clock,
		globalLease:  globalLease,
		accountLease: accountLease,
		log:          log.With().Str("component", "redis_lock").Logger(),
	}
}

// TryAcquireGlobal takes the fleet-wide lock without blocking
func (l *RedisSyncLocker) TryAcquireGlobal(ctx context.Context) (domain.Lease, bool) {
	return l.acquire(ctx, GlobalLockKey, l.globalLease)
}

// ReleaseGlobal releases the fleet-wide lock if lease still owns it
func (l *RedisSyncLocker) ReleaseGlobal(ctx context.Context, lease domain.Lease) {
	l.release(ctx, lease)
}

// TryAcquireAccount takes the lock for one account without blocking
func (l *RedisSyncLocker) TryAcquireAccount(ctx context.Context, accountID uuid.UUID) (domain.Lease, bool) {
	return l.acquire(ctx, accountLockKey(accountID), l.accountLease)
}

// ReleaseAccount releases an account lock if lease still owns it
func (l *RedisSyncLocker) ReleaseAccount(ctx context.Context, lease domain.Lease) {
	l.release(ctx, lease)
}

// IsMarketOpen delegates to the market clock
func (l *RedisSyncLocker) IsMarketOpen() bool {
	return l.clock.IsMarketOpen()
}

func (l *RedisSyncLocker) acquire(ctx context.Context, key string, lease time.Duration) (domain.Lease, bool) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, lease).Result()
	if err != nil {
		// An unreachable Redis means nobody can prove the lock is free
		l.log.Warn().Err(err).Str("key", key).Msg("Lock acquire failed")
		return domain.Lease{}, false
	}
	if !ok {
		return domain.Lease{}, false
	}
	return domain.Lease{Key: key, Token: token}, true
}

func (l *RedisSyncLocker) release(ctx context.Context, lease domain.Lease) {
	if !lease.Held() {
		return
	}

	// Release even when the caller's context is already done
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(releaseCtx, l.rdb, []string{lease.Key}, lease.Token).Err(); err != nil {
		l.log.Warn().Err(err).Str("key", lease.Key).Msg("Lock release failed, lease will expire")
	}
}

func accountLockKey(id uuid.UUID) string {
	return accountLockKeyPrefix + id.String()
}
