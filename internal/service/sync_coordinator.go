package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockfolio/internal/domain"
)

const globalLockKey = "global"

// MarketClock is the market-hours predicate shared by locks and the price cache
type MarketClock interface {
	IsMarketOpen() bool
}

// SyncCoordinator is the process-local SyncLocker.
// A lock held by a crashed process is released only by restarting it;
// multi-instance deployments use the Redis locker instead.
type SyncCoordinator struct {
	mu    sync.Mutex
	held  map[string]string // lock key -> owner token
	clock MarketClock
	log   zerolog.Logger
}

// NewSyncCoordinator creates a new process-local coordinator
func NewSyncCoordinator(clock MarketClock, log zerolog.Logger) *SyncCoordinator {
	return &SyncCoordinator{
		held:  make(map[string]string),
		clock: clock,
		log:   log.With().Str("component", "sync_coordinator").Logger(),
	}
}

// TryAcquireGlobal takes the fleet-wide lock without blocking
func (c *SyncCoordinator) TryAcquireGlobal(_ context.Context) (domain.Lease, bool) {
	lease, ok := c.acquire(globalLockKey)
	if !ok {
		c.log.Debug().Msg("Global sync lock busy")
	}
	return lease, ok
}

// ReleaseGlobal releases the fleet-wide lock if lease still owns it
func (c *SyncCoordinator) ReleaseGlobal(_ context.Context, lease domain.Lease) {
	c.release(lease)
}

// TryAcquireAccount takes the lock for one account without blocking
func (c *SyncCoordinator) TryAcquireAccount(_ context.Context, accountID uuid.UUID) (domain.Lease, bool) {
	return c.acquire(accountID.String())
}

// ReleaseAccount releases an account lock if lease still owns it
func (c *SyncCoordinator) ReleaseAccount(_ context.Context, lease domain.Lease) {
	c.release(lease)
}

// IsMarketOpen delegates to the market clock
func (c *SyncCoordinator) IsMarketOpen() bool {
	return c.clock.IsMarketOpen()
}

// HeldAccounts returns the number of account locks currently held
func (c *SyncCoordinator) HeldAccounts() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.held)
	if _, ok := c.held[globalLockKey]; ok {
		n--
	}
	return n
}

func (c *SyncCoordinator) acquire(key string) (domain.Lease, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.held[key]; busy {
		return domain.Lease{}, false
	}
	lease := domain.Lease{Key: key, Token: uuid.NewString()}
	c.held[key] = lease.Token
	return lease, true
}

func (c *SyncCoordinator) release(lease domain.Lease) {
	if !lease.Held() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.held[lease.Key] == lease.Token {
		delete(c.held, lease.Key)
	}
}
