package domain

import (
	"context"

	"github.com/google/uuid"
)

// BrokerClient fetches holdings and positions for one broker
type BrokerClient interface {
	FetchHoldings(ctx context.Context, account *BrokerAccount) ([]*CachedHolding, error)
	FetchPositions(ctx context.Context, account *BrokerAccount) ([]*CachedPosition, error)
}

// QuoteSource fetches a live quote from an external provider
type QuoteSource interface {
	Fetch(ctx context.Context, symbol string) (*Quote, error)
}

// Lease is one successful lock acquisition. Releasing a lease frees the lock
// only while that lease still owns it; the zero Lease releases nothing.
type Lease struct {
	Key   string
	Token string
}

// Held reports whether the lease came from a successful acquisition
func (l Lease) Held() bool {
	return l.Token != ""
}

// SyncLocker provides fleet-wide and per-account mutual exclusion.
// Acquisition never blocks; release is idempotent and safe with a failed
// acquisition's lease.
type SyncLocker interface {
	TryAcquireGlobal(ctx context.Context) (Lease, bool)
	ReleaseGlobal(ctx context.Context, lease Lease)
	TryAcquireAccount(ctx context.Context, accountID uuid.UUID) (Lease, bool)
	ReleaseAccount(ctx context.Context, lease Lease)
	IsMarketOpen() bool
}

// PriceProvider is the read side of the market price cache
type PriceProvider interface {
	GetPrice(ctx context.Context, symbol string) (*MarketPrice, error)
	GetPrices(ctx context.Context, symbols []string) map[string]*MarketPrice
	WarmupPrices(symbols []string)
}
