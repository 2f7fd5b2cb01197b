package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BrokerAccountRepository defines the interface for broker account operations
type BrokerAccountRepository interface {
	// Save creates or updates an account
	Save(ctx context.Context, account *BrokerAccount) error

	// GetByID retrieves an account by ID
	GetByID(ctx context.Context, id uuid.UUID) (*BrokerAccount, error)

	// GetByUserAndBroker retrieves the account for a (user, broker) pair, preferring the active one
	GetByUserAndBroker(ctx context.Context, userID uuid.UUID, broker Broker) (*BrokerAccount, error)

	// ListActiveByUser retrieves every active account of a user
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*BrokerAccount, error)

	// FindActive pages through all active accounts ordered by ID; page is zero-based
	FindActive(ctx context.Context, page, pageSize int) ([]*BrokerAccount, error)

	// UpdateSyncTimestamps stamps last-used and, when non-nil, last-successful-sync
	UpdateSyncTimestamps(ctx context.Context, id uuid.UUID, lastUsed time.Time, lastSuccessful *time.Time) error

	// Deactivate clears credentials and marks the account inactive
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// RecordWriter is the write side the reconciler needs
type RecordWriter[T SyncedRecord] interface {
	Upsert(ctx context.Context, record T) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// HoldingRepository defines the interface for cached holding operations
type HoldingRepository interface {
	RecordWriter[*CachedHolding]

	// GetByUserAndBroker retrieves the cached set for one (user, broker) pair
	GetByUserAndBroker(ctx context.Context, userID uuid.UUID, broker Broker) ([]*CachedHolding, error)

	// GetByUser retrieves all cached holdings of a user
	GetByUser(ctx context.Context, userID uuid.UUID) ([]*CachedHolding, error)
}

// PositionRepository defines the interface for cached position operations
type PositionRepository interface {
	RecordWriter[*CachedPosition]

	// GetByUserAndBroker retrieves the cached set for one (user, broker) pair
	GetByUserAndBroker(ctx context.Context, userID uuid.UUID, broker Broker) ([]*CachedPosition, error)

	// GetByUser retrieves all cached positions of a user
	GetByUser(ctx context.Context, userID uuid.UUID) ([]*CachedPosition, error)
}

// PriceStore defines the interface for cached market prices
type PriceStore interface {
	// Get returns ErrNotFound when the symbol has no row
	Get(ctx context.Context, symbol string) (*MarketPrice, error)

	// GetMany returns the rows that exist, keyed by symbol, regardless of age
	GetMany(ctx context.Context, symbols []string) (map[string]*MarketPrice, error)

	// Upsert writes the row, replacing any previous one
	Upsert(ctx context.Context, price *MarketPrice) error
}

// PricePurger is implemented by price stores without native expiry
type PricePurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SyncLogRepository defines the interface for the sync audit trail
type SyncLogRepository interface {
	// Append writes a new log row
	Append(ctx context.Context, log *SyncLog) error

	// LatestSuccessForUser returns the newest SUCCESS timestamp, nil when none exists
	LatestSuccessForUser(ctx context.Context, userID uuid.UUID) (*time.Time, error)

	// ListByUser returns the newest logs first
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*SyncLog, error)
}
