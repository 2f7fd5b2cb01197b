// Package memory holds in-process implementations of the domain repositories.
// They back STORAGE_DRIVER=memory and the usecase tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockfolio/internal/domain"
)

// BrokerAccountRepository is an in-memory domain.BrokerAccountRepository
type BrokerAccountRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.BrokerAccount
}

// NewBrokerAccountRepository creates an empty repository
func NewBrokerAccountRepository() *BrokerAccountRepository {
	return &BrokerAccountRepository{accounts: make(map[uuid.UUID]*domain.BrokerAccount)}
}

// Save creates or updates an account, enforcing one active account per user and broker
func (r *BrokerAccountRepository) Save(_ context.Context, account *domain.BrokerAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if account.IsActive {
		for id, other := range r.accounts {
			if id != account.ID && other.IsActive && other.UserID == account.UserID && other.Broker == account.Broker {
				return domain.ErrActiveAccountExists
			}
		}
	}

	now := time.Now()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	r.accounts[account.ID] = copyAccount(account)
	return nil
}

// GetByID retrieves an account by ID
func (r *BrokerAccountRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.BrokerAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyAccount(account), nil
}

// GetByUserAndBroker prefers the active account, then the most recently updated one
func (r *BrokerAccountRepository) GetByUserAndBroker(_ context.Context, userID uuid.UUID, broker domain.Broker) (*domain.BrokerAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *domain.BrokerAccount
	for _, a := range r.accounts {
		if a.UserID != userID || a.Broker != broker {
			continue
		}
		switch {
		case best == nil:
			best = a
		case a.IsActive && !best.IsActive:
			best = a
		case a.IsActive == best.IsActive && a.UpdatedAt.After(best.UpdatedAt):
			best = a
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return copyAccount(best), nil
}

// ListActiveByUser retrieves every active account of a user, ordered by broker
func (r *BrokerAccountRepository) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]*domain.BrokerAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.BrokerAccount
	for _, a := range r.accounts {
		if a.IsActive && a.UserID == userID {
			out = append(out, copyAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Broker < out[j].Broker })
	return out, nil
}

// FindActive pages through active accounts ordered by ID
func (r *BrokerAccountRepository) FindActive(_ context.Context, page, pageSize int) ([]*domain.BrokerAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]*domain.BrokerAccount, 0, len(r.accounts))
	for _, a := range r.accounts {
		if a.IsActive {
			active = append(active, a)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID.String() < active[j].ID.String() })

	start := page * pageSize
	if page < 0 || pageSize <= 0 || start >= len(active) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(active) {
		end = len(active)
	}

	out := make([]*domain.BrokerAccount, 0, end-start)
	for _, a := range active[start:end] {
		out = append(out, copyAccount(a))
	}
	return out, nil
}

// UpdateSyncTimestamps stamps last-used and, when non-nil, last-successful-sync
func (r *BrokerAccountRepository) UpdateSyncTimestamps(_ context.Context, id uuid.UUID, lastUsed time.Time, lastSuccessful *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	account.LastUsedAt = &lastUsed
	if lastSuccessful != nil {
		ts := *lastSuccessful
		account.LastSuccessfulSync = &ts
	}
	account.UpdatedAt = time.Now()
	return nil
}

// Deactivate clears credentials and marks the account inactive
func (r *BrokerAccountRepository) Deactivate(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	account.IsActive = false
	account.HasCredentials = false
	account.TokenCreatedAt = nil
	account.TokenExpiresAt = nil
	account.UpdatedAt = time.Now()
	return nil
}

func copyAccount(a *domain.BrokerAccount) *domain.BrokerAccount {
	cp := *a
	cp.TokenCreatedAt = copyTime(a.TokenCreatedAt)
	cp.TokenExpiresAt = copyTime(a.TokenExpiresAt)
	cp.LastSuccessfulSync = copyTime(a.LastSuccessfulSync)
	cp.LastUsedAt = copyTime(a.LastUsedAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ts := *t
	return &ts
}
