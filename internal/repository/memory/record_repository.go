package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"stockfolio/internal/domain"
)

// HoldingRepository is an in-memory domain.HoldingRepository
type HoldingRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]domain.CachedHolding
}

// NewHoldingRepository creates an empty repository
func NewHoldingRepository() *HoldingRepository {
	return &HoldingRepository{rows: make(map[uuid.UUID]domain.CachedHolding)}
}

// Upsert writes a holding by ID
func (r *HoldingRepository) Upsert(_ context.Context, h *domain.CachedHolding) error {
	r.mu.Lock()
	r.rows[h.ID] = *h
	r.mu.Unlock()
	return nil
}

// Delete removes a holding; deleting a missing ID is a no-op
func (r *HoldingRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	delete(r.rows, id)
	r.mu.Unlock()
	return nil
}

// GetByUserAndBroker retrieves the cached set for one (user, broker) pair
func (r *HoldingRepository) GetByUserAndBroker(_ context.Context, userID uuid.UUID, broker domain.Broker) ([]*domain.CachedHolding, error) {
	return r.filter(func(h *domain.CachedHolding) bool {
		return h.UserID == userID && h.Broker == broker
	}), nil
}

// GetByUser retrieves all cached holdings of a user
func (r *HoldingRepository) GetByUser(_ context.Context, userID uuid.UUID) ([]*domain.CachedHolding, error) {
	return r.filter(func(h *domain.CachedHolding) bool { return h.UserID == userID }), nil
}

// Count returns the number of stored rows
func (r *HoldingRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

func (r *HoldingRepository) filter(keep func(*domain.CachedHolding) bool) []*domain.CachedHolding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.CachedHolding
	for _, row := range r.rows {
		h := row
		if keep(&h) {
			out = append(out, &h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Broker != out[j].Broker {
			return out[i].Broker < out[j].Broker
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// PositionRepository is an in-memory domain.PositionRepository
type PositionRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]domain.CachedPosition
}

// NewPositionRepository creates an empty repository
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{rows: make(map[uuid.UUID]domain.CachedPosition)}
}

// Upsert writes a position by ID
func (r *PositionRepository) Upsert(_ context.Context, p *domain.CachedPosition) error {
	r.mu.Lock()
	r.rows[p.ID] = *p
	r.mu.Unlock()
	return nil
}

// Delete removes a position; deleting a missing ID is a no-op
func (r *PositionRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	delete(r.rows, id)
	r.mu.Unlock()
	return nil
}

// GetByUserAndBroker retrieves the cached set for one (user, broker) pair
func (r *PositionRepository) GetByUserAndBroker(_ context.Context, userID uuid.UUID, broker domain.Broker) ([]*domain.CachedPosition, error) {
	return r.filter(func(p *domain.CachedPosition) bool {
		return p.UserID == userID && p.Broker == broker
	}), nil
}

// GetByUser retrieves all cached positions of a user
func (r *PositionRepository) GetByUser(_ context.Context, userID uuid.UUID) ([]*domain.CachedPosition, error) {
	return r.filter(func(p *domain.CachedPosition) bool { return p.UserID == userID }), nil
}

// Count returns the number of stored rows
func (r *PositionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

func (r *PositionRepository) filter(keep func(*domain.CachedPosition) bool) []*domain.CachedPosition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.CachedPosition
	for _, row := range r.rows {
		p := row
		if keep(&p) {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Broker != out[j].Broker {
			return out[i].Broker < out[j].Broker
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
