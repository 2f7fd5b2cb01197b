package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockfolio/internal/domain"
)

// SyncLogRepository is an append-only in-memory domain.SyncLogRepository
type SyncLogRepository struct {
	mu   sync.RWMutex
	logs []domain.SyncLog
}

// NewSyncLogRepository creates an empty repository
func NewSyncLogRepository() *SyncLogRepository {
	return &SyncLogRepository{}
}

// Append writes a new log row
func (r *SyncLogRepository) Append(_ context.Context, log *domain.SyncLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	r.mu.Lock()
	r.logs = append(r.logs, *log)
	r.mu.Unlock()
	return nil
}

// LatestSuccessForUser returns the newest SUCCESS timestamp, nil when none exists
func (r *SyncLogRepository) LatestSuccessForUser(_ context.Context, userID uuid.UUID) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *time.Time
	for _, l := range r.logs {
		if l.UserID != userID || l.Status != domain.SyncSuccess {
			continue
		}
		if latest == nil || l.Timestamp.After(*latest) {
			ts := l.Timestamp
			latest = &ts
		}
	}
	return latest, nil
}

// ListByUser returns the newest logs first; limit <= 0 returns all
func (r *SyncLogRepository) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]*domain.SyncLog, error) {
	r.mu.RLock()
	var out []*domain.SyncLog
	for _, l := range r.logs {
		if l.UserID == userID {
			entry := l
			out = append(out, &entry)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every log in append order
func (r *SyncLogRepository) All() []domain.SyncLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.SyncLog(nil), r.logs...)
}
