package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockfolio/internal/domain"
)

// ReconcileStats counts what one reconciliation pass did
type ReconcileStats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
}

// Changed returns the number of writes performed
func (s ReconcileStats) Changed() int {
	return s.Inserted + s.Updated + s.Deleted
}

// Reconciler aligns a cached (user, broker) record set with a fresh broker fetch
type Reconciler struct {
	now   func() time.Time
	newID func() uuid.UUID
	log   zerolog.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(log zerolog.Logger) *Reconciler {
	return &Reconciler{
		now:   time.Now,
		newID: uuid.New,
		log:   log.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile writes only records whose checksum changed and deletes records
// missing from fresh. Afterwards the stored key set equals the fresh key set.
func Reconcile[T domain.SyncedRecord](ctx context.Context, r *Reconciler, existing, fresh []T, writer domain.RecordWriter[T]) (ReconcileStats, error) {
	var stats ReconcileStats

	existingByKey := make(map[string]T, len(existing))
	var duplicates []T
	for _, rec := range existing {
		key := rec.RecordKey()
		if _, seen := existingByKey[key]; seen {
			duplicates = append(duplicates, rec)
			continue
		}
		existingByKey[key] = rec
	}

	// Last occurrence wins when a broker reports the same symbol twice
	freshByKey := make(map[string]T, len(fresh))
	order := make([]string, 0, len(fresh))
	for _, rec := range fresh {
		key := rec.RecordKey()
		if key == "" {
			r.log.Warn().Msg("Skipping fetched record without symbol")
			continue
		}
		if _, seen := freshByKey[key]; seen {
			r.log.Warn().Str("symbol", key).Msg("Duplicate symbol in fetch, keeping last")
		} else {
			order = append(order, key)
		}
		freshByKey[key] = rec
	}

	now := r.now()
	for _, key := range order {
		rec := freshByKey[key]
		sum := rec.ComputeChecksum()

		prev, exists := existingByKey[key]
		if exists && prev.StoredChecksum() == sum {
			stats.Unchanged++
			continue
		}

		id := r.newID()
		if exists {
			id = prev.RecordID()
		}
		rec.Stamp(id, sum, now)

		if err := writer.Upsert(ctx, rec); err != nil {
			return stats, fmt.Errorf("failed to upsert %s: %w", key, err)
		}
		if exists {
			stats.Updated++
		} else {
			stats.Inserted++
		}
	}

	for key, rec := range existingByKey {
		if _, present := freshByKey[key]; present {
			continue
		}
		if err := writer.Delete(ctx, rec.RecordID()); err != nil {
			return stats, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		stats.Deleted++
	}

	for _, rec := range duplicates {
		if err := writer.Delete(ctx, rec.RecordID()); err != nil {
			return stats, fmt.Errorf("failed to delete duplicate %s: %w", rec.RecordKey(), err)
		}
		stats.Deleted++
	}

	return stats, nil
}
