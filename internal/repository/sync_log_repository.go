package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockfolio/internal/domain"
)

// SyncLogRepositoryImpl implements the SyncLogRepository interface
type SyncLogRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewSyncLogRepository creates a new SyncLogRepository
func NewSyncLogRepository(db *pgxpool.Pool) domain.SyncLogRepository {
	return &SyncLogRepositoryImpl{db: db}
}

// Append writes a new log row
func (r *SyncLogRepositoryImpl) Append(ctx context.Context, log *domain.SyncLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	query := `
		INSERT INTO sync_logs (
			id, logged_at, user_id, account_id, broker, status, message,
			duration_ms, holdings_changed, positions_changed
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.db.Exec(ctx, query,
		log.ID,
		log.Timestamp,
		log.UserID,
		log.AccountID,
		log.Broker,
		log.Status,
		log.Message,
		log.Duration.Milliseconds(),
		log.HoldingsChanged,
		log.PositionsChanged,
	)

	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}

	return nil
}

// LatestSuccessForUser returns the newest SUCCESS timestamp, nil when none exists
func (r *SyncLogRepositoryImpl) LatestSuccessForUser(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	query := `
		SELECT MAX(logged_at)
		FROM sync_logs
		WHERE user_id = $1 AND status = $2
	`

	var latest *time.Time
	if err := r.db.QueryRow(ctx, query, userID, domain.SyncSuccess).Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to get latest successful sync: %w", err)
	}

	return latest, nil
}

// ListByUser returns the newest logs first
func (r *SyncLogRepositoryImpl) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, logged_at, user_id, account_id, broker, status, message,
		       duration_ms, holdings_changed, positions_changed
		FROM sync_logs
		WHERE user_id = $1
		ORDER BY logged_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.SyncLog
	for rows.Next() {
		l := &domain.SyncLog{}
		var durationMs int64
		err := rows.Scan(
			&l.ID,
			&l.Timestamp,
			&l.UserID,
			&l.AccountID,
			&l.Broker,
			&l.Status,
			&l.Message,
			&durationMs,
			&l.HoldingsChanged,
			&l.PositionsChanged,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		l.Duration = time.Duration(durationMs) * time.Millisecond
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}

	return logs, nil
}
