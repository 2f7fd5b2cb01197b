package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockfolio/internal/domain"
)

const holdingColumns = `
	id, user_id, broker, symbol, exchange, isin, quantity, average_price,
	last_price, close_price, pnl, day_change, checksum, last_updated
`

// HoldingRepositoryImpl implements the HoldingRepository interface
type HoldingRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewHoldingRepository creates a new HoldingRepository
func NewHoldingRepository(db *pgxpool.Pool) domain.HoldingRepository {
	return &HoldingRepositoryImpl{db: db}
}

// Upsert writes a holding keyed by (user, broker, symbol)
func (r *HoldingRepositoryImpl) Upsert(ctx context.Context, h *domain.CachedHolding) error {
	query := `
		INSERT INTO cached_holdings (` + holdingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id, broker, symbol) DO UPDATE SET
			exchange = EXCLUDED.exchange,
			isin = EXCLUDED.isin,
			quantity = EXCLUDED.quantity,
			average_price = EXCLUDED.average_price,
			last_price = EXCLUDED.last_price,
			close_price = EXCLUDED.close_price,
			pnl = EXCLUDED.pnl,
			day_change = EXCLUDED.day_change,
			checksum = EXCLUDED.checksum,
			last_updated = EXCLUDED.last_updated
	`

	_, err := r.db.Exec(ctx, query,
		h.ID,
		h.UserID,
		h.Broker,
		h.Symbol,
		h.Exchange,
		h.ISIN,
		h.Quantity,
		h.AveragePrice,
		h.LastPrice,
		h.ClosePrice,
		h.PnL,
		h.DayChange,
		h.Checksum,
		h.LastUpdated,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert holding %s: %w", h.Symbol, err)
	}

	return nil
}

// Delete removes a holding by ID
func (r *HoldingRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cached_holdings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	return nil
}

// GetByUserAndBroker retrieves the cached set for one (user, broker) pair
func (r *HoldingRepositoryImpl) GetByUserAndBroker(ctx context.Context, userID uuid.UUID, broker domain.Broker) ([]*domain.CachedHolding, error) {
	query := `
		SELECT ` + holdingColumns + `
		FROM cached_holdings
		WHERE user_id = $1 AND broker = $2
		ORDER BY symbol
	`
	return r.query(ctx, query, userID, broker)
}

// GetByUser retrieves all cached holdings of a user
func (r *HoldingRepositoryImpl) GetByUser(ctx context.Context, userID uuid.UUID) ([]*domain.CachedHolding, error) {
	query := `
		SELECT ` + holdingColumns + `
		FROM cached_holdings
		WHERE user_id = $1
		ORDER BY broker, symbol
	`
	return r.query(ctx, query, userID)
}

func (r *HoldingRepositoryImpl) query(ctx context.Context, query string, args ...any) ([]*domain.CachedHolding, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []*domain.CachedHolding
	for rows.Next() {
		h := &domain.CachedHolding{}
		err := rows.Scan(
			&h.ID,
			&h.UserID,
			&h.Broker,
			&h.Symbol,
			&h.Exchange,
			&h.ISIN,
			&h.Quantity,
			&h.AveragePrice,
			&h.LastPrice,
			&h.ClosePrice,
			&h.PnL,
			&h.DayChange,
			&h.Checksum,
			&h.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}
