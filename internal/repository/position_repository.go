package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockfolio/internal/domain"
)

const positionColumns = `
	id, user_id, broker, symbol, exchange, position_type, product, quantity,
	average_price, last_price, close_price, pnl, checksum, last_updated
`

// PositionRepositoryImpl implements the PositionRepository interface
type PositionRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewPositionRepository creates a new PositionRepository
func NewPositionRepository(db *pgxpool.Pool) domain.PositionRepository {
	return &PositionRepositoryImpl{db: db}
}

// Upsert writes a position keyed by (user, broker, symbol)
func (r *PositionRepositoryImpl) Upsert(ctx context.Context, p *domain.CachedPosition) error {
	query := `
		INSERT INTO cached_positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id, broker, symbol) DO UPDATE SET
			exchange = EXCLUDED.exchange,
			position_type = EXCLUDED.position_type,
			product = EXCLUDED.product,
			quantity = EXCLUDED.quantity,
			average_price = EXCLUDED.average_price,
			last_price = EXCLUDED.last_price,
			close_price = EXCLUDED.close_price,
			pnl = EXCLUDED.pnl,
			checksum = EXCLUDED.checksum,
			last_updated = EXCLUDED.last_updated
	`

	_, err := r.db.Exec(ctx, query,
		p.ID,
		p.UserID,
		p.Broker,
		p.Symbol,
		p.Exchange,
		p.PositionType,
		p.Product,
		p.Quantity,
		p.AveragePrice,
		p.LastPrice,
		p.ClosePrice,
		p.PnL,
		p.Checksum,
		p.LastUpdated,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", p.Symbol, err)
	}

	return nil
}

// Delete removes a position by ID
func (r *PositionRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cached_positions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// GetByUserAndBroker retrieves the cached set for one (user, broker) pair
func (r *PositionRepositoryImpl) GetByUserAndBroker(ctx context.Context, userID uuid.UUID, broker domain.Broker) ([]*domain.CachedPosition, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM cached_positions
		WHERE user_id = $1 AND broker = $2
		ORDER BY symbol
	`
	return r.query(ctx, query, userID, broker)
}

// GetByUser retrieves all cached positions of a user
func (r *PositionRepositoryImpl) GetByUser(ctx context.Context, userID uuid.UUID) ([]*domain.CachedPosition, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM cached_positions
		WHERE user_id = $1
		ORDER BY broker, symbol
	`
	return r.query(ctx, query, userID)
}

func (r *PositionRepositoryImpl) query(ctx context.Context, query string, args ...any) ([]*domain.CachedPosition, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.CachedPosition
	for rows.Next() {
		p := &domain.CachedPosition{}
		err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.Broker,
			&p.Symbol,
			&p.Exchange,
			&p.PositionType,
			&p.Product,
			&p.Quantity,
			&p.AveragePrice,
			&p.LastPrice,
			&p.ClosePrice,
			&p.PnL,
			&p.Checksum,
			&p.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}
