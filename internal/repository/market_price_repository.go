package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockfolio/internal/domain"
)

// MarketPriceRepositoryImpl is the PostgreSQL price store
type MarketPriceRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewMarketPriceRepository creates a new price store backed by market_prices
func NewMarketPriceRepository(db *pgxpool.Pool) *MarketPriceRepositoryImpl {
	return &MarketPriceRepositoryImpl{db: db}
}

// Get returns domain.ErrNotFound when the symbol has no row
func (r *MarketPriceRepositoryImpl) Get(ctx context.Context, symbol string) (*domain.MarketPrice, error) {
	query := `
		SELECT symbol, price, previous_close, updated_at
		FROM market_prices
		WHERE symbol = $1
	`

	p := &domain.MarketPrice{}
	err := r.db.QueryRow(ctx, query, domain.NormalizeSymbol(symbol)).Scan(
		&p.Symbol,
		&p.Price,
		&p.PreviousClose,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market price: %w", err)
	}

	return p, nil
}

// GetMany returns the rows that exist for the given symbols in one query
func (r *MarketPriceRepositoryImpl) GetMany(ctx context.Context, symbols []string) (map[string]*domain.MarketPrice, error) {
	keys := make([]string, 0, len(symbols))
	for _, s := range symbols {
		keys = append(keys, domain.NormalizeSymbol(s))
	}

	query := `
		SELECT symbol, price, previous_close, updated_at
		FROM market_prices
		WHERE symbol = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to query market prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[string]*domain.MarketPrice, len(keys))
	for rows.Next() {
		p := &domain.MarketPrice{}
		if err := rows.Scan(&p.Symbol, &p.Price, &p.PreviousClose, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan market price: %w", err)
		}
		prices[p.Symbol] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating market prices: %w", err)
	}

	return prices, nil
}

// Upsert writes the row, replacing any previous one
func (r *MarketPriceRepositoryImpl) Upsert(ctx context.Context, price *domain.MarketPrice) error {
	query := `
		INSERT INTO market_prices (symbol, price, previous_close, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			price = EXCLUDED.price,
			previous_close = EXCLUDED.previous_close,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(ctx, query,
		domain.NormalizeSymbol(price.Symbol),
		price.Price,
		price.PreviousClose,
		price.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert market price: %w", err)
	}

	return nil
}

// PurgeOlderThan removes rows last updated before cutoff
func (r *MarketPriceRepositoryImpl) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM market_prices WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge market prices: %w", err)
	}
	return tag.RowsAffected(), nil
}
