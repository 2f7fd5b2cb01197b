package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockfolio/internal/domain"
)

const uniqueViolation = "23505"

const brokerAccountColumns = `
	id, user_id, broker, has_credentials, token_created_at, token_expires_at,
	is_active, last_successful_sync, last_used_at, created_at, updated_at
`

// BrokerAccountRepositoryImpl implements the BrokerAccountRepository interface
type BrokerAccountRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewBrokerAccountRepository creates a new BrokerAccountRepository
func NewBrokerAccountRepository(db *pgxpool.Pool) domain.BrokerAccountRepository {
	return &BrokerAccountRepositoryImpl{db: db}
}

// Save creates or updates an account
func (r *BrokerAccountRepositoryImpl) Save(ctx context.Context, account *domain.BrokerAccount) error {
	now := time.Now()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	query := `
		INSERT INTO broker_accounts (` + brokerAccountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			has_credentials = EXCLUDED.has_credentials,
			token_created_at = EXCLUDED.token_created_at,
			token_expires_at = EXCLUDED.token_expires_at,
			is_active = EXCLUDED.is_active,
			last_successful_sync = EXCLUDED.last_successful_sync,
			last_used_at = EXCLUDED.last_used_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(ctx, query,
		account.ID,
		account.UserID,
		account.Broker,
		account.HasCredentials,
		account.TokenCreatedAt,
		account.TokenExpiresAt,
		account.IsActive,
		account.LastSuccessfulSync,
		account.LastUsedAt,
		account.CreatedAt,
		account.UpdatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrActiveAccountExists
	}
	if err != nil {
		return fmt.Errorf("failed to save broker account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by ID
func (r *BrokerAccountRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.BrokerAccount, error) {
	query := `SELECT ` + brokerAccountColumns + ` FROM broker_accounts WHERE id = $1`

	account, err := scanBrokerAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get broker account by ID: %w", err)
	}

	return account, nil
}

// GetByUserAndBroker prefers the active account, then the most recently updated one
func (r *BrokerAccountRepositoryImpl) GetByUserAndBroker(ctx context.Context, userID uuid.UUID, broker domain.Broker) (*domain.BrokerAccount, error) {
	query := `
		SELECT ` + brokerAccountColumns + `
		FROM broker_accounts
		WHERE user_id = $1 AND broker = $2
		ORDER BY is_active DESC, updated_at DESC
		LIMIT 1
	`

	account, err := scanBrokerAccount(r.db.QueryRow(ctx, query, userID, broker))
	if err != nil {
		return nil, fmt.Errorf("failed to get broker account for %s: %w", broker, err)
	}

	return account, nil
}

// ListActiveByUser retrieves every active account of a user
func (r *BrokerAccountRepositoryImpl) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*domain.BrokerAccount, error) {
	query := `
		SELECT ` + brokerAccountColumns + `
		FROM broker_accounts
		WHERE user_id = $1 AND is_active
		ORDER BY broker
	`

	return r.query(ctx, query, userID)
}

// FindActive pages through all active accounts ordered by ID
func (r *BrokerAccountRepositoryImpl) FindActive(ctx context.Context, page, pageSize int) ([]*domain.BrokerAccount, error) {
	query := `
		SELECT ` + brokerAccountColumns + `
		FROM broker_accounts
		WHERE is_active
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	return r.query(ctx, query, pageSize, page*pageSize)
}

// UpdateSyncTimestamps stamps last-used and, when non-nil, last-successful-sync
func (r *BrokerAccountRepositoryImpl) UpdateSyncTimestamps(ctx context.Context, id uuid.UUID, lastUsed time.Time, lastSuccessful *time.Time) error {
	query := `
		UPDATE broker_accounts
		SET last_used_at = $2,
		    last_successful_sync = COALESCE($3, last_successful_sync),
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, lastUsed, lastSuccessful)
	if err != nil {
		return fmt.Errorf("failed to update sync timestamps: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Deactivate clears credentials and marks the account inactive
func (r *BrokerAccountRepositoryImpl) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE broker_accounts
		SET is_active = FALSE,
		    has_credentials = FALSE,
		    token_created_at = NULL,
		    token_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate broker account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *BrokerAccountRepositoryImpl) query(ctx context.Context, query string, args ...any) ([]*domain.BrokerAccount, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query broker accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.BrokerAccount
	for rows.Next() {
		account, err := scanBrokerAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan broker account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating broker accounts: %w", err)
	}

	return accounts, nil
}

func scanBrokerAccount(row pgx.Row) (*domain.BrokerAccount, error) {
	account := &domain.BrokerAccount{}
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Broker,
		&account.HasCredentials,
		&account.TokenCreatedAt,
		&account.TokenExpiresAt,
		&account.IsActive,
		&account.LastSuccessfulSync,
		&account.LastUsedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}
