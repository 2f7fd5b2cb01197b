package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockfolio/internal/domain"
)

func TestBrokerAccountRepository_OneActivePerUserAndBroker(t *testing.T) {
	ctx := context.Background()
	repo := NewBrokerAccountRepository()
	userID := uuid.New()

	first := &domain.BrokerAccount{UserID: userID, Broker: domain.BrokerZerodha, IsActive: true, HasCredentials: true}
	require.NoError(t, repo.Save(ctx, first))

	second := &domain.BrokerAccount{UserID: userID, Broker: domain.BrokerZerodha, IsActive: true}
	assert.ErrorIs(t, repo.Save(ctx, second), domain.ErrActiveAccountExists)

	other := &domain.BrokerAccount{UserID: userID, Broker: domain.BrokerUpstox, IsActive: true}
	require.NoError(t, repo.Save(ctx, other))

	require.NoError(t, repo.Deactivate(ctx, first.ID))
	require.NoError(t, repo.Save(ctx, second))

	got, err := repo.GetByUserAndBroker(ctx, userID, domain.BrokerZerodha)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	old, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	assert.False(t, old.HasCredentials)
}

func TestBrokerAccountRepository_FindActivePages(t *testing.T) {
	ctx := context.Background()
	repo := NewBrokerAccountRepository()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(ctx, &domain.BrokerAccount{UserID: uuid.New(), Broker: domain.BrokerDhan, IsActive: true}))
	}
	require.NoError(t, repo.Save(ctx, &domain.BrokerAccount{UserID: uuid.New(), Broker: domain.BrokerDhan}))

	seen := make(map[uuid.UUID]bool)
	for page := 0; ; page++ {
		batch, err := repo.FindActive(ctx, page, 2)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		for _, a := range batch {
			assert.True(t, a.IsActive)
			seen[a.ID] = true
		}
	}
	assert.Len(t, seen, 5)
}

func TestBrokerAccountRepository_UpdateSyncTimestamps(t *testing.T) {
	ctx := context.Background()
	repo := NewBrokerAccountRepository()
	account := &domain.BrokerAccount{UserID: uuid.New(), Broker: domain.BrokerFyers, IsActive: true}
	require.NoError(t, repo.Save(ctx, account))

	used := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateSyncTimestamps(ctx, account.ID, used, nil))

	got, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, used.Equal(*got.LastUsedAt))
	assert.Nil(t, got.LastSuccessfulSync)

	require.NoError(t, repo.UpdateSyncTimestamps(ctx, account.ID, used, &used))
	got, err = repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSuccessfulSync)

	assert.ErrorIs(t, repo.UpdateSyncTimestamps(ctx, uuid.New(), used, nil), domain.ErrNotFound)
}

func TestHoldingRepository_ScopesByUserAndBroker(t *testing.T) {
	ctx := context.Background()
	repo := NewHoldingRepository()
	userID := uuid.New()

	rows := []*domain.CachedHolding{
		{ID: uuid.New(), UserID: userID, Broker: domain.BrokerZerodha, Symbol: "INFY", Quantity: decimal.NewFromInt(1)},
		{ID: uuid.New(), UserID: userID, Broker: domain.BrokerUpstox, Symbol: "INFY", Quantity: decimal.NewFromInt(2)},
		{ID: uuid.New(), UserID: uuid.New(), Broker: domain.BrokerZerodha, Symbol: "TCS", Quantity: decimal.NewFromInt(3)},
	}
	for _, h := range rows {
		require.NoError(t, repo.Upsert(ctx, h))
	}

	zerodha, err := repo.GetByUserAndBroker(ctx, userID, domain.BrokerZerodha)
	require.NoError(t, err)
	require.Len(t, zerodha, 1)
	assert.Equal(t, rows[0].ID, zerodha[0].ID)

	all, err := repo.GetByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Returned rows are copies
	all[0].Symbol = "CHANGED"
	again, _ := repo.GetByUser(ctx, userID)
	assert.NotEqual(t, "CHANGED", again[0].Symbol)

	require.NoError(t, repo.Delete(ctx, rows[0].ID))
	require.NoError(t, repo.Delete(ctx, rows[0].ID))
	assert.Equal(t, 2, repo.Count())
}

func TestPriceStore_GetManyAndPurge(t *testing.T) {
	ctx := context.Background()
	store := NewPriceStore()
	now := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, &domain.MarketPrice{Symbol: "infy", Price: decimal.NewFromInt(1500), UpdatedAt: now}))
	require.NoError(t, store.Upsert(ctx, &domain.MarketPrice{Symbol: "TCS", Price: decimal.NewFromInt(3500), UpdatedAt: now.Add(-48 * time.Hour)}))

	_, err := store.Get(ctx, "SBIN")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := store.GetMany(ctx, []string{"INFY", "tcs", "SBIN"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "TCS")

	purged, err := store.PurgeOlderThan(ctx, now.Add(-25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = store.Get(ctx, "TCS")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncLogRepository_NewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewSyncLogRepository()
	userID := uuid.New()
	base := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, &domain.SyncLog{UserID: userID, Status: domain.SyncSuccess, Timestamp: base}))
	require.NoError(t, repo.Append(ctx, &domain.SyncLog{UserID: userID, Status: domain.SyncFailure, Timestamp: base.Add(time.Hour)}))
	require.NoError(t, repo.Append(ctx, &domain.SyncLog{UserID: uuid.New(), Status: domain.SyncSuccess, Timestamp: base.Add(2 * time.Hour)}))

	logs, err := repo.ListByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.SyncFailure, logs[0].Status)

	latest, err := repo.LatestSuccessForUser(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, base.Equal(*latest))

	none, err := repo.LatestSuccessForUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, none)
}
