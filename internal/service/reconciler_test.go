package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockfolio/internal/domain"
)

// holdingTable is a RecordWriter that keeps rows by ID and counts writes
type holdingTable struct {
	rows      map[uuid.UUID]*domain.CachedHolding
	upserts   int
	deletes   int
	failOnKey string
}

func newHoldingTable() *holdingTable {
	return &holdingTable{rows: make(map[uuid.UUID]*domain.CachedHolding)}
}

func (t *holdingTable) Upsert(_ context.Context, h *domain.CachedHolding) error {
	if t.failOnKey != "" && h.RecordKey() == t.failOnKey {
		return errors.New("disk full")
	}
	t.upserts++
	cp := *h
	t.rows[h.ID] = &cp
	return nil
}

func (t *holdingTable) Delete(_ context.Context, id uuid.UUID) error {
	t.deletes++
	delete(t.rows, id)
	return nil
}

func (t *holdingTable) snapshot() []*domain.CachedHolding {
	out := make([]*domain.CachedHolding, 0, len(t.rows))
	for _, h := range t.rows {
		cp := *h
		out = append(out, &cp)
	}
	return out
}

func (t *holdingTable) keys() []string {
	keys := make([]string, 0, len(t.rows))
	for _, h := range t.rows {
		keys = append(keys, h.Symbol)
	}
	return keys
}

func holding(symbol string, qty, avg int64) *domain.CachedHolding {
	return &domain.CachedHolding{
		Broker:       domain.BrokerZerodha,
		Symbol:       symbol,
		Quantity:     decimal.NewFromInt(qty),
		AveragePrice: decimal.NewFromInt(avg),
	}
}

func newTestReconciler() *Reconciler {
	r := NewReconciler(zerolog.Nop())
	r.now = func() time.Time { return time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC) }
	return r
}

func TestReconcile_InsertsIntoEmptyCache(t *testing.T) {
	ctx := context.Background()
	table := newHoldingTable()

	stats, err := Reconcile(ctx, newTestReconciler(), nil,
		[]*domain.CachedHolding{holding("infy", 10, 1500), holding("TCS", 2, 3500)}, table)

	require.NoError(t, err)
	assert.Equal(t, ReconcileStats{Inserted: 2}, stats)
	assert.ElementsMatch(t, []string{"INFY", "TCS"}, table.keys())
	for _, h := range table.rows {
		assert.NotEqual(t, uuid.Nil, h.ID)
		assert.Equal(t, h.ComputeChecksum(), h.Checksum)
	}
}

func TestReconcile_SecondIdenticalRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	table := newHoldingTable()
	r := newTestReconciler()

	_, err := Reconcile(ctx, r, nil, []*domain.CachedHolding{holding("INFY", 10, 1500)}, table)
	require.NoError(t, err)
	upserts := table.upserts

	stats, err := Reconcile(ctx, r, table.snapshot(), []*domain.CachedHolding{holding("INFY", 10, 1500)}, table)
	require.NoError(t, err)
	assert.Equal(t, ReconcileStats{Unchanged: 1}, stats)
	assert.Zero(t, stats.Changed())
	assert.Equal(t, upserts, table.upserts)
	assert.Zero(t, table.deletes)
}

func TestReconcile_UpdatesChangedAndDeletesMissing(t *testing.T) {
	ctx := context.Background()
	table := newHoldingTable()
	r := newTestReconciler()

	_, err := Reconcile(ctx, r, nil, []*domain.CachedHolding{
		holding("INFY", 10, 1500),
		holding("TCS", 2, 3500),
		holding("SBIN", 50, 600),
	}, table)
	require.NoError(t, err)

	var infyID uuid.UUID
	for _, h := range table.rows {
		if h.Symbol == "INFY" {
			infyID = h.ID
		}
	}

	stats, err := Reconcile(ctx, r, table.snapshot(), []*domain.CachedHolding{
		holding("INFY", 12, 1510),
		holding("TCS", 2, 3500),
		holding("WIPRO", 5, 450),
	}, table)
	require.NoError(t, err)

	assert.Equal(t, ReconcileStats{Inserted: 1, Updated: 1, Unchanged: 1, Deleted: 1}, stats)
	assert.ElementsMatch(t, []string{"INFY", "TCS", "WIPRO"}, table.keys())
	require.Contains(t, table.rows, infyID, "updates keep the existing row ID")
	assert.True(t, decimal.NewFromInt(12).Equal(table.rows[infyID].Quantity))
}

func TestReconcile_EmptyFetchClearsCache(t *testing.T) {
	ctx := context.Background()
	table := newHoldingTable()
	r := newTestReconciler()

	_, err := Reconcile(ctx, r, nil, []*domain.CachedHolding{holding("INFY", 10, 1500)}, table)
	require.NoError(t, err)

	stats, err := Reconcile(ctx, r, table.snapshot(), nil, table)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)
	assert.Empty(t, table.rows)
}

func TestReconcile_DuplicateFreshSymbolKeepsLast(t *testing.T) {
	ctx := context.Background()
	table := newHoldingTable()

	stats, err := Reconcile(ctx, newTestReconciler(), nil, []*domain.CachedHolding{
		holding("INFY", 10, 1500),
		holding("infy", 20, 1400),
		holding("", 1, 1),
	}, table)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Inserted)
	require.Len(t, table.rows, 1)
	for _, h := range table.rows {
		assert.True(t, decimal.NewFromInt(20).Equal(h.Quantity))
	}
}

func TestReconcile_DuplicateExistingRowsAreRemoved(t *testing.T) {
	ctx := context.Background()
	table := newHoldingTable()

	a := holding("INFY", 10, 1500)
	a.Stamp(uuid.New(), a.ComputeChecksum(), time.Now())
	b := holding("INFY", 10, 1500)
	b.Stamp(uuid.New(), b.ComputeChecksum(), time.Now())
	table.rows[a.ID] = a
	table.rows[b.ID] = b

	stats, err := Reconcile(ctx, newTestReconciler(), table.snapshot(), []*domain.CachedHolding{holding("INFY", 10, 1500)}, table)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Unchanged)
	assert.Equal(t, 1, stats.Deleted)
	assert.Len(t, table.rows, 1)
}

func TestReconcile_WriteErrorAborts(t *testing.T) {
	ctx := context.Background()
	table := newHoldingTable()
	table.failOnKey = "TCS"

	_, err := Reconcile(ctx, newTestReconciler(), nil, []*domain.CachedHolding{
		holding("TCS", 2, 3500),
		holding("INFY", 10, 1500),
	}, table)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "TCS")
	assert.Empty(t, table.rows)
}
