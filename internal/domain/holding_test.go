package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCachedHolding_ChecksumIgnoresScaleAndCase(t *testing.T) {
	a := &CachedHolding{
		Symbol:       "infy",
		Quantity:     decimal.RequireFromString("10.00"),
		AveragePrice: decimal.RequireFromString("1450.5"),
	}
	b := &CachedHolding{
		Symbol:       " INFY ",
		Quantity:     decimal.NewFromInt(10),
		AveragePrice: decimal.RequireFromString("1450.50"),
	}

	assert.Equal(t, a.ComputeChecksum(), b.ComputeChecksum())
	assert.Len(t, a.ComputeChecksum(), 64)
}

func TestCachedHolding_ChecksumIgnoresNonFinancialFields(t *testing.T) {
	a := &CachedHolding{Symbol: "TCS", Quantity: decimal.NewFromInt(3), AveragePrice: decimal.NewFromInt(3500)}
	b := *a
	b.LastPrice = decimal.NewFromInt(3600)
	b.PnL = decimal.NewFromInt(300)

	assert.Equal(t, a.ComputeChecksum(), b.ComputeChecksum())
}

func TestCachedHolding_ChecksumChangesWithQuantity(t *testing.T) {
	a := &CachedHolding{Symbol: "TCS", Quantity: decimal.NewFromInt(3), AveragePrice: decimal.NewFromInt(3500)}
	b := *a
	b.Quantity = decimal.NewFromInt(4)

	assert.NotEqual(t, a.ComputeChecksum(), b.ComputeChecksum())
}

func TestCachedPosition_ChecksumIncludesPositionType(t *testing.T) {
	a := &CachedPosition{
		Symbol:       "SBIN",
		PositionType: PositionIntraday,
		Quantity:     decimal.NewFromInt(50),
		AveragePrice: decimal.NewFromInt(800),
	}
	b := *a
	b.PositionType = PositionDelivery

	assert.NotEqual(t, a.ComputeChecksum(), b.ComputeChecksum())
}

func TestPositionTypeForProduct(t *testing.T) {
	assert.Equal(t, PositionDelivery, PositionTypeForProduct("cnc"))
	assert.Equal(t, PositionDerivative, PositionTypeForProduct("NRML"))
	assert.Equal(t, PositionIntraday, PositionTypeForProduct("MIS"))
	assert.Equal(t, PositionIntraday, PositionTypeForProduct(""))
}
