package processors

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
)

func calcWithGainLoss(gainLoss string) models.SaleCalculation {
	gl := decimal.RequireFromString(gainLoss)
	return models.SaleCalculation{
		ISIN:        testISIN,
		SellDate:    time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		GainLossPLN: gl,
	}
}

func TestAggregateMixedGainsAndLosses(t *testing.T) {
	calcs := []models.SaleCalculation{
		calcWithGainLoss("1380"),
		calcWithGainLoss("-200.50"),
		calcWithGainLoss("19.50"),
	}

	summary := NewSummaryProcessor().Aggregate(2024, calcs, []string{"a warning"})

	assert.Equal(t, 2024, summary.Year)
	assert.Equal(t, "1399.5", summary.TotalGainsPLN.String())
	assert.Equal(t, "200.5", summary.TotalLossesPLN.String(), "losses are a non-negative magnitude")
	assert.Equal(t, "1199", summary.NetTaxableAmountPLN.String())
	assert.Equal(t, "227.81", summary.EstimatedTaxPLN.String())
	assert.Equal(t, 3, summary.TotalTransactions)
	assert.Equal(t, []string{"a warning"}, summary.Warnings)
}

func TestAggregateReferenceScenario(t *testing.T) {
	summary := NewSummaryProcessor().Aggregate(2024, []models.SaleCalculation{calcWithGainLoss("1380")}, nil)

	assert.Equal(t, "1380", summary.TotalGainsPLN.String())
	assert.Equal(t, "0", summary.TotalLossesPLN.String())
	assert.Equal(t, "1380", summary.NetTaxableAmountPLN.String())
	assert.Equal(t, "262.2", summary.EstimatedTaxPLN.String())
}

func TestAggregateNegativeNetKeepsNegativeTax(t *testing.T) {
	summary := NewSummaryProcessor().Aggregate(2024, []models.SaleCalculation{calcWithGainLoss("-1000")}, nil)

	assert.Equal(t, "0", summary.TotalGainsPLN.String())
	assert.Equal(t, "1000", summary.TotalLossesPLN.String())
	assert.Equal(t, "-1000", summary.NetTaxableAmountPLN.String())
	assert.Equal(t, "-190", summary.EstimatedTaxPLN.String(), "informational tax is not clamped at zero")
}

func TestAggregateZeroGainLossCountsAsLossBucket(t *testing.T) {
	summary := NewSummaryProcessor().Aggregate(2024, []models.SaleCalculation{calcWithGainLoss("0")}, nil)
	assert.Equal(t, "0", summary.TotalGainsPLN.String())
	assert.Equal(t, "0", summary.TotalLossesPLN.String())
}

func TestAggregateEmpty(t *testing.T) {
	summary := NewSummaryProcessor().Aggregate(2023, nil, nil)

	require.NotNil(t, summary.Calculations)
	require.NotNil(t, summary.Warnings)
	assert.Empty(t, summary.Calculations)
	assert.Equal(t, 0, summary.TotalTransactions)
	assert.Equal(t, "0", summary.NetTaxableAmountPLN.String())
}
