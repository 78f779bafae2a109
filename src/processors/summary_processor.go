package processors

import (
	"github.com/shopspring/decimal"

	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
)

// taxRate is the flat Polish capital gains tax rate, informational only.
var taxRate = decimal.NewFromFloat(0.19)

// SummaryProcessor folds sale calculations into a year-level tax summary.
type SummaryProcessor struct{}

func NewSummaryProcessor() *SummaryProcessor { return &SummaryProcessor{} }

// Aggregate computes year totals. Losses are reported as a non-negative
// magnitude; the net amount and the estimated tax may both be negative.
func (p *SummaryProcessor) Aggregate(year int, calculations []models.SaleCalculation, warnings []string) models.TaxSummary {
	totalGains := decimal.Zero
	totalLosses := decimal.Zero

	for _, calc := range calculations {
		if calc.IsGain() {
			totalGains = totalGains.Add(calc.GainLossPLN)
		} else {
			totalLosses = totalLosses.Add(calc.GainLossPLN)
		}
	}
	totalLosses = totalLosses.Abs()

	net := totalGains.Sub(totalLosses)

	if calculations == nil {
		calculations = []models.SaleCalculation{}
	}
	if warnings == nil {
		warnings = []string{}
	}

	summary := models.TaxSummary{
		Year:                year,
		Calculations:        calculations,
		TotalGainsPLN:       totalGains,
		TotalLossesPLN:      totalLosses,
		NetTaxableAmountPLN: net,
		EstimatedTaxPLN:     net.Mul(taxRate),
		TotalTransactions:   len(calculations),
		Warnings:            warnings,
	}

	logger.L.Info("Tax summary aggregated",
		"year", year,
		"gainsPLN", totalGains.String(),
		"lossesPLN", totalLosses.String(),
		"netPLN", net.String(),
		"estimatedTaxPLN", summary.EstimatedTaxPLN.String(),
		"transactions", summary.TotalTransactions)

	return summary
}
