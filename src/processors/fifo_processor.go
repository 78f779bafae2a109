package processors

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
)

// InsufficientLotsError means a sell could not be fully covered by prior
// buys. Short selling is unsupported, so this fails the whole batch.
type InsufficientLotsError struct {
	ISIN            string
	UnmatchedShares decimal.Decimal
}

func (e *InsufficientLotsError) Error() string {
	return fmt.Sprintf("cannot sell %s shares of %s: insufficient buy positions",
		e.UnmatchedShares.String(), e.ISIN)
}

// MalformedInputError means a transaction references a currency/date pair
// absent from the rate map. The builder resolves every pair eagerly, so this
// indicates an internal contract violation, not bad user input.
type MalformedInputError struct {
	Currency string
	Date     time.Time
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("no exchange rate in rate map for %s on %s",
		e.Currency, e.Date.Format("2006-01-02"))
}

// FifoProcessor replays each instrument's transactions against a FIFO queue
// of open buy lots and produces one SaleCalculation per sell.
type FifoProcessor struct{}

func NewFifoProcessor() *FifoProcessor { return &FifoProcessor{} }

// openLot is a buy transaction with its remaining unsold share balance.
// Lots live only inside one instrument's matching pass.
type openLot struct {
	tx             models.Transaction
	remaining      decimal.Decimal
	pricePLNPerShr decimal.Decimal
}

// Process matches all groups. Instruments are processed in ascending ISIN
// order so the output is deterministic regardless of map iteration order.
func (p *FifoProcessor) Process(groups map[string]models.TransactionGroup, rates models.RateMap) ([]models.SaleCalculation, []string, error) {
	isins := make([]string, 0, len(groups))
	for isin := range groups {
		isins = append(isins, isin)
	}
	sort.Strings(isins)

	var calculations []models.SaleCalculation
	var warnings []string

	for _, isin := range isins {
		group := groups[isin]
		logger.L.Info("Matching instrument", "isin", isin, "transactionCount", len(group.Transactions))

		calcs, warning, err := p.processInstrument(isin, group.Transactions, rates)
		if err != nil {
			return nil, nil, err
		}
		calculations = append(calculations, calcs...)
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}

	return calculations, warnings, nil
}

// processInstrument replays one instrument's transactions in chronological
// order. Ties on identical timestamps keep original input order (stable sort).
func (p *FifoProcessor) processInstrument(isin string, transactions []models.Transaction, rates models.RateMap) ([]models.SaleCalculation, string, error) {
	txs := make([]models.Transaction, len(transactions))
	copy(txs, transactions)
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Time.Before(txs[j].Time)
	})

	var calculations []models.SaleCalculation
	var queue []openLot

	for _, tx := range txs {
		rate, ok := rates.Rate(tx.Currency, tx.Time)
		if !ok {
			return nil, "", &MalformedInputError{Currency: tx.Currency, Date: tx.Time}
		}

		switch tx.Action {
		case models.ActionBuy:
			queue = append(queue, openLot{
				tx:             tx,
				remaining:      tx.Shares,
				pricePLNPerShr: tx.PricePerShare.Mul(rate),
			})
			logger.L.Debug("Added buy lot to queue",
				"isin", isin, "shares", tx.Shares.String(),
				"price", tx.PricePerShare.String(), "currency", tx.Currency)

		case models.ActionSell:
			calc, rest, err := matchSell(isin, tx, tx.PricePerShare.Mul(rate), queue)
			if err != nil {
				return nil, "", err
			}
			queue = rest
			calculations = append(calculations, calc)
			logger.L.Debug("Processed sell",
				"isin", isin, "shares", tx.Shares.String(), "gainLossPLN", calc.GainLossPLN.String())
		}
	}

	var warning string
	if len(queue) > 0 {
		remaining := decimal.Zero
		for _, lot := range queue {
			remaining = remaining.Add(lot.remaining)
		}
		warning = fmt.Sprintf("ISIN %s: %s shares remain unsold (still held)", isin, remaining.String())
		logger.L.Info("Instrument has unsold shares", "isin", isin, "remainingShares", remaining.String())
	}

	return calculations, warning, nil
}

// matchSell consumes open lots oldest-first until the sell is fully covered.
// Cost basis and proceeds are rounded to 2 decimals per matched slice, before
// summation.
func matchSell(isin string, sell models.Transaction, sellPricePLN decimal.Decimal, queue []openLot) (models.SaleCalculation, []openLot, error) {
	calc := models.SaleCalculation{
		ISIN:              isin,
		Ticker:            sell.Ticker,
		Name:              sell.Name,
		SellDate:          sell.Time,
		SharesSold:        sell.Shares,
		SellPricePerShare: sell.PricePerShare,
		SellCurrency:      sell.Currency,
		CostBasisPLN:      decimal.Zero,
		ProceedsPLN:       decimal.Zero,
	}

	remainingToSell := sell.Shares

	for remainingToSell.IsPositive() && len(queue) > 0 {
		oldest := &queue[0]
		matched := decimal.Min(remainingToSell, oldest.remaining)

		costBasis := matched.Mul(oldest.pricePLNPerShr).Round(2)
		proceeds := matched.Mul(sellPricePLN).Round(2)

		calc.MatchedBuys = append(calc.MatchedBuys, models.MatchedBuy{
			BuyDate:          oldest.tx.Time,
			SharesMatched:    matched,
			BuyPricePerShare: oldest.tx.PricePerShare,
			BuyCurrency:      oldest.tx.Currency,
			CostBasisPLN:     costBasis,
		})
		calc.CostBasisPLN = calc.CostBasisPLN.Add(costBasis)
		calc.ProceedsPLN = calc.ProceedsPLN.Add(proceeds)

		oldest.remaining = oldest.remaining.Sub(matched)
		remainingToSell = remainingToSell.Sub(matched)

		if oldest.remaining.IsZero() {
			queue = queue[1:]
		}
	}

	if remainingToSell.IsPositive() {
		return models.SaleCalculation{}, nil, &InsufficientLotsError{
			ISIN:            isin,
			UnmatchedShares: remainingToSell,
		}
	}

	calc.GainLossPLN = calc.ProceedsPLN.Sub(calc.CostBasisPLN)
	return calc, queue, nil
}
