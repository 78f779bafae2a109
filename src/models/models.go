package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionAction is the type of a brokerage transaction.
type TransactionAction string

const (
	ActionBuy  TransactionAction = "BUY"
	ActionSell TransactionAction = "SELL"
)

// SupportedCurrencies are the currencies the NBP table A covers that this
// service accepts, plus PLN itself.
var SupportedCurrencies = map[string]bool{
	"PLN": true,
	"USD": true,
	"EUR": true,
	"GBP": true,
	"CHF": true,
	"JPY": true,
	"CAD": true,
	"AUD": true,
}

// Transaction is a single normalized buy or sell transaction.
// Immutable once produced by the normalizer.
type Transaction struct {
	ID            int               `json:"id"`
	Action        TransactionAction `json:"action"`
	Time          time.Time         `json:"time"`
	ISIN          string            `json:"isin"`
	Ticker        string            `json:"ticker"`
	Name          string            `json:"name"`
	Shares        decimal.Decimal   `json:"shares"`
	PricePerShare decimal.Decimal   `json:"pricePerShare"`
	Currency      string            `json:"currency"`
	ExchangeRate  decimal.Decimal   `json:"exchangeRate"` // broker-reported, informational only
	Total         decimal.Decimal   `json:"total"`
	Notes         string            `json:"notes,omitempty"`
}

// TransactionGroup holds all transactions for one ISIN, sorted by time.
type TransactionGroup struct {
	ISIN         string        `json:"isin"`
	Ticker       string        `json:"ticker"`
	Transactions []Transaction `json:"transactions"`
}

// RateMap maps "CURRENCY_YYYY-MM-DD" keys to PLN mid rates. Built once per
// batch, read-only afterwards.
type RateMap map[string]decimal.Decimal

// RateKey builds the composite lookup key for a currency and trade date.
// Only the calendar date of the timestamp is significant.
func RateKey(currency string, date time.Time) string {
	return currency + "_" + date.Format("2006-01-02")
}

// DateOnly strips the time-of-day and location from a timestamp, keeping the
// wall-clock calendar date.
func DateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Rate returns the PLN rate for a currency and trade date.
func (m RateMap) Rate(currency string, date time.Time) (decimal.Decimal, bool) {
	rate, ok := m[RateKey(currency, date)]
	return rate, ok
}

// NBPExchangeRateResponse is the NBP API response for a single-date rate query.
type NBPExchangeRateResponse struct {
	Table    string    `json:"table"`
	Currency string    `json:"currency"`
	Code     string    `json:"code"`
	Rates    []NBPRate `json:"rates"`
}

// NBPRate is one entry of the NBP rates array.
type NBPRate struct {
	No            string          `json:"no"`
	EffectiveDate string          `json:"effectiveDate"`
	Mid           decimal.Decimal `json:"mid"`
}

// MatchedBuy records one FIFO pairing between a sell and (part of) a buy lot.
type MatchedBuy struct {
	BuyDate          time.Time       `json:"buyDate"`
	SharesMatched    decimal.Decimal `json:"sharesMatched"`
	BuyPricePerShare decimal.Decimal `json:"buyPricePerShare"`
	BuyCurrency      string          `json:"buyCurrency"`
	CostBasisPLN     decimal.Decimal `json:"costBasisPLN"`
}

// SaleCalculation aggregates all FIFO matches for one sell transaction.
type SaleCalculation struct {
	ISIN              string          `json:"isin"`
	Ticker            string          `json:"ticker"`
	Name              string          `json:"name"`
	SellDate          time.Time       `json:"sellDate"`
	SharesSold        decimal.Decimal `json:"sharesSold"`
	SellPricePerShare decimal.Decimal `json:"sellPricePerShare"`
	SellCurrency      string          `json:"sellCurrency"`
	MatchedBuys       []MatchedBuy    `json:"matchedBuys"`
	CostBasisPLN      decimal.Decimal `json:"costBasisPLN"`
	ProceedsPLN       decimal.Decimal `json:"proceedsPLN"`
	GainLossPLN       decimal.Decimal `json:"gainLossPLN"`
}

// IsGain reports whether the sale is classified as a gain. A zero result is
// not a gain.
func (c SaleCalculation) IsGain() bool {
	return c.GainLossPLN.IsPositive()
}

// TaxSummary is the year-level aggregation of all sale calculations.
type TaxSummary struct {
	Year                int               `json:"year"`
	Calculations        []SaleCalculation `json:"calculations"`
	TotalGainsPLN       decimal.Decimal   `json:"totalGainsPLN"`
	TotalLossesPLN      decimal.Decimal   `json:"totalLossesPLN"`
	NetTaxableAmountPLN decimal.Decimal   `json:"netTaxableAmountPLN"`
	EstimatedTaxPLN     decimal.Decimal   `json:"estimatedTaxPLN"`
	TotalTransactions   int               `json:"totalTransactions"`
	Warnings            []string          `json:"warnings"`
}
