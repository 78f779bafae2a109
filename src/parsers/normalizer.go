package parsers

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
)

// Timestamps without an explicit zone are treated as Warsaw wall-clock time.
const marketTimezone = "Europe/Warsaw"

// Accepted timestamp layouts, tried in order. The first two carry an offset,
// the rest are interpreted in the market timezone.
var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
}

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
}

type Normalizer struct {
	location *time.Location
}

func NewNormalizer() (*Normalizer, error) {
	loc, err := time.LoadLocation(marketTimezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", marketTimezone, err)
	}
	return &Normalizer{location: loc}, nil
}

// Normalize converts validated rows into transactions grouped by ISIN.
// Rows within a group are ordered by time; rows with identical timestamps
// keep their input order. Transaction IDs are assigned in chronological order.
func (n *Normalizer) Normalize(rows []CSVRow) (map[string]models.TransactionGroup, error) {
	transactions := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := n.normalizeRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", row.Line, err)
		}
		transactions = append(transactions, tx)
	}

	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Time.Before(transactions[j].Time)
	})
	for i := range transactions {
		transactions[i].ID = i + 1
	}

	groups := make(map[string]models.TransactionGroup)
	for _, tx := range transactions {
		group, ok := groups[tx.ISIN]
		if !ok {
			group = models.TransactionGroup{ISIN: tx.ISIN, Ticker: tx.Ticker}
		}
		group.Transactions = append(group.Transactions, tx)
		groups[tx.ISIN] = group
	}

	logger.L.Info("Normalized transactions", "transactionCount", len(transactions), "instrumentCount", len(groups))
	return groups, nil
}

func (n *Normalizer) normalizeRow(row CSVRow) (models.Transaction, error) {
	action, err := ParseAction(row.Action)
	if err != nil {
		return models.Transaction{}, err
	}

	when, err := n.ParseTime(row.Time)
	if err != nil {
		return models.Transaction{}, err
	}

	shares, err := ParseDecimal(row.Shares)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("invalid share count %q: %w", row.Shares, err)
	}
	price, err := ParseDecimal(row.PricePerShare)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("invalid price %q: %w", row.PricePerShare, err)
	}

	tx := models.Transaction{
		Action:        action,
		Time:          when,
		ISIN:          strings.ToUpper(row.ISIN),
		Ticker:        strings.ToUpper(row.Ticker),
		Name:          row.Name,
		Shares:        shares,
		PricePerShare: price,
		Currency:      strings.ToUpper(row.Currency),
		Notes:         row.Notes,
	}

	if row.ExchangeRate != "" {
		rate, err := ParseDecimal(row.ExchangeRate)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("invalid exchange rate %q: %w", row.ExchangeRate, err)
		}
		tx.ExchangeRate = rate
	}
	if row.Total != "" {
		total, err := ParseDecimal(row.Total)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("invalid total %q: %w", row.Total, err)
		}
		tx.Total = total
	}

	return tx, nil
}

// ParseAction maps a raw action cell to a buy or sell. Broker exports label
// regular orders as "Market buy" and "Market sell".
func ParseAction(raw string) (models.TransactionAction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "market buy", "limit buy", "stop buy":
		return models.ActionBuy, nil
	case "sell", "market sell", "limit sell", "stop sell":
		return models.ActionSell, nil
	default:
		return "", fmt.Errorf("unknown action %q", raw)
	}
}

// ParseTime accepts offset-qualified timestamps as-is and interprets bare
// timestamps in the market timezone.
func (n *Normalizer) ParseTime(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.In(n.location), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, n.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// ParseDecimal strips thousands separators before parsing. Exports format
// large amounts like "1,234.56".
func ParseDecimal(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty numeric value")
	}
	return decimal.NewFromString(cleaned)
}
