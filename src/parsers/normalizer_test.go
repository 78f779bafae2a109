package parsers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
)

func row(action, when, isin, shares, price, currency string) CSVRow {
	return CSVRow{
		Action:        action,
		Time:          when,
		ISIN:          isin,
		Ticker:        "TST",
		Name:          "Test Corp",
		Shares:        shares,
		PricePerShare: price,
		Currency:      currency,
	}
}

func TestNormalizeGroupsByISIN(t *testing.T) {
	normalizer, err := NewNormalizer()
	require.NoError(t, err)

	groups, err := normalizer.Normalize([]CSVRow{
		row("Market buy", "2024-01-10 14:30:00", "US0378331005", "10", "150.00", "USD"),
		row("Market buy", "2024-02-05 10:00:00", "DE0007164600", "5", "120.00", "EUR"),
		row("Market sell", "2024-06-20 09:15:00", "US0378331005", "10", "180.00", "USD"),
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	apple := groups["US0378331005"]
	require.Len(t, apple.Transactions, 2)
	assert.Equal(t, models.ActionBuy, apple.Transactions[0].Action)
	assert.Equal(t, models.ActionSell, apple.Transactions[1].Action)
	assert.Equal(t, "TST", apple.Ticker)
}

func TestNormalizeSortsByTimeAndAssignsIDs(t *testing.T) {
	normalizer, err := NewNormalizer()
	require.NoError(t, err)

	groups, err := normalizer.Normalize([]CSVRow{
		row("Sell", "2024-06-20 09:15:00", "US0378331005", "10", "180.00", "USD"),
		row("Buy", "2024-01-10 14:30:00", "US0378331005", "10", "150.00", "USD"),
	})
	require.NoError(t, err)

	txs := groups["US0378331005"].Transactions
	require.Len(t, txs, 2)
	assert.Equal(t, models.ActionBuy, txs[0].Action)
	assert.Equal(t, 1, txs[0].ID)
	assert.Equal(t, 2, txs[1].ID)
	assert.True(t, txs[0].Time.Before(txs[1].Time))
}

func TestNormalizeIdenticalTimestampsKeepInputOrder(t *testing.T) {
	normalizer, err := NewNormalizer()
	require.NoError(t, err)

	first := row("Buy", "2024-01-10 14:30:00", "US0378331005", "10", "150.00", "USD")
	first.Notes = "first"
	second := row("Buy", "2024-01-10 14:30:00", "US0378331005", "5", "151.00", "USD")
	second.Notes = "second"

	groups, err := normalizer.Normalize([]CSVRow{first, second})
	require.NoError(t, err)

	txs := groups["US0378331005"].Transactions
	require.Len(t, txs, 2)
	assert.Equal(t, "first", txs[0].Notes)
	assert.Equal(t, "second", txs[1].Notes)
}

func TestNormalizeUppercasesIdentifiers(t *testing.T) {
	normalizer, err := NewNormalizer()
	require.NoError(t, err)

	r := row("Buy", "2024-01-10 14:30:00", "us0378331005", "10", "150.00", "usd")
	r.Ticker = "aapl"
	groups, err := normalizer.Normalize([]CSVRow{r})
	require.NoError(t, err)

	tx := groups["US0378331005"].Transactions[0]
	assert.Equal(t, "US0378331005", tx.ISIN)
	assert.Equal(t, "AAPL", tx.Ticker)
	assert.Equal(t, "USD", tx.Currency)
}

func TestNormalizeRejectsBadRow(t *testing.T) {
	normalizer, err := NewNormalizer()
	require.NoError(t, err)

	bad := row("Buy", "2024-01-10 14:30:00", "US0378331005", "ten", "150.00", "USD")
	bad.Line = 7
	_, err = normalizer.Normalize([]CSVRow{bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 7")
	assert.Contains(t, err.Error(), "ten")
}

func TestParseTimeBareTimestampUsesWarsaw(t *testing.T) {
	normalizer, err := NewNormalizer()
	require.NoError(t, err)

	when, err := normalizer.ParseTime("2024-01-10 14:30:00")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Warsaw", when.Location().String())
	assert.Equal(t, 14, when.Hour())
}

func TestParseTimeZonedTimestampConverted(t *testing.T) {
	normalizer, err := NewNormalizer()
	require.NoError(t, err)

	when, err := normalizer.ParseTime("2024-06-20T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Warsaw", when.Location().String())
	// Warsaw is UTC+2 in June.
	assert.Equal(t, 14, when.Hour())
}

func TestParseTimeDateOnly(t *testing.T) {
	normalizer, err := NewNormalizer()
	require.NoError(t, err)

	when, err := normalizer.ParseTime("2024-01-13")
	require.NoError(t, err)
	assert.Equal(t, time.January, when.Month())
	assert.Equal(t, 13, when.Day())
}

func TestParseActionVariants(t *testing.T) {
	cases := []struct {
		raw    string
		action models.TransactionAction
	}{
		{"Buy", models.ActionBuy},
		{"market buy", models.ActionBuy},
		{"Limit buy", models.ActionBuy},
		{"SELL", models.ActionSell},
		{"Market sell", models.ActionSell},
	}
	for _, tc := range cases {
		action, err := ParseAction(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.action, action, tc.raw)
	}

	_, err := ParseAction("dividend")
	assert.Error(t, err)
}

func TestParseDecimalStripsSeparators(t *testing.T) {
	value, err := ParseDecimal("1,234.56")
	require.NoError(t, err)
	assert.Equal(t, "1234.56", value.String())

	value, err = ParseDecimal(" 150.00 ")
	require.NoError(t, err)
	assert.Equal(t, "150", value.String())

	_, err = ParseDecimal("")
	assert.Error(t, err)
}
