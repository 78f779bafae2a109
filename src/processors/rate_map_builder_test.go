package processors

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
)

type stubResolver struct {
	mu    sync.Mutex
	calls map[string]int
	rates map[string]string
	fail  map[string]error
}

func newStubResolver(rates map[string]string) *stubResolver {
	return &stubResolver{
		calls: make(map[string]int),
		rates: rates,
		fail:  make(map[string]error),
	}
}

func (s *stubResolver) GetExchangeRate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	key := models.RateKey(currency, date)
	s.mu.Lock()
	s.calls[key]++
	s.mu.Unlock()

	if err, ok := s.fail[key]; ok {
		return decimal.Zero, err
	}
	if currency == "PLN" {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := s.rates[key]; ok {
		return decimal.RequireFromString(rate), nil
	}
	return decimal.Zero, errors.New("stub: no rate configured for " + key)
}

func TestBuildResolvesEachPairOnce(t *testing.T) {
	// Two transactions share the same (currency, date) pair.
	first := tx(models.ActionBuy, "2024-01-15", "10", "150", "USD")
	second := tx(models.ActionSell, "2024-01-15", "5", "160", "USD")
	third := tx(models.ActionBuy, "2024-02-15", "5", "155", "USD")

	resolver := newStubResolver(map[string]string{
		"USD_2024-01-15": "4.0",
		"USD_2024-02-15": "4.05",
	})
	builder := NewRateMapBuilder(resolver, 2)

	rateMap, err := builder.Build(context.Background(), groupsOf(first, second, third))
	require.NoError(t, err)
	require.Len(t, rateMap, 2)
	assert.Equal(t, 1, resolver.calls["USD_2024-01-15"], "shared pair resolved exactly once")
	assert.Equal(t, 1, resolver.calls["USD_2024-02-15"])

	rate, ok := rateMap.Rate("USD", first.Time)
	require.True(t, ok)
	assert.Equal(t, "4", rate.String())
}

func TestBuildFailsWhollyOnAnyResolutionError(t *testing.T) {
	first := tx(models.ActionBuy, "2024-01-15", "10", "150", "USD")
	second := tx(models.ActionBuy, "2024-02-15", "10", "150", "USD")

	resolver := newStubResolver(map[string]string{
		"USD_2024-01-15": "4.0",
	})
	resolver.fail["USD_2024-02-15"] = errors.New("rate source unavailable")
	builder := NewRateMapBuilder(resolver, 2)

	rateMap, err := builder.Build(context.Background(), groupsOf(first, second))
	require.Error(t, err)
	assert.Nil(t, rateMap, "no partial rate map on failure")
}

func TestBuildIncludesPLNPairs(t *testing.T) {
	plnTx := tx(models.ActionBuy, "2024-01-15", "10", "100", "PLN")

	resolver := newStubResolver(nil)
	builder := NewRateMapBuilder(resolver, 1)

	rateMap, err := builder.Build(context.Background(), groupsOf(plnTx))
	require.NoError(t, err)

	rate, ok := rateMap.Rate("PLN", plnTx.Time)
	require.True(t, ok)
	assert.Equal(t, "1", rate.String())
}

func TestBuildEmptyTransactionSet(t *testing.T) {
	builder := NewRateMapBuilder(newStubResolver(nil), 4)
	rateMap, err := builder.Build(context.Background(), map[string]models.TransactionGroup{})
	require.NoError(t, err)
	assert.Empty(t, rateMap)
}

func TestExtractUniquePairsOrdering(t *testing.T) {
	usdLate := tx(models.ActionBuy, "2024-03-01", "1", "1", "USD")
	usdEarly := tx(models.ActionBuy, "2024-01-01", "1", "1", "USD")
	eur := tx(models.ActionBuy, "2024-02-01", "1", "1", "EUR")

	pairs := extractUniqueCurrencyDatePairs(groupsOf(usdLate, usdEarly, eur))
	require.Len(t, pairs, 3)
	assert.Equal(t, "EUR", pairs[0].currency)
	assert.Equal(t, "USD", pairs[1].currency)
	assert.True(t, pairs[1].date.Before(pairs[2].date), "dates ascending within a currency")
}
