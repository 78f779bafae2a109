package processors

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
)

// RateResolver resolves the PLN exchange rate for a currency on a trade date.
type RateResolver interface {
	GetExchangeRate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error)
}

// RateMapBuilder resolves every distinct (currency, trade date) pair in a
// transaction set exactly once and produces the read-only rate map the
// matcher consumes. If any pair fails to resolve, the whole build fails;
// matching never starts on a partial map.
type RateMapBuilder struct {
	resolver    RateResolver
	concurrency int
}

func NewRateMapBuilder(resolver RateResolver, concurrency int) *RateMapBuilder {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RateMapBuilder{resolver: resolver, concurrency: concurrency}
}

type ratePair struct {
	currency string
	date     time.Time
}

// Build resolves rates for all transactions in the grouped set.
func (b *RateMapBuilder) Build(ctx context.Context, groups map[string]models.TransactionGroup) (models.RateMap, error) {
	pairs := extractUniqueCurrencyDatePairs(groups)
	logger.L.Info("Resolving exchange rates", "uniquePairs", len(pairs), "concurrency", b.concurrency)

	rateMap := make(models.RateMap, len(pairs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for _, pair := range pairs {
		g.Go(func() error {
			rate, err := b.resolver.GetExchangeRate(gctx, pair.currency, pair.date)
			if err != nil {
				return err
			}
			mu.Lock()
			rateMap[models.RateKey(pair.currency, pair.date)] = rate
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.L.Info("Exchange rates resolved", "rateCount", len(rateMap))
	return rateMap, nil
}

// extractUniqueCurrencyDatePairs deduplicates (currency, trade date) pairs
// across the whole set, ordered by currency then date ascending so the build
// is reproducible.
func extractUniqueCurrencyDatePairs(groups map[string]models.TransactionGroup) []ratePair {
	seen := make(map[string]ratePair)
	for _, group := range groups {
		for _, tx := range group.Transactions {
			if tx.Currency == "" {
				continue
			}
			day := models.DateOnly(tx.Time)
			key := models.RateKey(tx.Currency, day)
			if _, ok := seen[key]; !ok {
				seen[key] = ratePair{currency: tx.Currency, date: day}
			}
		}
	}

	pairs := make([]ratePair, 0, len(seen))
	for _, pair := range seen {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].currency != pairs[j].currency {
			return pairs[i].currency < pairs[j].currency
		}
		return pairs[i].date.Before(pairs[j].date)
	})
	return pairs
}
