// Package nbp resolves official daily PLN exchange rates from the National
// Bank of Poland API.
package nbp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second

	// fallbackWindowDays is how far back the client probes when the exact
	// date has no published rate (weekends, public holidays).
	fallbackWindowDays = 7
)

// RateResolutionError means a rate could not be resolved for a currency and
// trade date: retries exhausted, no rate within the fallback window, or a
// malformed provider response.
type RateResolutionError struct {
	Currency string
	Date     time.Time
	Reason   string
	Err      error
}

func (e *RateResolutionError) Error() string {
	msg := fmt.Sprintf("could not resolve NBP rate for %s on %s: %s",
		e.Currency, e.Date.Format("2006-01-02"), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateResolutionError) Unwrap() error { return e.Err }

// errNoRateForDate is the internal marker for an NBP 404 (no table for that
// date). It never escapes GetExchangeRate.
var errNoRateForDate = errors.New("nbp: no rate published for date")

// Client fetches PLN mid rates from the NBP exchange rates API.
// Stateless apart from configuration; safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	retry   RetryPolicy
}

// NewClient creates an NBP API client with the default retry policy
// (3 attempts, delays doubling from 2s).
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithRetryPolicy(baseURL, timeout,
		DefaultRetryPolicy(defaultMaxAttempts, defaultBaseDelay))
}

// NewClientWithRetryPolicy creates an NBP API client with a custom retry
// policy.
func NewClientWithRetryPolicy(baseURL string, timeout time.Duration, policy RetryPolicy) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retry:   policy,
	}
}

// GetExchangeRate returns the PLN mid rate for a currency on a trade date.
// PLN itself is always 1 and never queried. When the exact date has no
// published rate, the preceding days are probed nearest-first, up to 7 days
// back.
func (c *Client) GetExchangeRate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "PLN" {
		return decimal.NewFromInt(1), nil
	}

	rate, err := c.fetchRate(ctx, currency, date)
	if err == nil {
		logger.L.Info("Retrieved NBP rate", "currency", currency, "date", date.Format("2006-01-02"), "rate", rate.String())
		return rate, nil
	}
	if !errors.Is(err, errNoRateForDate) {
		return decimal.Zero, &RateResolutionError{
			Currency: currency, Date: date,
			Reason: "fetch failed", Err: err,
		}
	}

	logger.L.Warn("No NBP rate for requested date, searching previous days",
		"currency", currency, "date", date.Format("2006-01-02"))

	for i := 1; i <= fallbackWindowDays; i++ {
		previous := date.AddDate(0, 0, -i)
		rate, err := c.fetchRate(ctx, currency, previous)
		if err == nil {
			logger.L.Info("Using NBP rate from earlier date",
				"currency", currency,
				"requestedDate", date.Format("2006-01-02"),
				"effectiveDate", previous.Format("2006-01-02"),
				"rate", rate.String())
			return rate, nil
		}
		if errors.Is(err, errNoRateForDate) {
			continue
		}
		return decimal.Zero, &RateResolutionError{
			Currency: currency, Date: date,
			Reason: "fallback fetch failed", Err: err,
		}
	}

	return decimal.Zero, &RateResolutionError{
		Currency: currency, Date: date,
		Reason: fmt.Sprintf("no rate published within %d days before requested date", fallbackWindowDays),
	}
}

// fetchRate requests the rate for one exact date, applying the retry policy
// to transient failures. Returns errNoRateForDate on 404.
func (c *Client) fetchRate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/rates/a/%s/%s/?format=json",
		c.baseURL, strings.ToLower(currency), date.Format("2006-01-02"))

	for attempt := 1; ; attempt++ {
		rate, status, err := c.doRequest(ctx, url)
		switch {
		case err == nil && status == http.StatusOK:
			return rate, nil
		case status == http.StatusNotFound:
			return decimal.Zero, errNoRateForDate
		case status == http.StatusOK:
			// Malformed or empty response body. Not retryable.
			return decimal.Zero, err
		}

		delay, retryAgain := c.retry(attempt, err, status)
		if !retryAgain {
			if err != nil {
				return decimal.Zero, err
			}
			return decimal.Zero, fmt.Errorf("nbp: unexpected status %d from %s", status, url)
		}

		logger.L.Warn("NBP API call failed, retrying",
			"url", url, "attempt", attempt, "status", status, "delay", delay.String(), "error", err)

		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// doRequest performs one HTTP GET. The returned error is non-nil for
// connection-level failures (status 0) and for malformed 200 responses.
func (c *Client) doRequest(ctx context.Context, url string) (decimal.Decimal, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("nbp: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("nbp: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return decimal.Zero, resp.StatusCode, nil
	}

	var rateResponse models.NBPExchangeRateResponse
	if err := json.NewDecoder(resp.Body).Decode(&rateResponse); err != nil {
		return decimal.Zero, resp.StatusCode, fmt.Errorf("nbp: failed to parse response: %w", err)
	}
	if len(rateResponse.Rates) == 0 {
		return decimal.Zero, resp.StatusCode, errors.New("nbp: no exchange rate entries in response")
	}

	return rateResponse.Rates[0].Mid, resp.StatusCode, nil
}
