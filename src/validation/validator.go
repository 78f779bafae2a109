// Package validation checks broker export rows before they enter the
// calculation pipeline. Errors are collected per row so a rejection
// reports every problem in the file at once.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
	"github.com/m-tsaryk/InvestTax.Calculator/src/parsers"
)

// MaxRows caps the number of data rows accepted in a single upload.
const MaxRows = 100000

const isinLength = 12

type ValidationError struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("row %d, column %s: %s", e.Row, e.Column, e.Message)
}

type ValidationResult struct {
	Valid      bool              `json:"valid"`
	RowCount   int               `json:"rowCount"`
	Year       int               `json:"year,omitempty"`
	Currencies []string          `json:"currencies,omitempty"`
	Errors     []ValidationError `json:"errors,omitempty"`
}

type Validator struct {
	normalizer *parsers.Normalizer
}

func NewValidator() (*Validator, error) {
	normalizer, err := parsers.NewNormalizer()
	if err != nil {
		return nil, err
	}
	return &Validator{normalizer: normalizer}, nil
}

// Validate inspects every row and returns the accumulated errors. The year
// reported is the year of the earliest parseable timestamp; currencies are
// the distinct currencies seen, sorted.
func (v *Validator) Validate(rows []parsers.CSVRow) ValidationResult {
	result := ValidationResult{RowCount: len(rows)}

	if len(rows) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Row: 0, Column: "", Message: "file contains no data rows",
		})
		return result
	}
	if len(rows) > MaxRows {
		result.Errors = append(result.Errors, ValidationError{
			Row: 0, Column: "",
			Message: fmt.Sprintf("file has %d rows, maximum is %d", len(rows), MaxRows),
		})
		return result
	}

	currencies := make(map[string]struct{})
	for _, row := range rows {
		result.Errors = append(result.Errors, v.validateRow(row, &result, currencies)...)
	}

	for currency := range currencies {
		result.Currencies = append(result.Currencies, currency)
	}
	sort.Strings(result.Currencies)

	result.Valid = len(result.Errors) == 0
	if !result.Valid {
		logger.L.Warn("CSV validation failed", "rowCount", len(rows), "errorCount", len(result.Errors))
	}
	return result
}

func (v *Validator) validateRow(row parsers.CSVRow, result *ValidationResult, currencies map[string]struct{}) []ValidationError {
	var errs []ValidationError
	fail := func(column, message string) {
		errs = append(errs, ValidationError{Row: row.Line, Column: column, Message: message})
	}

	if _, err := parsers.ParseAction(row.Action); err != nil {
		fail("Action", fmt.Sprintf("unknown action %q", row.Action))
	}

	if when, err := v.normalizer.ParseTime(row.Time); err != nil {
		fail("Time", fmt.Sprintf("unrecognized timestamp %q", row.Time))
	} else if result.Year == 0 || when.Year() < result.Year {
		result.Year = when.Year()
	}

	isin := strings.ToUpper(strings.TrimSpace(row.ISIN))
	if len(isin) != isinLength {
		fail("ISIN", fmt.Sprintf("ISIN %q must be %d characters", row.ISIN, isinLength))
	}

	if shares, err := parsers.ParseDecimal(row.Shares); err != nil {
		fail("No. of shares", fmt.Sprintf("invalid share count %q", row.Shares))
	} else if !shares.IsPositive() {
		fail("No. of shares", "share count must be positive")
	}

	if price, err := parsers.ParseDecimal(row.PricePerShare); err != nil {
		fail("Price / share", fmt.Sprintf("invalid price %q", row.PricePerShare))
	} else if price.IsNegative() {
		fail("Price / share", "price must not be negative")
	}

	currency := strings.ToUpper(strings.TrimSpace(row.Currency))
	if _, ok := models.SupportedCurrencies[currency]; !ok {
		fail("Currency (Price / share)", fmt.Sprintf("unsupported currency %q", row.Currency))
	} else {
		currencies[currency] = struct{}{}
	}

	return errs
}
