// Package parsers turns broker CSV exports into normalized transactions.
package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
)

// CSVRow is one raw data row from the pipe-delimited broker export.
// All fields are kept as strings; validation and normalization interpret them.
type CSVRow struct {
	Line          int // 1-based file line, header included
	Action        string
	Time          string
	ISIN          string
	Ticker        string
	Name          string
	Shares        string
	PricePerShare string
	Currency      string
	ExchangeRate  string
	Result        string
	Total         string
	Notes         string
}

// Column headers expected in the export.
const (
	colAction        = "Action"
	colTime          = "Time"
	colISIN          = "ISIN"
	colTicker        = "Ticker"
	colName          = "Name"
	colShares        = "No. of shares"
	colPricePerShare = "Price / share"
	colCurrency      = "Currency (Price / share)"
	colExchangeRate  = "Exchange rate"
	colResult        = "Result"
	colTotal         = "Total"
	colNotes         = "Notes"
)

var requiredColumns = []string{
	colAction, colTime, colISIN, colShares, colPricePerShare, colCurrency,
}

type CSVParser struct{}

func NewCSVParser() *CSVParser { return &CSVParser{} }

// Parse reads the pipe-delimited export. The header row is mandatory; field
// order is taken from it, so column reordering in the export is harmless.
func (p *CSVParser) Parse(file io.Reader) ([]CSVRow, error) {
	reader := csv.NewReader(file)
	reader.Comma = '|'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, required := range requiredColumns {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing required column %q in CSV header", required)
		}
	}

	field := func(record []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []CSVRow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record at line %d: %w", line, err)
		}

		rows = append(rows, CSVRow{
			Line:          line,
			Action:        field(record, colAction),
			Time:          field(record, colTime),
			ISIN:          field(record, colISIN),
			Ticker:        field(record, colTicker),
			Name:          field(record, colName),
			Shares:        field(record, colShares),
			PricePerShare: field(record, colPricePerShare),
			Currency:      field(record, colCurrency),
			ExchangeRate:  field(record, colExchangeRate),
			Result:        field(record, colResult),
			Total:         field(record, colTotal),
			Notes:         field(record, colNotes),
		})
	}

	logger.L.Info("Parsed CSV file", "rowCount", len(rows))
	return rows, nil
}
