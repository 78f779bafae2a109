// Package reports renders tax calculation results as plain text documents
// suitable for email delivery.
package reports

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
)

const reportWidth = 80

const (
	headerLine  = "==============================================================================="
	sectionLine = "-------------------------------------------------------------------------------"
	thinLine    = "..............................................................................."
)

type TextReportGenerator struct {
	// now is swappable so the generation timestamp is stable in tests.
	now func() time.Time
}

func NewTextReportGenerator() *TextReportGenerator {
	return &TextReportGenerator{now: time.Now}
}

// GenerateReport renders the full report: header, summary, per-instrument
// details, warnings when present, methodology, disclaimer and footer.
func (g *TextReportGenerator) GenerateReport(summary *models.TaxSummary, jobID, email string) string {
	var b strings.Builder

	g.writeHeader(&b, jobID, summary.Year)
	writeSummary(&b, summary)
	writeCalculations(&b, summary)
	if len(summary.Warnings) > 0 {
		writeWarnings(&b, summary.Warnings)
	}
	writeMethodology(&b)
	writeDisclaimer(&b)
	writeFooter(&b, email)

	return b.String()
}

func (g *TextReportGenerator) writeHeader(b *strings.Builder, jobID string, year int) {
	fmt.Fprintln(b, headerLine)
	fmt.Fprintln(b, centerText("POLISH CAPITAL GAINS TAX CALCULATION (PIT-38)"))
	fmt.Fprintln(b, headerLine)
	fmt.Fprintln(b)
	fmt.Fprintf(b, "Report Generated: %s UTC\n", g.now().UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(b, "Job ID: %s\n", jobID)
	fmt.Fprintf(b, "Tax Year: %d\n", year)
	fmt.Fprintln(b)
}

func writeSummary(b *strings.Builder, summary *models.TaxSummary) {
	fmt.Fprintln(b, sectionLine)
	fmt.Fprintln(b, centerText("SUMMARY"))
	fmt.Fprintln(b, sectionLine)
	fmt.Fprintln(b)
	fmt.Fprintf(b, "  %-40s %15s PLN\n", "Total Capital Gains:", formatAmount(summary.TotalGainsPLN))
	fmt.Fprintf(b, "  %-40s %15s PLN\n", "Total Capital Losses:", formatAmount(summary.TotalLossesPLN))
	fmt.Fprintf(b, "  %-40s %15s PLN\n", "Net Taxable Amount:", formatAmount(summary.NetTaxableAmountPLN))
	fmt.Fprintf(b, "  %-40s %15s PLN\n", "Estimated Tax (19%):", formatAmount(summary.EstimatedTaxPLN))
	fmt.Fprintf(b, "  %-40s %15d\n", "Matched Transactions:", summary.TotalTransactions)
	fmt.Fprintln(b)
}

func writeCalculations(b *strings.Builder, summary *models.TaxSummary) {
	fmt.Fprintln(b, sectionLine)
	fmt.Fprintln(b, centerText("DETAILED TRANSACTIONS"))
	fmt.Fprintln(b, sectionLine)
	fmt.Fprintln(b)

	byISIN := make(map[string][]models.SaleCalculation)
	var isins []string
	for _, calc := range summary.Calculations {
		if _, seen := byISIN[calc.ISIN]; !seen {
			isins = append(isins, calc.ISIN)
		}
		byISIN[calc.ISIN] = append(byISIN[calc.ISIN], calc)
	}
	sort.Strings(isins)

	number := 1
	for _, isin := range isins {
		calcs := byISIN[isin]
		sort.SliceStable(calcs, func(i, j int) bool {
			return calcs[i].SellDate.Before(calcs[j].SellDate)
		})

		first := calcs[0]
		fmt.Fprintf(b, "ISIN: %s\n", isin)
		fmt.Fprintf(b, "Ticker: %s | Name: %s\n", orNA(first.Ticker), orNA(first.Name))
		fmt.Fprintln(b, thinLine)

		for _, calc := range calcs {
			writeCalculationDetail(b, calc, number)
			number++
			fmt.Fprintln(b)
		}
	}
}

func writeCalculationDetail(b *strings.Builder, calc models.SaleCalculation, number int) {
	fmt.Fprintf(b, "Transaction #%d\n", number)
	fmt.Fprintf(b, "  Sell Date:        %s\n", calc.SellDate.Format("2006-01-02"))
	fmt.Fprintf(b, "  Shares Sold:      %s\n", calc.SharesSold.String())
	fmt.Fprintf(b, "  Sell Price:       %s %s\n", calc.SellPricePerShare.String(), calc.SellCurrency)
	fmt.Fprintf(b, "  Proceeds (PLN):   %s\n", formatAmount(calc.ProceedsPLN))
	fmt.Fprintln(b)

	fmt.Fprintln(b, "  Matched Buys (FIFO):")
	for _, buy := range calc.MatchedBuys {
		fmt.Fprintf(b, "    * %s: %s shares @ %s %s\n",
			buy.BuyDate.Format("2006-01-02"), buy.SharesMatched.String(),
			buy.BuyPricePerShare.String(), buy.BuyCurrency)
		fmt.Fprintf(b, "      Cost Basis (PLN): %s\n", formatAmount(buy.CostBasisPLN))
	}
	fmt.Fprintln(b)

	outcome := "LOSS"
	if calc.IsGain() {
		outcome = "GAIN"
	}
	fmt.Fprintf(b, "  Total Cost Basis: %s PLN\n", formatAmount(calc.CostBasisPLN))
	fmt.Fprintf(b, "  Total Proceeds:   %s PLN\n", formatAmount(calc.ProceedsPLN))
	fmt.Fprintf(b, "  Gain/Loss:        %s PLN (%s)\n", formatAmount(calc.GainLossPLN), outcome)
}

func writeWarnings(b *strings.Builder, warnings []string) {
	fmt.Fprintln(b, sectionLine)
	fmt.Fprintln(b, centerText("WARNINGS"))
	fmt.Fprintln(b, sectionLine)
	fmt.Fprintln(b)
	for _, warning := range warnings {
		fmt.Fprintf(b, "  ! %s\n", warning)
	}
	fmt.Fprintln(b)
}

func writeMethodology(b *strings.Builder) {
	fmt.Fprintln(b, sectionLine)
	fmt.Fprintln(b, centerText("CALCULATION METHODOLOGY"))
	fmt.Fprintln(b, sectionLine)
	fmt.Fprintln(b)
	fmt.Fprintln(b, "This report uses the FIFO (First In, First Out) cost basis method for matching")
	fmt.Fprintln(b, "sell transactions to buy transactions. This means:")
	fmt.Fprintln(b)
	fmt.Fprintln(b, "* The oldest shares purchased are considered sold first")
	fmt.Fprintln(b, "* Exchange rates are sourced from the National Bank of Poland (NBP)")
	fmt.Fprintln(b, "* All amounts are converted to PLN using official NBP rates")
	fmt.Fprintln(b, "* Capital gains tax rate: 19% (applicable in Poland)")
	fmt.Fprintln(b, "* Losses can be offset against gains")
	fmt.Fprintln(b)
}

func writeDisclaimer(b *strings.Builder) {
	fmt.Fprintln(b, sectionLine)
	fmt.Fprintln(b, centerText("DISCLAIMER"))
	fmt.Fprintln(b, sectionLine)
	fmt.Fprintln(b)
	fmt.Fprintln(b, "This report is provided for informational purposes only and does not constitute")
	fmt.Fprintln(b, "tax advice. Please consult with a qualified tax professional or accountant to")
	fmt.Fprintln(b, "review your specific tax situation and ensure compliance with Polish tax law.")
	fmt.Fprintln(b)
	fmt.Fprintln(b, "The calculations are based on exchange rates from the National Bank of Poland")
	fmt.Fprintln(b, "(NBP) and the transaction data you provided. Please verify all information")
	fmt.Fprintln(b, "before filing your tax return (PIT-38).")
	fmt.Fprintln(b)
}

func writeFooter(b *strings.Builder, email string) {
	fmt.Fprintln(b, headerLine)
	fmt.Fprintln(b, centerText("END OF REPORT"))
	fmt.Fprintln(b, headerLine)
	fmt.Fprintln(b)
	fmt.Fprintf(b, "Report generated for: %s\n", email)
	fmt.Fprintln(b, "InvestTax Calculator - Polish Capital Gains Tax Calculation Tool")
	fmt.Fprintln(b)
}

func orNA(value string) string {
	if value == "" {
		return "N/A"
	}
	return value
}

func centerText(text string) string {
	padding := (reportWidth - len(text)) / 2
	if padding <= 0 {
		return text
	}
	return strings.Repeat(" ", padding) + text
}

// formatAmount renders a PLN amount with two decimal places and thousands
// separators, e.g. 1234567.8 -> "1,234,567.80".
func formatAmount(value decimal.Decimal) string {
	fixed := value.StringFixed(2)

	negative := strings.HasPrefix(fixed, "-")
	if negative {
		fixed = fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(digit)
	}

	out := grouped.String() + "." + frac
	if negative {
		out = "-" + out
	}
	return out
}
