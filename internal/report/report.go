// Package report computes grouped totals and monthly series over expense
// records. Every function is pure: inputs are never modified.
package report

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"expenses/internal/core"
)

var ErrInvalidRange = errors.New("invalid date range: start is after end")

// TotalsByCategory sums amounts per category. Categories without records are
// absent from the result.
func TotalsByCategory(records []core.Record) map[core.Category]decimal.Decimal {
	out := make(map[core.Category]decimal.Decimal)
	for _, r := range records {
		out[r.Category] = out[r.Category].Add(r.Amount)
	}
	return out
}

// TotalsByCurrency sums amounts per currency.
func TotalsByCurrency(records []core.Record) map[core.Currency]decimal.Decimal {
	out := make(map[core.Currency]decimal.Decimal)
	for _, r := range records {
		out[r.Currency] = out[r.Currency].Add(r.Amount)
	}
	return out
}

// MonthlySeries buckets records by calendar month and returns one total per
// month in chronological order.
func MonthlySeries(records []core.Record) []core.MonthTotal {
	byMonth := make(map[core.YearMonth]decimal.Decimal)
	for _, r := range records {
		ym := r.Date.YearMonth()
		byMonth[ym] = byMonth[ym].Add(r.Amount)
	}
	out := make([]core.MonthTotal, 0, len(byMonth))
	for ym, amt := range byMonth {
		out = append(out, core.MonthTotal{Month: ym, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// FilterByDateRange keeps records dated within [start, end]. An empty result
// is not an error.
func FilterByDateRange(records []core.Record, start, end core.Date) ([]core.Record, error) {
	if start.After(end) {
		return nil, ErrInvalidRange
	}
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if r.Date.Before(start) || r.Date.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// OverallTotal sums every amount regardless of currency. The result is only
// meaningful for single-currency input; callers label it with TotalLabel.
func OverallTotal(records []core.Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// TotalLabel names the unit of OverallTotal: the shared currency code, or
// core.MixedCurrencies when records span several currencies. It is empty for
// no records.
func TotalLabel(records []core.Record) string {
	seen := make(map[core.Currency]struct{})
	for _, r := range records {
		seen[r.Currency] = struct{}{}
	}
	switch len(seen) {
	case 0:
		return ""
	case 1:
		for c := range seen {
			return c.String()
		}
	}
	return core.MixedCurrencies
}

// Summarize builds the full report view.
func Summarize(records []core.Record) core.Summary {
	return core.Summary{
		ByCategory:   TotalsByCategory(records),
		ByCurrency:   TotalsByCurrency(records),
		Monthly:      MonthlySeries(records),
		OverallTotal: OverallTotal(records),
		TotalLabel:   TotalLabel(records),
		Count:        len(records),
	}
}

// CategoryShares returns each category's percentage of the overall total,
// rounded to one decimal place, ordered by category display order. It is
// empty when the overall total is zero.
func CategoryShares(records []core.Record) []core.CategoryTotal {
	total := OverallTotal(records)
	if total.IsZero() {
		return nil
	}
	totals := TotalsByCategory(records)
	hundred := decimal.NewFromInt(100)
	var out []core.CategoryTotal
	for _, c := range core.Categories() {
		amt, ok := totals[c]
		if !ok {
			continue
		}
		out = append(out, core.CategoryTotal{
			Category: c,
			Amount:   amt.Mul(hundred).Div(total).Round(1),
		})
	}
	return out
}
