package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MixedCurrencies labels an overall total summed across currencies.
const MixedCurrencies = "mixed currencies"

// YearMonth is a calendar month bucket.
type YearMonth struct {
	Year  int
	Month time.Month
}

// Before reports whether ym is chronologically earlier than o.
func (ym YearMonth) Before(o YearMonth) bool {
	if ym.Year != o.Year {
		return ym.Year < o.Year
	}
	return ym.Month < o.Month
}

// String formats the bucket as "2006-01".
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

// CategoryTotal represents an amount aggregated by category.
type CategoryTotal struct {
	Category Category        `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// MonthTotal is one point of the monthly spending series.
type MonthTotal struct {
	Month  YearMonth       `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary is the report view over a set of records.
type Summary struct {
	ByCategory   map[Category]decimal.Decimal `json:"by_category"`
	ByCurrency   map[Currency]decimal.Decimal `json:"by_currency"`
	Monthly      []MonthTotal                 `json:"monthly"`
	OverallTotal decimal.Decimal              `json:"overall_total"`
	// TotalLabel is the currency code when all records share one currency,
	// MixedCurrencies otherwise.
	TotalLabel string `json:"total_label"`
	Count      int    `json:"count"`
}
