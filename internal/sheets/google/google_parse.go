package google

import (
	"fmt"
	"strings"

	"expenses/internal/core"
)

// Column order of mirrored rows.
var headerRow = []string{"identity", "date", "category", "amount", "currency", "description"}

func toRow(id core.Identity, r core.Record) []any {
	return []any{
		id.String(),
		r.Date.String(),
		r.Category.String(),
		r.Amount.String(),
		r.Currency.String(),
		r.Description,
	}
}

// parseRows keeps the rows of id. A first row equal to headerRow is ignored.
// It returns how many rows of id could not be parsed.
func parseRows(values [][]interface{}, id core.Identity) ([]core.Record, int) {
	var (
		out     []core.Record
		skipped int
	)
	for i, raw := range values {
		row := toStrings(raw)
		if i == 0 && isHeader(row) {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(safeGet(row, 0)), id.String()) {
			continue
		}
		r, err := parseRecord(row)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, r)
	}
	return out, skipped
}

func parseRecord(row []string) (core.Record, error) {
	date, err := core.ParseDate(safeGet(row, 1))
	if err != nil {
		return core.Record{}, fmt.Errorf("date: %w", err)
	}
	category, err := core.ParseCategory(safeGet(row, 2))
	if err != nil {
		return core.Record{}, fmt.Errorf("category: %w", err)
	}
	amount, err := core.ParseAmount(safeGet(row, 3))
	if err != nil {
		return core.Record{}, fmt.Errorf("amount: %w", err)
	}
	cur, err := core.ParseCurrency(safeGet(row, 4))
	if err != nil {
		return core.Record{}, fmt.Errorf("currency: %w", err)
	}
	return core.Record{
		Date:        date,
		Category:    category,
		Amount:      amount,
		Currency:    cur,
		Description: safeGet(row, 5),
	}, nil
}

func isHeader(row []string) bool {
	if len(row) < len(headerRow) {
		return false
	}
	for i, h := range headerRow {
		if !strings.EqualFold(strings.TrimSpace(row[i]), h) {
			return false
		}
	}
	return true
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return ""
}
