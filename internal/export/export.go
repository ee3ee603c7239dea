// Package export renders record sets for download.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"expenses/internal/core"
	"expenses/internal/report"
	"expenses/internal/storage/csvfile"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

const (
	recordsSheet = "Expenses"
	summarySheet = "Summary"
)

// ParseFormat accepts csv and xlsx in any case. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", CSV:
		return CSV, nil
	case XLSX:
		return XLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// FileName builds the download name, e.g. alice_2024-01-01_2024-01-31.csv.
func FileName(id core.Identity, start, end core.Date, f Format) string {
	return fmt.Sprintf("%s_%s_%s.%s", id, start, end, f)
}

// Render serializes records in format f.
func Render(records []core.Record, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, records, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write serializes records to w. CSV uses the store's own column layout so an
// export can be read back as a ledger file.
func Write(w io.Writer, records []core.Record, f Format) error {
	switch f {
	case CSV:
		return csvfile.Encode(w, records)
	case XLSX:
		return writeXLSX(w, records)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

func writeXLSX(w io.Writer, records []core.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := append(append([]string(nil), csvfile.Header...), "display")
	if err := setRow(f, recordsSheet, 1, toAny(header)); err != nil {
		return err
	}
	for i, r := range records {
		row := []any{
			r.Date.String(),
			r.Category.String(),
			r.Amount.InexactFloat64(),
			r.Currency.String(),
			r.Description,
			core.FormatAmount(r.Amount, r.Currency),
		}
		if err := setRow(f, recordsSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(recordsSheet, "A", "A", 12); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(recordsSheet, "E", "E", 40); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	summary := report.Summarize(records)
	rowNum := 1
	if err := setRow(f, summarySheet, rowNum, []any{"category", "total"}); err != nil {
		return err
	}
	for _, c := range core.Categories() {
		amt, ok := summary.ByCategory[c]
		if !ok {
			continue
		}
		rowNum++
		if err := setRow(f, summarySheet, rowNum, []any{c.String(), amt.InexactFloat64()}); err != nil {
			return err
		}
	}
	rowNum++
	if err := setRow(f, summarySheet, rowNum, []any{"total (" + summary.TotalLabel + ")", summary.OverallTotal.InexactFloat64()}); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
