// Package csvfile persists each identity's ledger as a flat CSV table, one
// file per identity and one row per record, with a header naming the fields.
//
// Rows are only ever appended. The only full rewrite happens when a file in
// the legacy single-currency layout (no currency column) is loaded: it is
// upgraded in place to the current layout using the default currency.
//
// A zero-byte file has no header row and is treated as corrupt. A CRLF line
// break inside a description reloads as a bare LF, as encoding/csv reads it.
package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"expenses/internal/core"
	"expenses/internal/ledger"
	"expenses/internal/log"
)

// Column names in file order.
const (
	ColDate        = "date"
	ColCategory    = "category"
	ColAmount      = "amount"
	ColCurrency    = "currency"
	ColDescription = "description"
)

// Header is the layout written by this package.
var Header = []string{ColDate, ColCategory, ColAmount, ColCurrency, ColDescription}

const (
	fileSuffix = "_expenses.csv"
	bom        = "\ufeff"
)

type Store struct {
	dir             string
	defaultCurrency core.Currency
}

var _ ledger.Store = (*Store)(nil)

// New stores files under dir. defaultCurrency fills the currency of rows read
// from files without a currency column.
func New(dir string, defaultCurrency core.Currency) *Store {
	if !defaultCurrency.Valid() {
		defaultCurrency = core.USD
	}
	return &Store{dir: dir, defaultCurrency: defaultCurrency}
}

// Path returns the file backing id.
func (s *Store) Path(id core.Identity) string {
	return filepath.Join(s.dir, url.PathEscape(id.String())+fileSuffix)
}

func (s *Store) Exists(_ context.Context, id core.Identity) (bool, error) {
	_, err := os.Stat(s.Path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat %s: %w", ledger.ErrIO, s.Path(id), err)
}

// Create writes a header-only file. It fails if the file already exists.
func (s *Store) Create(_ context.Context, id core.Identity) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create data directory: %w", ledger.ErrIO, err)
	}
	f, err := os.OpenFile(s.Path(id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ledger.ErrIO, s.Path(id), err)
	}
	if err := writeRows(f, [][]string{Header}); err != nil {
		f.Close()
		return fmt.Errorf("%w: write header: %w", ledger.ErrIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ledger.ErrIO, s.Path(id), err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id core.Identity) (ledger.LoadResult, error) {
	path := s.Path(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ledger.LoadResult{Status: ledger.StatusFresh}, nil
	}
	if err != nil {
		return ledger.LoadResult{}, fmt.Errorf("%w: read %s: %w", ledger.ErrIO, path, err)
	}

	records, legacy, perr := Decode(bytes.NewReader(data), s.defaultCurrency)
	if perr != nil {
		reason := fmt.Errorf("%w: %s: %w", ledger.ErrCorruptStore, filepath.Base(path), perr)
		if err := s.reset(path); err != nil {
			return ledger.LoadResult{}, err
		}
		return ledger.LoadResult{Status: ledger.StatusRecovered, Reason: reason}, nil
	}

	if legacy {
		if err := s.rewrite(path, records); err != nil {
			return ledger.LoadResult{}, err
		}
		slog.InfoContext(ctx, "Upgraded ledger file to multi-currency layout",
			log.FieldComponent, log.ComponentStorage,
			log.FieldIdentity, id.String(),
			log.FieldCurrency, s.defaultCurrency.String(),
			log.FieldCount, len(records))
	}

	if len(records) == 0 {
		return ledger.LoadResult{Status: ledger.StatusFresh}, nil
	}
	return ledger.LoadResult{Records: records, Status: ledger.StatusLoaded}, nil
}

// AppendRecord appends one row, writing the header first if the file is new
// or empty.
func (s *Store) AppendRecord(_ context.Context, id core.Identity, r core.Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create data directory: %w", ledger.ErrIO, err)
	}
	path := s.Path(id)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ledger.ErrIO, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: stat %s: %w", ledger.ErrIO, path, err)
	}
	rows := [][]string{EncodeRecord(r)}
	if info.Size() == 0 {
		rows = append([][]string{Header}, rows...)
	}
	if err := writeRows(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("%w: append to %s: %w", ledger.ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ledger.ErrIO, path, err)
	}
	return nil
}

func (s *Store) reset(path string) error {
	return s.rewrite(path, nil)
}

// rewrite replaces the file atomically through a temporary sibling.
func (s *Store) rewrite(path string, records []core.Record) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ledger-*.csv")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ledger.ErrIO, err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, records); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ledger.ErrIO, tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ledger.ErrIO, tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ledger.ErrIO, path, err)
	}
	return nil
}

// EncodeRecord renders r in Header order.
func EncodeRecord(r core.Record) []string {
	return []string{
		r.Date.String(),
		r.Category.String(),
		r.Amount.String(),
		r.Currency.String(),
		r.Description,
	}
}

// Encode writes the header followed by one row per record.
func Encode(w io.Writer, records []core.Record) error {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, Header)
	for _, r := range records {
		rows = append(rows, EncodeRecord(r))
	}
	return writeRows(w, rows)
}

func writeRows(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// Decode parses a ledger table. Columns are located by header name, so any
// order is accepted. A table without a currency column is the legacy
// single-currency layout: its rows get defaultCurrency and legacy is true.
// Any malformed row fails the whole table.
func Decode(r io.Reader, defaultCurrency core.Currency) (records []core.Record, legacy bool, err error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, false, errors.New("missing header row")
	}
	if err != nil {
		return nil, false, err
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, bom)))
		idx[h] = i
	}
	for _, required := range []string{ColDate, ColCategory, ColAmount} {
		if _, ok := idx[required]; !ok {
			return nil, false, fmt.Errorf("missing %q column", required)
		}
	}
	_, hasCurrency := idx[ColCurrency]
	legacy = !hasCurrency || !slices.Equal(normalizedHeader(header), Header)

	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, err
		}
		line++
		rec, err := decodeRow(row, idx, defaultCurrency)
		if err != nil {
			return nil, false, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, legacy, nil
}

func normalizedHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, bom)))
	}
	return out
}

func decodeRow(row []string, idx map[string]int, defaultCurrency core.Currency) (core.Record, error) {
	field := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	date, err := core.ParseDate(field(ColDate))
	if err != nil {
		return core.Record{}, fmt.Errorf("%w: %q", err, field(ColDate))
	}
	category, err := core.ParseCategory(field(ColCategory))
	if err != nil {
		return core.Record{}, fmt.Errorf("%w: %q", err, field(ColCategory))
	}
	amount, err := core.ParseAmount(field(ColAmount))
	if err != nil {
		return core.Record{}, fmt.Errorf("%w: %q", err, field(ColAmount))
	}
	cur := defaultCurrency
	if raw := field(ColCurrency); raw != "" {
		if cur, err = core.ParseCurrency(raw); err != nil {
			return core.Record{}, fmt.Errorf("%w: %q", err, raw)
		}
	}
	desc := ""
	if i, ok := idx[ColDescription]; ok && i < len(row) {
		desc = row[i]
	}
	return core.Record{
		Date:        date,
		Category:    category,
		Amount:      amount,
		Currency:    cur,
		Description: desc,
	}, nil
}
