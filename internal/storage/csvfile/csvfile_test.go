package csvfile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/core"
	"expenses/internal/ledger"
	"expenses/internal/storage/csvfile"
)

func record(day int, cat core.Category, amount string, cur core.Currency, desc string) core.Record {
	return core.Record{
		Date:        core.NewDate(2024, 3, day),
		Category:    cat,
		Amount:      decimal.RequireFromString(amount),
		Currency:    cur,
		Description: desc,
	}
}

func assertRecordsEqual(t *testing.T, want, got []core.Record) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Date.Equal(got[i].Date.Time), "date %d", i)
		assert.Equal(t, want[i].Category, got[i].Category)
		assert.True(t, want[i].Amount.Equal(got[i].Amount), "amount %d: want %s got %s", i, want[i].Amount, got[i].Amount)
		assert.Equal(t, want[i].Currency, got[i].Currency)
		assert.Equal(t, want[i].Description, got[i].Description)
	}
}

func TestStore_AppendThenLoad(t *testing.T) {
	ctx := context.Background()
	s := csvfile.New(t.TempDir(), core.USD)
	id := core.Identity("alice")

	require.NoError(t, s.Create(ctx, id))

	want := []core.Record{
		record(1, core.Food, "12.50", core.EUR, "lunch, with \"friends\""),
		record(2, core.Transport, "3", core.USD, ""),
		record(2, core.Transport, "3", core.USD, ""),
	}
	for _, r := range want {
		require.NoError(t, s.AppendRecord(ctx, id, r))
	}

	res, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusLoaded, res.Status)
	assert.NoError(t, res.Reason)
	assertRecordsEqual(t, want, res.Records)
}

func TestStore_CreateWritesHeaderOnly(t *testing.T) {
	ctx := context.Background()
	s := csvfile.New(t.TempDir(), core.USD)
	id := core.Identity("bob")

	ok, err := s.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Create(ctx, id))

	ok, err = s.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(s.Path(id))
	require.NoError(t, err)
	assert.Equal(t, strings.Join(csvfile.Header, ",")+"\n", string(data))

	res, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFresh, res.Status)
	assert.Empty(t, res.Records)
}

func TestStore_CreateTwiceFails(t *testing.T) {
	ctx := context.Background()
	s := csvfile.New(t.TempDir(), core.USD)
	id := core.Identity("carol")

	require.NoError(t, s.Create(ctx, id))
	err := s.Create(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrIO))
}

func TestStore_LoadMissingIsFresh(t *testing.T) {
	s := csvfile.New(t.TempDir(), core.USD)

	res, err := s.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFresh, res.Status)
	assert.Empty(t, res.Records)
}

func TestStore_AppendWithoutCreateWritesHeader(t *testing.T) {
	ctx := context.Background()
	s := csvfile.New(filepath.Join(t.TempDir(), "nested"), core.USD)
	id := core.Identity("dave")

	require.NoError(t, s.AppendRecord(ctx, id, record(5, core.Other, "1", core.JPY, "x")))

	data, err := os.ReadFile(s.Path(id))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "date,category,amount,currency,description", lines[0])
	assert.Equal(t, "2024-03-05,Other,1,JPY,x", lines[1])
}

func TestStore_LegacyLayoutUpgraded(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := csvfile.New(dir, core.INR)
	id := core.Identity("erin")

	legacy := "date,category,amount,description\n" +
		"2024-03-01 00:00:00,Food,250.0,dosa\n" +
		"2024-03-02,Utilities,1200,\n"
	require.NoError(t, os.WriteFile(s.Path(id), []byte(legacy), 0o644))

	res, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusLoaded, res.Status)
	assertRecordsEqual(t, []core.Record{
		record(1, core.Food, "250", core.INR, "dosa"),
		record(2, core.Utilities, "1200", core.INR, ""),
	}, res.Records)

	data, err := os.ReadFile(s.Path(id))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "date,category,amount,currency,description\n"))

	// Appends after the upgrade land in the new layout.
	require.NoError(t, s.AppendRecord(ctx, id, record(3, core.Food, "10", core.USD, "")))
	res, err = s.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	assert.Equal(t, core.USD, res.Records[2].Currency)
}

func TestStore_CorruptFileRecovered(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad amount", "date,category,amount,currency,description\n2024-03-01,Food,abc,USD,\n"},
		{"negative amount", "date,category,amount,currency,description\n2024-03-01,Food,-1,USD,\n"},
		{"bad date", "date,category,amount,currency,description\nyesterday,Food,1,USD,\n"},
		{"unknown category", "date,category,amount,currency,description\n2024-03-01,Rent,1,USD,\n"},
		{"unknown currency", "date,category,amount,currency,description\n2024-03-01,Food,1,XYZ,\n"},
		{"missing column", "when,what\n2024-03-01,Food\n"},
		{"ragged row", "date,category,amount,currency,description\n2024-03-01,Food\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := csvfile.New(t.TempDir(), core.USD)
			id := core.Identity("frank")
			require.NoError(t, os.WriteFile(s.Path(id), []byte(tt.content), 0o644))

			res, err := s.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, ledger.StatusRecovered, res.Status)
			assert.Empty(t, res.Records)
			require.Error(t, res.Reason)
			assert.True(t, errors.Is(res.Reason, ledger.ErrCorruptStore))

			data, err := os.ReadFile(s.Path(id))
			require.NoError(t, err)
			assert.Equal(t, "date,category,amount,currency,description\n", string(data))

			again, err := s.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, ledger.StatusFresh, again.Status)
		})
	}
}

func TestStore_ZeroByteFileRecovered(t *testing.T) {
	ctx := context.Background()
	s := csvfile.New(t.TempDir(), core.USD)
	id := core.Identity("bob")
	require.NoError(t, os.WriteFile(s.Path(id), nil, 0o644))

	exists, err := s.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	res, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRecovered, res.Status)
	require.Error(t, res.Reason)
	assert.Contains(t, res.Reason.Error(), "missing header row")
}

func TestEncode_CRLFInDescriptionReadsAsLF(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, csvfile.Encode(&sb, []core.Record{record(2, core.Food, "1", core.USD, "a\r\nb")}))

	got, _, err := csvfile.Decode(strings.NewReader(sb.String()), core.USD)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a\nb", got[0].Description)
}

func TestDecode_ColumnsByHeaderName(t *testing.T) {
	in := "\ufeffCurrency,Amount,Date,Category\nEUR,4.5,2024-03-09,food\n"

	records, legacy, err := csvfile.Decode(strings.NewReader(in), core.USD)
	require.NoError(t, err)
	assert.True(t, legacy)
	assertRecordsEqual(t, []core.Record{record(9, core.Food, "4.5", core.EUR, "")}, records)
}

func TestEncode_RoundTrip(t *testing.T) {
	want := []core.Record{
		record(1, core.Entertainment, "20", core.GBP, "cinema"),
		record(4, core.Investments, "1000.25", core.USD, "line\nbreak"),
	}
	var sb strings.Builder
	require.NoError(t, csvfile.Encode(&sb, want))

	got, legacy, err := csvfile.Decode(strings.NewReader(sb.String()), core.USD)
	require.NoError(t, err)
	assert.False(t, legacy)
	assertRecordsEqual(t, want, got)
}

func TestStore_IdentityEscapedInPath(t *testing.T) {
	dir := t.TempDir()
	s := csvfile.New(dir, core.USD)

	p := s.Path("../evil")
	assert.Equal(t, dir, filepath.Dir(p))
	assert.True(t, strings.HasSuffix(p, "_expenses.csv"))
}
