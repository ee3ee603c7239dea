package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"expenses/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return NewWithService(svc, "sheet-id", "")
}

func sampleRecord() core.Record {
	return core.Record{
		Date:        core.NewDate(2024, 4, 2),
		Category:    core.Transport,
		Amount:      decimal.RequireFromString("2.40"),
		Currency:    core.EUR,
		Description: "bus",
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "  ", "")
	if err == nil || err.Error() != "missing spreadsheet ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	for _, k := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(k, "")
	}
	_, err := New(context.Background(), "id", "")
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/nonexistent/creds.json")
	_, err := New(context.Background(), "id", "")
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestClient_AppendRecord(t *testing.T) {
	var got gsheet.ValueRange
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "/v4/spreadsheets/sheet-id/values/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("valueInputOption") != "RAW" {
			t.Errorf("unexpected valueInputOption %q", r.URL.Query().Get("valueInputOption"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"updates":{"updatedRange":"Ledger!A7:F7"}}`))
	})

	ref, err := c.AppendRecord(context.Background(), "alice", sampleRecord())
	if err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}
	if ref != "Ledger!A7:F7" {
		t.Errorf("ref = %q", ref)
	}
	if len(got.Values) != 1 || len(got.Values[0]) != 6 {
		t.Fatalf("unexpected values: %v", got.Values)
	}
	want := []string{"alice", "2024-04-02", "Transport", "2.4", "EUR", "bus"}
	for i, v := range want {
		if got.Values[0][i] != v {
			t.Errorf("column %d = %v, want %q", i, got.Values[0][i], v)
		}
	}
}

func TestClient_AppendRecordValidates(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	r := sampleRecord()
	r.Amount = decimal.NewFromInt(-1)

	_, err := c.AppendRecord(context.Background(), "alice", r)
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestClient_ListRecords(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"range":"Ledger!A1:F4","majorDimension":"ROWS","values":[
			["identity","date","category","amount","currency","description"],
			["alice","2024-04-02","Transport","2.4","EUR","bus"],
			["bob","2024-04-02","Food","9","USD",""],
			["ALICE","not a date","Food","1","USD",""]
		]}`))
	})

	records, err := c.ListRecords(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 1 || records[0].Description != "bus" || records[0].Currency != core.EUR {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestParseRows(t *testing.T) {
	values := [][]interface{}{
		{"alice", "2024-01-01", "food", "1,5", "usd"},
		{"alice", "2024-01-02", "Rent", "1", "USD"},
		{"carol", "2024-01-03", "Food", "1", "USD"},
	}

	records, skipped := parseRows(values, "alice")
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	if !records[0].Amount.Equal(decimal.RequireFromString("1.5")) || records[0].Category != core.Food || records[0].Description != "" {
		t.Errorf("unexpected record %+v", records[0])
	}
}
