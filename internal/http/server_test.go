package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/core"
	"expenses/internal/currency"
	"expenses/internal/identity"
	"expenses/internal/ledger"
	"expenses/internal/session"
	"expenses/internal/storage/csvfile"
	"expenses/internal/storage/memory"
)

type testEnv struct {
	srv   *Server
	store *memory.Store
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store := memory.New()
	resolver := identity.NewResolver(store)
	conv := currency.NewConverter(currency.DefaultRates())
	factory := func() *session.Session { return session.New(resolver, conv, core.USD) }

	if opts.RequestsPerMinute == 0 {
		opts.RequestsPerMinute = 1000
	}
	srv := NewServer(":0", factory, conv, nil, opts)
	t.Cleanup(func() {
		srv.limiter.Stop()
		srv.sweeper.Stop()
	})
	return &testEnv{srv: srv, store: store}
}

func (e *testEnv) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, mode, name string) loginResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/session", "", map[string]string{"mode": mode, "name": name})
	require.Contains(t, []int{http.StatusOK, http.StatusCreated}, rec.Code, rec.Body.String())
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (e *testEnv) addExpense(t *testing.T, token, date, category, amount, cur string) *httptest.ResponseRecorder {
	t.Helper()
	body := map[string]any{"date": date, "category": category, "amount": amount}
	if cur != "" {
		body["currency"] = cur
	}
	return e.do(t, http.MethodPost, "/api/expenses", token, body)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t, Options{})
	rec := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec := e.do(t, http.MethodPost, "/api/session", "", map[string]string{"mode": "new", "name": "  Alice "})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice", resp.Identity)
	assert.Equal(t, "fresh", resp.Status)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"duplicate registration", map[string]string{"mode": "new", "name": "ALICE"}, http.StatusConflict},
		{"unknown returning user", map[string]string{"mode": "returning", "name": "bob"}, http.StatusNotFound},
		{"blank name", map[string]string{"mode": "new", "name": "   "}, http.StatusBadRequest},
		{"missing name", map[string]string{"mode": "new"}, http.StatusBadRequest},
		{"bad mode", map[string]string{"mode": "guest", "name": "carol"}, http.StatusBadRequest},
		{"malformed json", `{"mode":`, http.StatusBadRequest},
		{"unknown field", `{"mode":"new","name":"dave","admin":true}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/session", "", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}

	// failed logins do not leave sessions behind
	assert.Equal(t, 1, e.srv.sessions.len())
}

func TestLogin_ReturningUserSeesPersistedRecords(t *testing.T) {
	e := newTestEnv(t, Options{})
	first := e.login(t, "new", "alice")
	require.Equal(t, http.StatusCreated, e.addExpense(t, first.Token, "2024-01-05", "food", "10", "").Code)

	second := e.login(t, "returning", "Alice")
	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, "loaded", second.Status)

	rec := e.do(t, http.MethodGet, "/api/expenses", second.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
}

func TestLogin_SwitchIdentityOnSameToken(t *testing.T) {
	e := newTestEnv(t, Options{})
	alice := e.login(t, "new", "alice")
	e.login(t, "new", "bob")

	rec := e.do(t, http.MethodPost, "/api/session", alice.Token, map[string]string{"mode": "returning", "name": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, alice.Token, resp.Token)
	assert.Equal(t, "bob", resp.Identity)

	// a failed switch keeps the previous identity
	rec = e.do(t, http.MethodPost, "/api/session", alice.Token, map[string]string{"mode": "returning", "name": "nobody"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	list := e.do(t, http.MethodGet, "/api/expenses", alice.Token, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), `"identity":"bob"`)
}

func TestAddExpense(t *testing.T) {
	e := newTestEnv(t, Options{})
	tok := e.login(t, "new", "alice").Token

	rec := e.addExpense(t, tok, "2024-03-01", "Food", "12,5", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var got expenseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, core.Food, got.Category)
	assert.Equal(t, core.USD, got.Currency)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "$12.50", got.Display)
	assert.Equal(t, "2024-03-01", got.Date.String())

	numeric := e.do(t, http.MethodPost, "/api/expenses", tok, `{"date":"2024-03-02","category":"transport","amount":3.75,"currency":"eur","description":"bus"}`)
	require.Equal(t, http.StatusCreated, numeric.Code, numeric.Body.String())
	assert.Contains(t, numeric.Body.String(), `"display":"€3.75"`)

	assert.Equal(t, 2, e.store.Len("alice"))
}

func TestAddExpense_DescriptionStoredVerbatim(t *testing.T) {
	e := newTestEnv(t, Options{})
	tok := e.login(t, "new", "alice").Token

	descriptions := []string{
		"  " + strings.Repeat("x", 600) + "  ",
		"  indented\x01note  ",
	}
	for _, d := range descriptions {
		rec := e.do(t, http.MethodPost, "/api/expenses", tok, map[string]any{
			"date": "2024-03-01", "category": "Food", "amount": "1", "description": d,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := e.do(t, http.MethodGet, "/api/expenses", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Expenses, 2)
	for i, d := range descriptions {
		assert.Equal(t, d, list.Expenses[i].Description)
	}
}

func TestAddExpense_Rejected(t *testing.T) {
	e := newTestEnv(t, Options{})
	tok := e.login(t, "new", "alice").Token

	tests := []struct {
		name     string
		token    string
		body     map[string]any
		status   int
		contains string
	}{
		{"no session", "", map[string]any{"date": "2024-01-01", "category": "Food", "amount": "1"}, http.StatusUnauthorized, "no active session"},
		{"unknown token", "6f1c2a9e-0000-4000-8000-000000000000", map[string]any{"date": "2024-01-01", "category": "Food", "amount": "1"}, http.StatusUnauthorized, ""},
		{"negative amount", tok, map[string]any{"date": "2024-01-01", "category": "Food", "amount": "-3"}, http.StatusBadRequest, "invalid amount"},
		{"text amount", tok, map[string]any{"date": "2024-01-01", "category": "Food", "amount": "ten"}, http.StatusBadRequest, "invalid amount"},
		{"bad category", tok, map[string]any{"date": "2024-01-01", "category": "Rent", "amount": "1"}, http.StatusBadRequest, "invalid category"},
		{"bad date", tok, map[string]any{"date": "01/02/2024", "category": "Food", "amount": "1"}, http.StatusBadRequest, "invalid date"},
		{"bad currency", tok, map[string]any{"date": "2024-01-01", "category": "Food", "amount": "1", "currency": "CHF"}, http.StatusBadRequest, "invalid currency"},
		{"missing amount", tok, map[string]any{"date": "2024-01-01", "category": "Food"}, http.StatusBadRequest, "amount is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/expenses", tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.contains != "" {
				assert.Contains(t, decodeError(t, rec), tt.contains)
			}
		})
	}
	assert.Equal(t, 0, e.store.Len("alice"))
}

func TestListExpenses_Range(t *testing.T) {
	e := newTestEnv(t, Options{})
	tok := e.login(t, "new", "alice").Token
	for _, d := range []string{"2024-01-10", "2024-02-10", "2024-03-10"} {
		require.Equal(t, http.StatusCreated, e.addExpense(t, tok, d, "Food", "5", "").Code)
	}

	rec := e.do(t, http.MethodGet, "/api/expenses?start=2024-02-01&end=2024-03-31", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "2024-02-10", list.Expenses[0].Date.String())

	rec = e.do(t, http.MethodGet, "/api/expenses?start=2024-02-01", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/expenses?start=2024-03-01&end=2024-02-01", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "range")
}

func TestSummary(t *testing.T) {
	e := newTestEnv(t, Options{})
	tok := e.login(t, "new", "alice").Token
	require.Equal(t, http.StatusCreated, e.addExpense(t, tok, "2024-01-10", "Food", "30", "").Code)
	require.Equal(t, http.StatusCreated, e.addExpense(t, tok, "2024-02-10", "Transport", "10", "").Code)

	rec := e.do(t, http.MethodGet, "/api/summary", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Identity string `json:"identity"`
		Summary  struct {
			OverallTotal decimal.Decimal `json:"overall_total"`
			TotalLabel   string          `json:"total_label"`
			Count        int             `json:"count"`
			Monthly      []struct {
				Month string `json:"month"`
			} `json:"monthly"`
		} `json:"summary"`
		Shares []core.CategoryTotal `json:"shares"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Identity)
	assert.True(t, resp.Summary.OverallTotal.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, "USD", resp.Summary.TotalLabel)
	assert.Equal(t, 2, resp.Summary.Count)
	require.Len(t, resp.Summary.Monthly, 2)
	assert.Equal(t, "2024-01", resp.Summary.Monthly[0].Month)
	require.Len(t, resp.Shares, 2)
	assert.True(t, resp.Shares[0].Amount.Equal(decimal.NewFromInt(75)))

	empty := e.login(t, "new", "bob").Token
	rec = e.do(t, http.MethodGet, "/api/summary", empty, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"shares":[]`)
}

func TestConvert(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec := e.do(t, http.MethodGet, "/api/convert?amount=100&from=usd&to=EUR", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp convertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Result.Equal(decimal.NewFromInt(92)), resp.Result.String())
	assert.Equal(t, "€92.00", resp.Display)
	assert.Zero(t, e.srv.sessions.len(), "convert must not allocate a session")

	tests := []struct {
		name  string
		query string
	}{
		{"unknown currency", "amount=1&from=USD&to=CHF"},
		{"missing to", "amount=1&from=USD"},
		{"bad amount", "amount=abc&from=USD&to=EUR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodGet, "/api/convert?"+tt.query, "", nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestExport(t *testing.T) {
	e := newTestEnv(t, Options{})
	tok := e.login(t, "new", "alice").Token
	require.Equal(t, http.StatusCreated, e.addExpense(t, tok, "2024-01-10", "Food", "30", "INR").Code)
	require.Equal(t, http.StatusCreated, e.addExpense(t, tok, "2024-02-10", "Food", "1", "").Code)

	rec := e.do(t, http.MethodGet, "/api/export?start=2024-01-01&end=2024-01-31", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "alice_2024-01-01_2024-01-31.csv")

	records, _, err := csvfile.Decode(rec.Body, core.USD)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.INR, records[0].Currency)

	xlsx := e.do(t, http.MethodGet, "/api/export?start=2024-01-01&end=2024-12-31&format=XLSX", tok, nil)
	require.Equal(t, http.StatusOK, xlsx.Code)
	assert.True(t, strings.HasPrefix(xlsx.Body.String(), "PK"))

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/export", tok, nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		e.do(t, http.MethodGet, "/api/export?start=2024-01-01&end=2024-01-31&format=pdf", tok, nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		e.do(t, http.MethodGet, "/api/export?start=2024-01-01&end=2024-01-31", "", nil).Code)
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t, Options{})
	tok := e.login(t, "new", "alice").Token
	require.Equal(t, http.StatusCreated, e.addExpense(t, tok, "2024-01-10", "Food", "3", "").Code)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/api/session", tok, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/expenses", tok, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodDelete, "/api/session", tok, nil).Code)

	// durable data survives logout
	assert.Equal(t, 1, e.store.Len("alice"))
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t, Options{})
	rec := e.do(t, http.MethodPut, "/api/expenses", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitOnWrites(t *testing.T) {
	e := newTestEnv(t, Options{RequestsPerMinute: 1})
	e.login(t, "new", "alice")

	rec := e.do(t, http.MethodPost, "/api/session", "", map[string]string{"mode": "new", "name": "bob"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", "", nil).Code)
}

func TestSessionManagerIdleExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newSessionManager(func() *session.Session { return &session.Session{} }, time.Minute)
	m.entries.WithClock(func() time.Time { return now })

	token, _ := m.create()
	_, ok := m.get(token)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = m.get(token)
	assert.False(t, ok)
	assert.Equal(t, 0, m.len())

	_, ok = m.get("not-a-uuid")
	assert.False(t, ok)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", core.ErrInvalidAmount), http.StatusBadRequest},
		{currency.ErrUnknownCurrency, http.StatusBadRequest},
		{identity.ErrEmptyName, http.StatusBadRequest},
		{identity.ErrNotFound, http.StatusNotFound},
		{identity.ErrAlreadyExists, http.StatusConflict},
		{session.ErrNoActiveSession, http.StatusUnauthorized},
		{fmt.Errorf("%w: disk full", ledger.ErrIO), http.StatusInternalServerError},
		{validate.Struct(loginRequest{}), http.StatusBadRequest},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("%w: /secret/path", ledger.ErrIO))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct", "203.0.113.5:4000", "", "203.0.113.5"},
		{"untrusted proxy ignored", "203.0.113.5:4000", "198.51.100.1", "203.0.113.5"},
		{"trusted proxy forwarded", "10.0.0.2:4000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy bad header", "10.0.0.2:4000", "garbage", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, extractClientIP(r))
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "lunch\twith team", sanitizeInput("  lunch\twith\x00 team\x07 "))
}
