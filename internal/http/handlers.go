package http

import (
	"fmt"
	"net/http"
	"strconv"

	"expenses/internal/core"
	"expenses/internal/export"
	"expenses/internal/identity"
	"expenses/internal/log"
	"expenses/internal/session"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// withSession resolves the caller's session from SessionHeader and holds its
// lock for the duration of the request.
func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := s.sessions.get(r.Header.Get(SessionHeader))
		if !ok {
			writeError(w, r, session.ErrNoActiveSession)
			return
		}
		entry.mu.Lock()
		defer entry.mu.Unlock()
		next(w, r, entry.session)
	}
}

// handleLogin logs in on the caller's session, or on a new one when the
// request carries no valid token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	mode, err := identity.ParseMode(req.Mode)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token := r.Header.Get(SessionHeader)
	entry, ok := s.sessions.get(token)
	created := false
	if !ok {
		token, entry = s.sessions.create()
		created = true
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := entry.session.Login(r.Context(), mode, sanitizeInput(req.Name)); err != nil {
		if created {
			s.sessions.remove(token)
		}
		writeError(w, r, err)
		return
	}

	resp := loginResponse{
		Token:    token,
		Identity: entry.session.Identity().String(),
		Status:   entry.session.LoadStatus().String(),
	}
	if reason := entry.session.RecoveryReason(); reason != nil {
		resp.RecoveryReason = reason.Error()
	}

	status := http.StatusOK
	if mode == identity.NewUser {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(SessionHeader)
	entry, ok := s.sessions.get(token)
	if !ok {
		writeError(w, r, session.ErrNoActiveSession)
		return
	}

	entry.mu.Lock()
	entry.session.Logout(r.Context())
	entry.mu.Unlock()
	s.sessions.remove(token)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	category, err := core.ParseCategory(req.Category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var cur core.Currency
	if req.Currency != "" {
		if cur, err = core.ParseCurrency(req.Currency); err != nil {
			writeError(w, r, err)
			return
		}
	}

	rec, err := sess.AddExpense(r.Context(), date, category, amount, cur, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newExpenseResponse(rec))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	rng, err := parseRange(r.URL.Query(), false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := sess.ListExpenses(r.Context(), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).DebugContext(r.Context(), "Listed expenses",
		log.FieldOperation, log.OpList,
		log.FieldCount, len(records))

	resp := listResponse{
		Identity: sess.Identity().String(),
		Count:    len(records),
		Expenses: make([]expenseResponse, 0, len(records)),
	}
	for _, rec := range records {
		resp.Expenses = append(resp.Expenses, newExpenseResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	rng, err := parseRange(r.URL.Query(), false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := sess.Summarize(r.Context(), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	shares, err := sess.CategoryShares(r.Context(), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if shares == nil {
		shares = []core.CategoryTotal{}
	}
	log.FromContext(r.Context()).DebugContext(r.Context(), "Summarized expenses",
		log.FieldOperation, log.OpSummary,
		log.FieldCount, summary.Count)
	writeJSON(w, http.StatusOK, summaryResponse{
		Identity: sess.Identity().String(),
		Summary:  summary,
		Shares:   shares,
	})
}

// handleConvert needs no session.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := convertQuery{Amount: q.Get("amount"), From: q.Get("from"), To: q.Get("to")}
	if err := validate.Struct(query); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := core.ParseAmount(query.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, to := parseCurrencyCode(query.From), parseCurrencyCode(query.To)

	result, err := s.converter.Convert(amount, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).DebugContext(r.Context(), "Converted amount",
		log.FieldOperation, log.OpConvert,
		log.FieldAmount, amount.String(),
		"from", from.String(),
		"to", to.String())

	writeJSON(w, http.StatusOK, convertResponse{
		Amount:  amount,
		From:    from,
		To:      to,
		Result:  result,
		Display: core.FormatAmount(result, to),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	q := r.URL.Query()
	rng, err := parseRange(q, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, err := sess.ExportRange(r.Context(), rng.Start, rng.End, format)
	if err != nil {
		writeError(w, r, err)
		return
	}

	name := export.FileName(sess.Identity(), rng.Start, rng.End, format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
