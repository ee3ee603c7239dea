// Package session holds the active identity and its loaded ledger between
// login and logout, and exposes the operations the presentation layer calls.
//
// A Session is not safe for concurrent use. Callers serving several clients
// keep one Session per client and serialize calls on it.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"expenses/internal/core"
	"expenses/internal/currency"
	"expenses/internal/export"
	"expenses/internal/identity"
	"expenses/internal/ledger"
	"expenses/internal/log"
	"expenses/internal/report"
)

var ErrNoActiveSession = errors.New("no active session")

// Notifier is told about every record that was durably appended.
type Notifier interface {
	NotifyExpenseRecorded(ctx context.Context, id core.Identity, r core.Record) error
}

// DateRange is an inclusive calendar interval.
type DateRange struct {
	Start core.Date
	End   core.Date
}

type Option func(*Session)

// WithNotifier publishes appended records through n.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

type Session struct {
	resolver        *identity.Resolver
	converter       *currency.Converter
	defaultCurrency core.Currency
	notifier        Notifier

	ledger *ledger.Ledger
}

func New(resolver *identity.Resolver, converter *currency.Converter, defaultCurrency core.Currency, opts ...Option) *Session {
	s := &Session{
		resolver:        resolver,
		converter:       converter,
		defaultCurrency: defaultCurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login resolves name and makes it the active identity. A failed login
// leaves any previous identity active.
func (s *Session) Login(ctx context.Context, mode identity.Mode, name string) error {
	l, err := s.resolver.Resolve(ctx, mode, name)
	if err != nil {
		return err
	}
	s.ledger = l

	logger := log.FromContext(ctx).WithComponent(log.ComponentSession)
	logger.InfoContext(ctx, "Session started",
		log.FieldOperation, log.OpLogin,
		log.FieldIdentity, l.Identity().String(),
		log.FieldLoadStatus, l.Status().String())
	return nil
}

// Logout discards the identity and its in-memory ledger. The durable store
// is left as is.
func (s *Session) Logout(ctx context.Context) {
	if s.ledger == nil {
		return
	}
	id := s.ledger.Identity()
	s.ledger = nil

	logger := log.FromContext(ctx).WithComponent(log.ComponentSession)
	logger.InfoContext(ctx, "Session ended",
		log.FieldOperation, log.OpLogout,
		log.FieldIdentity, id.String())
}

func (s *Session) Active() bool {
	return s.ledger != nil
}

// Identity is the active identity, or "" when logged out.
func (s *Session) Identity() core.Identity {
	if s.ledger == nil {
		return ""
	}
	return s.ledger.Identity()
}

// LoadStatus reports how the active ledger was loaded.
func (s *Session) LoadStatus() ledger.LoadStatus {
	if s.ledger == nil {
		return ledger.StatusFresh
	}
	return s.ledger.Status()
}

// RecoveryReason is set when the active ledger was reset after corruption.
func (s *Session) RecoveryReason() error {
	if s.ledger == nil {
		return nil
	}
	return s.ledger.RecoveryReason()
}

func (s *Session) DefaultCurrency() core.Currency {
	return s.defaultCurrency
}

// AddExpense appends a record to the active ledger. An empty currency means
// the default currency.
func (s *Session) AddExpense(ctx context.Context, date core.Date, category core.Category, amount decimal.Decimal, cur core.Currency, description string) (core.Record, error) {
	if s.ledger == nil {
		return core.Record{}, ErrNoActiveSession
	}
	if cur == "" {
		cur = s.defaultCurrency
	}
	r := core.Record{
		Date:        date,
		Category:    category,
		Amount:      amount,
		Currency:    cur,
		Description: description,
	}
	if err := s.ledger.Append(ctx, r); err != nil {
		return core.Record{}, err
	}

	logger := log.FromContext(ctx)
	log.NewStructuredLogger(logger).LogExpenseRecorded(ctx,
		s.ledger.Identity().String(), r.Date.String(), r.Category.String(), r.Amount.String(), r.Currency.String())

	if s.notifier != nil {
		if err := s.notifier.NotifyExpenseRecorded(ctx, s.ledger.Identity(), r); err != nil {
			log.NewStructuredLogger(logger).LogError(ctx, "Failed to publish expense recorded event", err,
				log.ComponentSession, log.OpAppend, log.NewFields().WithIdentity(s.ledger.Identity().String()))
		}
	}
	return r, nil
}

// ListExpenses returns the active ledger's records in insertion order,
// restricted to rng when it is non-nil.
func (s *Session) ListExpenses(_ context.Context, rng *DateRange) ([]core.Record, error) {
	if s.ledger == nil {
		return nil, ErrNoActiveSession
	}
	records := s.ledger.Records()
	if rng == nil {
		return records, nil
	}
	return report.FilterByDateRange(records, rng.Start, rng.End)
}

// Summarize reports over the active ledger, restricted to rng when non-nil.
func (s *Session) Summarize(ctx context.Context, rng *DateRange) (core.Summary, error) {
	records, err := s.ListExpenses(ctx, rng)
	if err != nil {
		return core.Summary{}, err
	}
	return report.Summarize(records), nil
}

// CategoryShares returns each category's percentage of the total.
func (s *Session) CategoryShares(ctx context.Context, rng *DateRange) ([]core.CategoryTotal, error) {
	records, err := s.ListExpenses(ctx, rng)
	if err != nil {
		return nil, err
	}
	return report.CategoryShares(records), nil
}

// ConvertCurrency does not need an active identity.
func (s *Session) ConvertCurrency(amount decimal.Decimal, from, to core.Currency) (decimal.Decimal, error) {
	return s.converter.Convert(amount, from, to)
}

// ExportRange serializes the active ledger's records dated within
// [start, end].
func (s *Session) ExportRange(ctx context.Context, start, end core.Date, format export.Format) ([]byte, error) {
	records, err := s.ListExpenses(ctx, &DateRange{Start: start, End: end})
	if err != nil {
		return nil, err
	}
	data, err := export.Render(records, format)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}

	log.FromContext(ctx).WithComponent(log.ComponentExport).DebugContext(ctx, "Exported records",
		log.FieldOperation, log.OpExport,
		log.FieldIdentity, s.ledger.Identity().String(),
		log.FieldCount, len(records),
		"format", string(format))
	return data, nil
}
