// Package ledger holds the in-memory expense collection of one identity and
// keeps it in step with a durable Store.
//
// Stores are not locked. Two ledgers open on the same identity each append
// to their own in-memory copy and the durable store receives both rows, but
// neither ledger sees the other's records until it is reopened. Callers that
// need a consistent view must keep a single ledger per identity.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expenses/internal/core"
	"expenses/internal/log"
)

var (
	// ErrIO wraps failures of the durable store.
	ErrIO = errors.New("ledger store I/O error")
	// ErrCorruptStore marks persisted data that could not be parsed.
	ErrCorruptStore = errors.New("ledger store is corrupt")
)

// LoadStatus tells a fresh ledger apart from one healed after corruption.
type LoadStatus int

const (
	// StatusFresh means nothing was persisted yet.
	StatusFresh LoadStatus = iota
	// StatusLoaded means persisted records were read successfully.
	StatusLoaded
	// StatusRecovered means persisted data was unreadable and the store was
	// re-initialized empty.
	StatusRecovered
)

func (s LoadStatus) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusLoaded:
		return "loaded"
	case StatusRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// LoadResult is what a Store hands back from Load. Reason is set only for
// StatusRecovered and wraps ErrCorruptStore.
type LoadResult struct {
	Records []core.Record
	Status  LoadStatus
	Reason  error
}

// Store is the durable side of a ledger. Implementations persist one row per
// record and never rewrite earlier rows.
type Store interface {
	// Exists reports whether a store was ever created for id.
	Exists(ctx context.Context, id core.Identity) (bool, error)
	// Create initializes an empty store for id.
	Create(ctx context.Context, id core.Identity) error
	// Load reads every persisted record of id. Missing data yields an empty
	// StatusFresh result; unreadable data is reset and yields StatusRecovered.
	Load(ctx context.Context, id core.Identity) (LoadResult, error)
	// AppendRecord durably adds one record.
	AppendRecord(ctx context.Context, id core.Identity, r core.Record) error
}

// Ledger is the session's source of truth for one identity.
type Ledger struct {
	id      core.Identity
	store   Store
	records []core.Record
	status  LoadStatus
	reason  error
}

// Open loads the ledger of id from store.
func Open(ctx context.Context, store Store, id core.Identity) (*Ledger, error) {
	res, err := store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", id, err)
	}
	if res.Status == StatusRecovered {
		slog.WarnContext(ctx, "Ledger store was unreadable, continuing with an empty ledger",
			log.FieldComponent, log.ComponentLedger,
			log.FieldIdentity, id.String(),
			log.FieldError, res.Reason)
	}
	return &Ledger{
		id:      id,
		store:   store,
		records: res.Records,
		status:  res.Status,
		reason:  res.Reason,
	}, nil
}

// New returns an empty ledger bound to id without reading the store.
func New(store Store, id core.Identity) *Ledger {
	return &Ledger{id: id, store: store, status: StatusFresh}
}

func (l *Ledger) Identity() core.Identity {
	return l.id
}

// Status reports how the ledger was loaded.
func (l *Ledger) Status() LoadStatus {
	return l.status
}

// RecoveryReason is the corruption that forced a reset, or nil.
func (l *Ledger) RecoveryReason() error {
	return l.reason
}

// Records returns a copy of the collection in insertion order.
func (l *Ledger) Records() []core.Record {
	return append([]core.Record(nil), l.records...)
}

func (l *Ledger) Len() int {
	return len(l.records)
}

// Append validates r, adds it to the collection and persists it.
//
// Invalid records are rejected before anything changes. If persisting fails
// the record stays in memory and the returned error wraps ErrIO; the durable
// copy is then behind the in-memory one until the ledger is reopened.
func (l *Ledger) Append(ctx context.Context, r core.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	l.records = append(l.records, r)
	if err := l.store.AppendRecord(ctx, l.id, r); err != nil {
		slog.ErrorContext(ctx, "Failed to persist expense, in-memory ledger is ahead of the store",
			log.FieldComponent, log.ComponentLedger,
			log.FieldIdentity, l.id.String(),
			log.FieldError, err)
		if errors.Is(err, ErrIO) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}
