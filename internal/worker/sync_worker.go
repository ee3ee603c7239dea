// Package worker mirrors recorded expenses into a spreadsheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/sheets"
)

// SyncWorker copies ledger records to the spreadsheet mirror
type SyncWorker struct {
	mirror sheets.RecordMirror
	lister sheets.RecordLister
}

// NewSyncWorker creates a worker. lister may be nil, which disables Backfill.
func NewSyncWorker(mirror sheets.RecordMirror, lister sheets.RecordLister) *SyncWorker {
	return &SyncWorker{mirror: mirror, lister: lister}
}

// HandleRecorded mirrors the record carried by msg. Messages whose record
// does not parse are logged and dropped; mirror failures are returned so the
// message is redelivered.
func (w *SyncWorker) HandleRecorded(ctx context.Context, msg *amqp.ExpenseRecordedMessage) error {
	r, err := msg.Record()
	if err != nil {
		slog.ErrorContext(ctx, "Dropping expense recorded message with invalid record",
			log.FieldComponent, log.ComponentWorker,
			log.FieldIdentity, msg.Identity,
			log.FieldError, err)
		return nil
	}

	id := core.Identity(msg.Identity)
	ref, err := w.mirror.AppendRecord(ctx, id, r)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	slog.InfoContext(ctx, "Mirrored expense",
		log.FieldComponent, log.ComponentWorker,
		log.FieldOperation, log.OpSync,
		log.FieldIdentity, id.String(),
		log.FieldDate, r.Date.String(),
		log.FieldAmount, r.Amount.String(),
		log.FieldCurrency, r.Currency.String(),
		"sheets_ref", ref)
	return nil
}

// Backfill appends the records of id that the mirror is missing. The mirror
// is assumed to hold a prefix of records, in order; only the tail beyond the
// mirrored count is written. It returns how many rows were appended.
func (w *SyncWorker) Backfill(ctx context.Context, id core.Identity, records []core.Record) (int, error) {
	if w.lister == nil {
		return 0, fmt.Errorf("backfill needs a record lister")
	}
	mirrored, err := w.lister.ListRecords(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("list mirrored records: %w", err)
	}
	if len(mirrored) >= len(records) {
		slog.InfoContext(ctx, "Mirror is up to date",
			log.FieldComponent, log.ComponentWorker,
			log.FieldIdentity, id.String(),
			log.FieldCount, len(mirrored))
		return 0, nil
	}

	appended := 0
	for _, r := range records[len(mirrored):] {
		if _, err := w.mirror.AppendRecord(ctx, id, r); err != nil {
			return appended, fmt.Errorf("append to sheets: %w", err)
		}
		appended++
	}

	slog.InfoContext(ctx, "Backfill completed",
		log.FieldComponent, log.ComponentWorker,
		log.FieldOperation, log.OpSync,
		log.FieldIdentity, id.String(),
		"total", len(records),
		"appended", appended)
	return appended, nil
}
