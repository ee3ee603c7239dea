package sheets

import (
	"context"

	"expenses/internal/core"
)

// Ports for the spreadsheet mirror of ledgers.
type (
	// RecordMirror appends one ledger record as a spreadsheet row.
	RecordMirror interface {
		AppendRecord(ctx context.Context, id core.Identity, r core.Record) (rowRef string, err error)
	}

	// RecordLister reads back the mirrored rows of one identity.
	RecordLister interface {
		ListRecords(ctx context.Context, id core.Identity) ([]core.Record, error)
	}
)
