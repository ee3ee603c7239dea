package backend

import (
	"context"

	"expenses/internal/core"
	"expenses/internal/ledger"
)

// CleanupFunc releases resources held by a store
type CleanupFunc func() error

// Result contains the store instance and optional cleanup function
type Result struct {
	Store   ledger.Store
	Cleanup CleanupFunc
}

// Close runs Cleanup when set.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates ledger stores based on configuration
type Factory interface {
	CreateStore(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for store creation
type Config struct {
	Type Type

	// csv
	DataDir         string
	DefaultCurrency core.Currency

	// sqlite
	SQLiteDBPath string
}

// Type represents the kind of ledger store
type Type string

const (
	CSVBackend    Type = "csv"
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is known
func (t Type) IsValid() bool {
	switch t {
	case CSVBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
