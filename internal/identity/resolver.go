// Package identity maps user-supplied names to ledgers.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"expenses/internal/core"
	"expenses/internal/ledger"
	"expenses/internal/log"
)

var (
	ErrEmptyName     = errors.New("name must not be empty")
	ErrAlreadyExists = errors.New("identity already exists")
	ErrNotFound      = errors.New("identity not found")
	ErrInvalidMode   = errors.New("invalid identity mode")
)

// Mode selects between registering a name and looking it up.
type Mode int

const (
	NewUser Mode = iota + 1
	ReturningUser
)

func (m Mode) String() string {
	switch m {
	case NewUser:
		return "new"
	case ReturningUser:
		return "returning"
	default:
		return "unknown"
	}
}

// ParseMode accepts "new" and "returning" in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new":
		return NewUser, nil
	case "returning":
		return ReturningUser, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Normalize trims surrounding whitespace and lower-cases name. Registration
// and lookup both go through it.
func Normalize(name string) (core.Identity, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", ErrEmptyName
	}
	return core.Identity(n), nil
}

type Resolver struct {
	store ledger.Store
}

func NewResolver(store ledger.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the ledger for name. NewUser creates an empty store and
// fails if one exists; ReturningUser loads an existing store and fails if
// none exists.
func (r *Resolver) Resolve(ctx context.Context, mode Mode, name string) (*ledger.Ledger, error) {
	id, err := Normalize(name)
	if err != nil {
		return nil, err
	}

	exists, err := r.store.Exists(ctx, id)
	if err != nil {
		return nil, err
	}

	switch mode {
	case NewUser:
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
		if err := r.store.Create(ctx, id); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Registered new identity",
			log.FieldComponent, log.ComponentIdentity,
			log.FieldIdentity, id.String())
		return ledger.New(r.store, id), nil

	case ReturningUser:
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		l, err := ledger.Open(ctx, r.store, id)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Loaded ledger",
			log.FieldComponent, log.ComponentIdentity,
			log.FieldIdentity, id.String(),
			log.FieldLoadStatus, l.Status().String(),
			log.FieldCount, l.Len())
		return l, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, mode)
	}
}
