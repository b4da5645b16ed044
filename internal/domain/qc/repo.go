package qc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoActiveLot is returned by GetActive when no lot is active for the
// (test, level) pair.
var ErrNoActiveLot = errors.New("no active qc lot")

type LotRepository interface {
	Create(ctx context.Context, l *Lot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Lot, error)
	Update(ctx context.Context, l *Lot) error
	ListByTest(ctx context.Context, testCode string) ([]*Lot, error)
	// Activate marks the lot active and deactivates every sibling sharing
	// (test, level) in one atomic statement.
	Activate(ctx context.Context, id uuid.UUID, testCode, level string) error
	GetActive(ctx context.Context, testCode, level string) (*Lot, error)
}

type RunRepository interface {
	Create(ctx context.Context, r *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	Update(ctx context.Context, r *Run) error
	// ListRecent returns the newest runs for the lot, newest first.
	ListRecent(ctx context.Context, lotID uuid.UUID, limit int) ([]*Run, error)
	// HasPassingRunOn reports whether the lot has at least one run on the
	// given day whose final status is pass.
	HasPassingRunOn(ctx context.Context, lotID uuid.UUID, day time.Time) (bool, error)
	CountOn(ctx context.Context, lotID uuid.UUID, day time.Time) (int, error)
}

type ActionRepository interface {
	Create(ctx context.Context, a *Action) error
	GetByID(ctx context.Context, id uuid.UUID) (*Action, error)
	Update(ctx context.Context, a *Action) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*Action, error)
}
