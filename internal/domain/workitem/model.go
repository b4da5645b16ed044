package workitem

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending          = "pending"
	StatusRejected         = "rejected"
	StatusQueued           = "queued"
	StatusInProgress       = "in_progress"
	StatusAnalysisComplete = "analysis_complete"
	StatusVerified         = "verified"
)

// ErrQCBlocked means today's QC gate for the item's test is not met. It is
// a distinct class so callers can direct users to the QC workflow instead
// of treating the refusal as a system fault.
var ErrQCBlocked = errors.New("dispatch blocked by quality control")

// ErrNotDispatchable covers every other dispatch refusal: wrong status,
// missing or inactive instrument, unconfigured endpoint.
var ErrNotDispatchable = errors.New("work item is not dispatchable")

// Rejected is reachable only from pending, via a specimen rejection.
var validTransitions = map[string][]string{
	StatusPending:          {StatusRejected, StatusQueued},
	StatusQueued:           {StatusInProgress, StatusAnalysisComplete},
	StatusInProgress:       {StatusAnalysisComplete},
	StatusAnalysisComplete: {StatusVerified},
}

func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// WorkItem maps to the work_items table: one requested test bound to one
// order and, once collected, one specimen. Unique per (order, test).
type WorkItem struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	OrderID         uuid.UUID  `db:"order_id" json:"order_id"`
	TestCode        string     `db:"test_code" json:"test_code"`
	SpecimenID      *uuid.UUID `db:"specimen_id" json:"specimen_id,omitempty"`
	DepartmentID    *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	InstrumentID    *uuid.UUID `db:"instrument_id" json:"instrument_id,omitempty"`
	Status          string     `db:"status" json:"status"`
	ExternalID      *string    `db:"external_id" json:"external_id,omitempty"`
	RetryCount      int        `db:"retry_count" json:"retry_count"`
	LastSyncAttempt *time.Time `db:"last_sync_attempt" json:"last_sync_attempt,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	QueuedAt        *time.Time `db:"queued_at" json:"queued_at,omitempty"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	AnalyzedAt      *time.Time `db:"analyzed_at" json:"analyzed_at,omitempty"`
	VerifiedAt      *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}
