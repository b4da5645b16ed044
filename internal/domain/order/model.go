package order

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending  = "pending"
	StatusReceived = "received"
	StatusAnalysis = "analysis"
	StatusComplete = "complete"
	StatusVerified = "verified"
	StatusRejected = "rejected"
)

const (
	PriorityRoutine = "routine"
	PriorityUrgent  = "urgent"
)

// validTransitions is linear with no skipping backward. Rejected is
// reachable only while the order is still pending, via the specimen
// rejection cascade.
var validTransitions = map[string][]string{
	StatusPending:  {StatusReceived, StatusRejected},
	StatusReceived: {StatusAnalysis},
	StatusAnalysis: {StatusComplete},
	StatusComplete: {StatusVerified},
}

func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Order maps to the orders table. OrderID is the human-readable sequence
// identifier (REQ000001). RequestedTests is fixed at creation.
type Order struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	OrderID        string     `db:"order_id" json:"order_id"`
	PatientRef     string     `db:"patient_ref" json:"patient_ref"`
	RequestedTests []string   `db:"requested_tests" json:"requested_tests"`
	Priority       string     `db:"priority" json:"priority"`
	Status         string     `db:"status" json:"status"`
	Consent        bool       `db:"consent" json:"consent"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	VerifiedAt     *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	VerifiedBy     *string    `db:"verified_by" json:"verified_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
