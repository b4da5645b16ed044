package specimen

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusAccessioned = "accessioned"
	StatusRejected    = "rejected"
	StatusAccepted    = "accepted"
	StatusStored      = "stored"
	StatusConsumed    = "consumed"
)

// validTransitions encodes the specimen state machine. Rejected, stored and
// consumed are terminal; nothing leaves them.
var validTransitions = map[string][]string{
	StatusAccessioned: {StatusRejected, StatusAccepted},
	StatusAccepted:    {StatusStored, StatusConsumed},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status.
func IsTerminal(status string) bool {
	return len(validTransitions[status]) == 0
}

// Specimen maps to the specimens table. SpecimenID is the human-readable
// sequence identifier (SAM000001); ID is the row key.
type Specimen struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	SpecimenID      string     `db:"specimen_id" json:"specimen_id"`
	OrderID         uuid.UUID  `db:"order_id" json:"order_id"`
	Type            string     `db:"type" json:"type"`
	Status          string     `db:"status" json:"status"`
	Collector       string     `db:"collector" json:"collector"`
	CollectedAt     time.Time  `db:"collected_at" json:"collected_at"`
	VerifiedBy      *string    `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt      *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	StoredAt        *time.Time `db:"stored_at" json:"stored_at,omitempty"`
	ConsumedAt      *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}
