package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event maps to the audit_events table. Rows are append-only; there is no
// update or delete path anywhere in the codebase.
type Event struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Tenant     string    `db:"tenant" json:"tenant"`
	Actor      string    `db:"actor" json:"actor"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Detail     *string   `db:"detail" json:"detail,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
