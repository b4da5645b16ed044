package instrument

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive      = "active"
	StatusMaintenance = "maintenance"
	StatusInactive    = "inactive"
)

const (
	DirectionSend    = "send"
	DirectionReceive = "receive"
	DirectionError   = "error"
)

var (
	// ErrTransient marks a send that failed on transport or timeout;
	// the work item stays pending and the retry sweep picks it up.
	ErrTransient = errors.New("instrument temporarily unreachable")
	// ErrRejected marks a send the analyzer refused outright; retrying
	// the same payload will not help.
	ErrRejected = errors.New("instrument rejected the order")
	// ErrNoEndpoint marks an instrument with no configured endpoint.
	ErrNoEndpoint = errors.New("instrument has no endpoint configured")
)

// Instrument maps to the instruments table: one connected analyzer.
type Instrument struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Endpoint  string    `db:"endpoint" json:"endpoint"`
	APIKey    string    `db:"api_key" json:"-"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CommunicationLog is an append-only record of every exchange with an
// analyzer, kept verbatim for troubleshooting.
type CommunicationLog struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	InstrumentID uuid.UUID  `db:"instrument_id" json:"instrument_id"`
	WorkItemID   *uuid.UUID `db:"work_item_id" json:"work_item_id,omitempty"`
	Direction    string     `db:"direction" json:"direction"`
	Payload      string     `db:"payload" json:"payload"`
	ResponseCode *int       `db:"response_code" json:"response_code,omitempty"`
	Error        *string    `db:"error" json:"error,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}
