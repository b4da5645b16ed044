package qc

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPass    = "pass"
	StatusWarning = "warning"
	StatusFail    = "fail"
)

// Lot maps to the qc_lots table: one batch of control material for a
// (test, level) pair. The 1/2/3-SD limits are recomputed on every save,
// never hand-edited. A lot defined by explicit low/high bounds instead of
// target/SD carries only the 2-SD slot.
type Lot struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	TestCode     string     `db:"test_code" json:"test_code"`
	Level        string     `db:"level" json:"level"`
	LotNumber    string     `db:"lot_number" json:"lot_number"`
	Target       *float64   `db:"target" json:"target,omitempty"`
	SD           *float64   `db:"sd" json:"sd,omitempty"`
	ExplicitLow  *float64   `db:"explicit_low" json:"explicit_low,omitempty"`
	ExplicitHigh *float64   `db:"explicit_high" json:"explicit_high,omitempty"`
	Limit1Low    *float64   `db:"limit_1sd_low" json:"limit_1sd_low,omitempty"`
	Limit1High   *float64   `db:"limit_1sd_high" json:"limit_1sd_high,omitempty"`
	Limit2Low    *float64   `db:"limit_2sd_low" json:"limit_2sd_low,omitempty"`
	Limit2High   *float64   `db:"limit_2sd_high" json:"limit_2sd_high,omitempty"`
	Limit3Low    *float64   `db:"limit_3sd_low" json:"limit_3sd_low,omitempty"`
	Limit3High   *float64   `db:"limit_3sd_high" json:"limit_3sd_high,omitempty"`
	Active       bool       `db:"active" json:"active"`
	ReceivedDate *time.Time `db:"received_date" json:"received_date,omitempty"`
	ExpiryDate   *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// SDBased reports whether the lot carries target/SD limits as opposed to
// explicit bounds.
func (l *Lot) SDBased() bool {
	return l.Target != nil && l.SD != nil
}

// Run maps to the qc_runs table: one QC measurement against a lot. Status
// and violations are computed on save and immutable once approved.
type Run struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	LotID      uuid.UUID  `db:"lot_id" json:"lot_id"`
	Value      float64    `db:"value" json:"value"`
	RunAt      time.Time  `db:"run_at" json:"run_at"`
	RunNumber  int        `db:"run_number" json:"run_number"`
	Z          *float64   `db:"z" json:"z,omitempty"`
	Status     string     `db:"status" json:"status"`
	Violations []string   `db:"violations" json:"violations"`
	Approved   bool       `db:"approved" json:"approved"`
	ApprovedAt *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy *string    `db:"approved_by" json:"approved_by,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Action maps to the qc_actions table: a corrective action attached to a
// failed or warning run, resolved later.
type Action struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	RunID       uuid.UUID  `db:"run_id" json:"run_id"`
	ActionType  string     `db:"action_type" json:"action_type"`
	Description string     `db:"description" json:"description"`
	Resolved    bool       `db:"resolved" json:"resolved"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
