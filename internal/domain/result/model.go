package result

import (
	"time"

	"github.com/google/uuid"
)

const (
	FlagNormal   = "normal"
	FlagLow      = "low"
	FlagHigh     = "high"
	FlagAbnormal = "abnormal"
)

// HistoryEntry is one displaced value. The slice is stored as jsonb and
// only ever appended to.
type HistoryEntry struct {
	Version int       `json:"version"`
	Value   string    `json:"value"`
	Actor   string    `json:"actor"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// Result maps to the results table. At most one row per work item.
type Result struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	WorkItemID uuid.UUID      `db:"work_item_id" json:"work_item_id"`
	Value      string         `db:"value" json:"value"`
	Units      *string        `db:"units" json:"units,omitempty"`
	RefRange   *string        `db:"ref_range" json:"ref_range,omitempty"`
	Flag       string         `db:"flag" json:"flag"`
	Remarks    *string        `db:"remarks" json:"remarks,omitempty"`
	Version    int            `db:"version" json:"version"`
	History    []HistoryEntry `db:"history" json:"history"`
	EnteredBy  string         `db:"entered_by" json:"entered_by"`
	VerifiedBy *string        `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt *time.Time     `db:"verified_at" json:"verified_at,omitempty"`
	Released   bool           `db:"released" json:"released"`
	ReleasedBy *string        `db:"released_by" json:"released_by,omitempty"`
	ReleasedAt *time.Time     `db:"released_at" json:"released_at,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}
