package sequence

import "time"

// Known prefixes. Every generated identifier is the prefix followed by a
// zero-padded 6-digit counter, e.g. REQ000042.
const (
	PrefixOrder    = "REQ"
	PrefixSpecimen = "SAM"
)

// Counter maps to the sequence_counters table. One row per prefix within a
// tenant schema, created lazily on first use and never deleted.
type Counter struct {
	Prefix     string    `db:"prefix" json:"prefix"`
	LastNumber int64     `db:"last_number" json:"last_number"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
