package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LabTest maps to the lab_tests table. QCLevels names the control levels
// that must pass QC each day before the test is approved for patient
// dispatch, e.g. ["L1", "L2"].
type LabTest struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Code         string     `db:"code" json:"code"`
	Name         string     `db:"name" json:"name"`
	Units        *string    `db:"units" json:"units,omitempty"`
	MinRef       *float64   `db:"min_ref" json:"min_ref,omitempty"`
	MaxRef       *float64   `db:"max_ref" json:"max_ref,omitempty"`
	SpecimenType string     `db:"specimen_type" json:"specimen_type"`
	DepartmentID *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	QCLevels     []string   `db:"qc_levels" json:"qc_levels"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ReferenceRange renders the display range, "70 - 110". Empty when the
// test carries no numeric bounds.
func (t *LabTest) ReferenceRange() string {
	if t.MinRef == nil || t.MaxRef == nil {
		return ""
	}
	return fmt.Sprintf("%g - %g", *t.MinRef, *t.MaxRef)
}

// Department maps to the departments table.
type Department struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
