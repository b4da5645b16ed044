package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type testRepoPG struct{ pool *pgxpool.Pool }

func NewTestRepoPG(pool *pgxpool.Pool) TestRepository {
	return &testRepoPG{pool: pool}
}

func (r *testRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const testCols = `id, code, name, units, min_ref, max_ref, specimen_type,
	department_id, qc_levels, active, created_at, updated_at`

func scanTest(row pgx.Row) (*LabTest, error) {
	var t LabTest
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Units, &t.MinRef, &t.MaxRef,
		&t.SpecimenType, &t.DepartmentID, &t.QCLevels, &t.Active,
		&t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *testRepoPG) Create(ctx context.Context, t *LabTest) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_tests (id, code, name, units, min_ref, max_ref,
			specimen_type, department_id, qc_levels, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.Code, t.Name, t.Units, t.MinRef, t.MaxRef,
		t.SpecimenType, t.DepartmentID, t.QCLevels, t.Active)
	return err
}

func (r *testRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return scanTest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+testCols+` FROM lab_tests WHERE id = $1`, id))
}

func (r *testRepoPG) GetByCode(ctx context.Context, code string) (*LabTest, error) {
	return scanTest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+testCols+` FROM lab_tests WHERE code = $1`, code))
}

func (r *testRepoPG) Update(ctx context.Context, t *LabTest) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_tests SET name=$2, units=$3, min_ref=$4, max_ref=$5,
			specimen_type=$6, department_id=$7, qc_levels=$8, active=$9,
			updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.Name, t.Units, t.MinRef, t.MaxRef,
		t.SpecimenType, t.DepartmentID, t.QCLevels, t.Active)
	return err
}

func (r *testRepoPG) List(ctx context.Context, limit, offset int) ([]*LabTest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_tests`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+testCols+` FROM lab_tests ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tests []*LabTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, 0, err
		}
		tests = append(tests, t)
	}
	return tests, total, rows.Err()
}

type departmentRepoPG struct{ pool *pgxpool.Pool }

func NewDepartmentRepoPG(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepoPG{pool: pool}
}

func (r *departmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *departmentRepoPG) Create(ctx context.Context, d *Department) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO departments (id, code, name) VALUES ($1,$2,$3)`,
		d.ID, d.Code, d.Name)
	return err
}

func (r *departmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	var d Department
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, code, name, created_at FROM departments WHERE id = $1`, id).
		Scan(&d.ID, &d.Code, &d.Name, &d.CreatedAt)
	return &d, err
}

func (r *departmentRepoPG) List(ctx context.Context) ([]*Department, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, code, name, created_at FROM departments ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departments []*Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.CreatedAt); err != nil {
			return nil, err
		}
		departments = append(departments, &d)
	}
	return departments, rows.Err()
}
