package qc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type lotRepoPG struct{ pool *pgxpool.Pool }

func NewLotRepoPG(pool *pgxpool.Pool) LotRepository {
	return &lotRepoPG{pool: pool}
}

func (r *lotRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const lotCols = `id, test_code, level, lot_number, target, sd,
	explicit_low, explicit_high,
	limit_1sd_low, limit_1sd_high, limit_2sd_low, limit_2sd_high,
	limit_3sd_low, limit_3sd_high,
	active, received_date, expiry_date, created_at, updated_at`

func scanLot(row pgx.Row) (*Lot, error) {
	var l Lot
	err := row.Scan(&l.ID, &l.TestCode, &l.Level, &l.LotNumber, &l.Target, &l.SD,
		&l.ExplicitLow, &l.ExplicitHigh,
		&l.Limit1Low, &l.Limit1High, &l.Limit2Low, &l.Limit2High,
		&l.Limit3Low, &l.Limit3High,
		&l.Active, &l.ReceivedDate, &l.ExpiryDate, &l.CreatedAt, &l.UpdatedAt)
	return &l, err
}

func (r *lotRepoPG) Create(ctx context.Context, l *Lot) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO qc_lots (id, test_code, level, lot_number, target, sd,
			explicit_low, explicit_high,
			limit_1sd_low, limit_1sd_high, limit_2sd_low, limit_2sd_high,
			limit_3sd_low, limit_3sd_high,
			active, received_date, expiry_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		l.ID, l.TestCode, l.Level, l.LotNumber, l.Target, l.SD,
		l.ExplicitLow, l.ExplicitHigh,
		l.Limit1Low, l.Limit1High, l.Limit2Low, l.Limit2High,
		l.Limit3Low, l.Limit3High,
		l.Active, l.ReceivedDate, l.ExpiryDate)
	return err
}

func (r *lotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Lot, error) {
	return scanLot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+lotCols+` FROM qc_lots WHERE id = $1`, id))
}

func (r *lotRepoPG) Update(ctx context.Context, l *Lot) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE qc_lots SET lot_number=$2, target=$3, sd=$4,
			explicit_low=$5, explicit_high=$6,
			limit_1sd_low=$7, limit_1sd_high=$8, limit_2sd_low=$9, limit_2sd_high=$10,
			limit_3sd_low=$11, limit_3sd_high=$12,
			received_date=$13, expiry_date=$14, updated_at=NOW()
		WHERE id = $1`,
		l.ID, l.LotNumber, l.Target, l.SD,
		l.ExplicitLow, l.ExplicitHigh,
		l.Limit1Low, l.Limit1High, l.Limit2Low, l.Limit2High,
		l.Limit3Low, l.Limit3High,
		l.ReceivedDate, l.ExpiryDate)
	return err
}

func (r *lotRepoPG) ListByTest(ctx context.Context, testCode string) ([]*Lot, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+lotCols+` FROM qc_lots WHERE test_code = $1 ORDER BY level, created_at DESC`, testCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []*Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

// Activate flips the active flag for the whole sibling group in a single
// statement, so there is never a window with zero or two active lots.
func (r *lotRepoPG) Activate(ctx context.Context, id uuid.UUID, testCode, level string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE qc_lots SET active = (id = $1), updated_at = NOW()
		WHERE test_code = $2 AND level = $3`,
		id, testCode, level)
	return err
}

func (r *lotRepoPG) GetActive(ctx context.Context, testCode, level string) (*Lot, error) {
	l, err := scanLot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+lotCols+` FROM qc_lots WHERE test_code = $1 AND level = $2 AND active`, testCode, level))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveLot
	}
	return l, err
}

type runRepoPG struct{ pool *pgxpool.Pool }

func NewRunRepoPG(pool *pgxpool.Pool) RunRepository {
	return &runRepoPG{pool: pool}
}

func (r *runRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const runCols = `id, lot_id, value, run_at, run_number, z, status, violations,
	approved, approved_at, approved_by, created_at`

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.LotID, &run.Value, &run.RunAt, &run.RunNumber,
		&run.Z, &run.Status, &run.Violations,
		&run.Approved, &run.ApprovedAt, &run.ApprovedBy, &run.CreatedAt)
	return &run, err
}

func (r *runRepoPG) Create(ctx context.Context, run *Run) error {
	run.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO qc_runs (id, lot_id, value, run_at, run_number, z, status,
			violations, approved, approved_at, approved_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		run.ID, run.LotID, run.Value, run.RunAt, run.RunNumber, run.Z, run.Status,
		run.Violations, run.Approved, run.ApprovedAt, run.ApprovedBy)
	return err
}

func (r *runRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	return scanRun(r.conn(ctx).QueryRow(ctx,
		`SELECT `+runCols+` FROM qc_runs WHERE id = $1`, id))
}

func (r *runRepoPG) Update(ctx context.Context, run *Run) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE qc_runs SET status=$2, violations=$3, approved=$4, approved_at=$5, approved_by=$6
		WHERE id = $1`,
		run.ID, run.Status, run.Violations, run.Approved, run.ApprovedAt, run.ApprovedBy)
	return err
}

func (r *runRepoPG) ListRecent(ctx context.Context, lotID uuid.UUID, limit int) ([]*Run, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+runCols+` FROM qc_runs
		WHERE lot_id = $1
		ORDER BY run_at DESC, run_number DESC
		LIMIT $2`, lotID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *runRepoPG) HasPassingRunOn(ctx context.Context, lotID uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM qc_runs
			WHERE lot_id = $1 AND status = $2 AND run_at::date = $3::date
		)`, lotID, StatusPass, day).Scan(&exists)
	return exists, err
}

func (r *runRepoPG) CountOn(ctx context.Context, lotID uuid.UUID, day time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM qc_runs WHERE lot_id = $1 AND run_at::date = $2::date`,
		lotID, day).Scan(&n)
	return n, err
}

type actionRepoPG struct{ pool *pgxpool.Pool }

func NewActionRepoPG(pool *pgxpool.Pool) ActionRepository {
	return &actionRepoPG{pool: pool}
}

func (r *actionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *actionRepoPG) Create(ctx context.Context, a *Action) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO qc_actions (id, run_id, action_type, description, resolved)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.RunID, a.ActionType, a.Description, a.Resolved)
	return err
}

func (r *actionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Action, error) {
	var a Action
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, run_id, action_type, description, resolved, resolved_at, created_at
		FROM qc_actions WHERE id = $1`, id).
		Scan(&a.ID, &a.RunID, &a.ActionType, &a.Description, &a.Resolved, &a.ResolvedAt, &a.CreatedAt)
	return &a, err
}

func (r *actionRepoPG) Update(ctx context.Context, a *Action) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE qc_actions SET resolved=$2, resolved_at=$3 WHERE id = $1`,
		a.ID, a.Resolved, a.ResolvedAt)
	return err
}

func (r *actionRepoPG) ListByRun(ctx context.Context, runID uuid.UUID) ([]*Action, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, run_id, action_type, description, resolved, resolved_at, created_at
		FROM qc_actions WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.ID, &a.RunID, &a.ActionType, &a.Description,
			&a.Resolved, &a.ResolvedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}
