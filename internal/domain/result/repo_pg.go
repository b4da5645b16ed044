package result

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type resultRepoPG struct{ pool *pgxpool.Pool }

func NewResultRepoPG(pool *pgxpool.Pool) ResultRepository {
	return &resultRepoPG{pool: pool}
}

func (r *resultRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const resultCols = `id, work_item_id, value, units, ref_range, flag, remarks,
	version, history, entered_by, verified_by, verified_at,
	released, released_by, released_at, created_at, updated_at`

func scanResult(row pgx.Row) (*Result, error) {
	var res Result
	var history []byte
	err := row.Scan(&res.ID, &res.WorkItemID, &res.Value, &res.Units, &res.RefRange,
		&res.Flag, &res.Remarks, &res.Version, &history, &res.EnteredBy,
		&res.VerifiedBy, &res.VerifiedAt, &res.Released, &res.ReleasedBy,
		&res.ReleasedAt, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &res.History); err != nil {
			return nil, fmt.Errorf("decode result history: %w", err)
		}
	}
	return &res, nil
}

func (r *resultRepoPG) Create(ctx context.Context, res *Result) error {
	res.ID = uuid.New()
	history, err := json.Marshal(res.History)
	if err != nil {
		return fmt.Errorf("encode result history: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO results (id, work_item_id, value, units, ref_range, flag,
			remarks, version, history, entered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		res.ID, res.WorkItemID, res.Value, res.Units, res.RefRange, res.Flag,
		res.Remarks, res.Version, history, res.EnteredBy)
	return err
}

func (r *resultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Result, error) {
	return scanResult(r.conn(ctx).QueryRow(ctx,
		`SELECT `+resultCols+` FROM results WHERE id = $1`, id))
}

func (r *resultRepoPG) GetByWorkItem(ctx context.Context, workItemID uuid.UUID) (*Result, error) {
	return scanResult(r.conn(ctx).QueryRow(ctx,
		`SELECT `+resultCols+` FROM results WHERE work_item_id = $1`, workItemID))
}

func (r *resultRepoPG) Update(ctx context.Context, res *Result) error {
	history, err := json.Marshal(res.History)
	if err != nil {
		return fmt.Errorf("encode result history: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE results SET value=$2, units=$3, ref_range=$4, flag=$5, remarks=$6,
			version=$7, history=$8, verified_by=$9, verified_at=$10,
			released=$11, released_by=$12, released_at=$13, updated_at=NOW()
		WHERE id = $1`,
		res.ID, res.Value, res.Units, res.RefRange, res.Flag, res.Remarks,
		res.Version, history, res.VerifiedBy, res.VerifiedAt,
		res.Released, res.ReleasedBy, res.ReleasedAt)
	return err
}
