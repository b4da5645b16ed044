package specimen

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type specimenRepoPG struct{ pool *pgxpool.Pool }

func NewSpecimenRepoPG(pool *pgxpool.Pool) SpecimenRepository {
	return &specimenRepoPG{pool: pool}
}

func (r *specimenRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const specimenCols = `id, specimen_id, order_id, type, status, collector,
	collected_at, verified_by, verified_at, rejection_reason,
	stored_at, consumed_at, created_at, updated_at`

func scanSpecimen(row pgx.Row) (*Specimen, error) {
	var s Specimen
	err := row.Scan(&s.ID, &s.SpecimenID, &s.OrderID, &s.Type, &s.Status, &s.Collector,
		&s.CollectedAt, &s.VerifiedBy, &s.VerifiedAt, &s.RejectionReason,
		&s.StoredAt, &s.ConsumedAt, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *specimenRepoPG) Create(ctx context.Context, s *Specimen) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO specimens (id, specimen_id, order_id, type, status, collector, collected_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.SpecimenID, s.OrderID, s.Type, s.Status, s.Collector, s.CollectedAt)
	return err
}

func (r *specimenRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	return scanSpecimen(r.conn(ctx).QueryRow(ctx,
		`SELECT `+specimenCols+` FROM specimens WHERE id = $1`, id))
}

func (r *specimenRepoPG) GetBySpecimenID(ctx context.Context, specimenID string) (*Specimen, error) {
	return scanSpecimen(r.conn(ctx).QueryRow(ctx,
		`SELECT `+specimenCols+` FROM specimens WHERE specimen_id = $1`, specimenID))
}

func (r *specimenRepoPG) Update(ctx context.Context, s *Specimen) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE specimens SET status=$2, verified_by=$3, verified_at=$4,
			rejection_reason=$5, stored_at=$6, consumed_at=$7, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Status, s.VerifiedBy, s.VerifiedAt,
		s.RejectionReason, s.StoredAt, s.ConsumedAt)
	return err
}

func (r *specimenRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Specimen, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+specimenCols+` FROM specimens WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specimens []*Specimen
	for rows.Next() {
		s, err := scanSpecimen(rows)
		if err != nil {
			return nil, err
		}
		specimens = append(specimens, s)
	}
	return specimens, rows.Err()
}
