package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const orderCols = `id, order_id, patient_ref, requested_tests, priority, status,
	consent, completed_at, verified_at, verified_by, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderID, &o.PatientRef, &o.RequestedTests, &o.Priority,
		&o.Status, &o.Consent, &o.CompletedAt, &o.VerifiedAt, &o.VerifiedBy,
		&o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO orders (id, order_id, patient_ref, requested_tests, priority, status, consent)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.OrderID, o.PatientRef, o.RequestedTests, o.Priority, o.Status, o.Consent)
	return err
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
}

func (r *orderRepoPG) GetByOrderID(ctx context.Context, orderID string) (*Order, error) {
	return scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE order_id = $1`, orderID))
}

func (r *orderRepoPG) Update(ctx context.Context, o *Order) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE orders SET status=$2, completed_at=$3, verified_at=$4, verified_by=$5, updated_at=NOW()
		WHERE id = $1`,
		o.ID, o.Status, o.CompletedAt, o.VerifiedAt, o.VerifiedBy)
	return err
}

func (r *orderRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Order, int, error) {
	where := ""
	args := []interface{}{}
	if status != "" {
		where = " WHERE status = $1"
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+orderCols+` FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}
