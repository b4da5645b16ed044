package workitem

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type workItemRepoPG struct{ pool *pgxpool.Pool }

func NewWorkItemRepoPG(pool *pgxpool.Pool) WorkItemRepository {
	return &workItemRepoPG{pool: pool}
}

func (r *workItemRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const itemCols = `id, order_id, test_code, specimen_id, department_id, instrument_id,
	status, external_id, retry_count, last_sync_attempt, rejection_reason,
	queued_at, started_at, analyzed_at, verified_at, created_at, updated_at`

func scanItem(row pgx.Row) (*WorkItem, error) {
	var w WorkItem
	err := row.Scan(&w.ID, &w.OrderID, &w.TestCode, &w.SpecimenID, &w.DepartmentID,
		&w.InstrumentID, &w.Status, &w.ExternalID, &w.RetryCount, &w.LastSyncAttempt,
		&w.RejectionReason, &w.QueuedAt, &w.StartedAt, &w.AnalyzedAt, &w.VerifiedAt,
		&w.CreatedAt, &w.UpdatedAt)
	return &w, err
}

func (r *workItemRepoPG) Create(ctx context.Context, w *WorkItem) error {
	w.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO work_items (id, order_id, test_code, specimen_id, department_id, instrument_id, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		w.ID, w.OrderID, w.TestCode, w.SpecimenID, w.DepartmentID, w.InstrumentID, w.Status)
	return err
}

func (r *workItemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*WorkItem, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM work_items WHERE id = $1`, id))
}

func (r *workItemRepoPG) Update(ctx context.Context, w *WorkItem) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE work_items SET specimen_id=$2, department_id=$3, instrument_id=$4,
			status=$5, external_id=$6, retry_count=$7, last_sync_attempt=$8,
			rejection_reason=$9, queued_at=$10, started_at=$11, analyzed_at=$12,
			verified_at=$13, updated_at=NOW()
		WHERE id = $1`,
		w.ID, w.SpecimenID, w.DepartmentID, w.InstrumentID,
		w.Status, w.ExternalID, w.RetryCount, w.LastSyncAttempt,
		w.RejectionReason, w.QueuedAt, w.StartedAt, w.AnalyzedAt, w.VerifiedAt)
	return err
}

func (r *workItemRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*WorkItem, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*WorkItem
	for rows.Next() {
		w, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func (r *workItemRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*WorkItem, error) {
	return r.list(ctx,
		`SELECT `+itemCols+` FROM work_items WHERE order_id = $1 ORDER BY created_at`, orderID)
}

func (r *workItemRepoPG) ListPendingByOrder(ctx context.Context, orderID uuid.UUID) ([]*WorkItem, error) {
	return r.list(ctx,
		`SELECT `+itemCols+` FROM work_items WHERE order_id = $1 AND status = $2 ORDER BY created_at`,
		orderID, StatusPending)
}

func (r *workItemRepoPG) ListPollable(ctx context.Context, instrumentID uuid.UUID, limit int) ([]*WorkItem, error) {
	return r.list(ctx, `
		SELECT `+itemCols+` FROM work_items
		WHERE instrument_id = $1
		  AND status IN ($2, $3)
		  AND external_id IS NOT NULL
		ORDER BY queued_at
		LIMIT $4`,
		instrumentID, StatusQueued, StatusInProgress, limit)
}

func (r *workItemRepoPG) ListRetryable(ctx context.Context, maxRetries int) ([]*WorkItem, error) {
	return r.list(ctx, `
		SELECT `+prefixedItemCols("w")+` FROM work_items w
		JOIN instruments i ON i.id = w.instrument_id
		WHERE w.retry_count > 0 AND w.retry_count < $1
		  AND w.status = $2
		  AND i.status = 'active'
		ORDER BY w.last_sync_attempt`,
		maxRetries, StatusPending)
}

func prefixedItemCols(alias string) string {
	return alias + ".id, " + alias + ".order_id, " + alias + ".test_code, " +
		alias + ".specimen_id, " + alias + ".department_id, " + alias + ".instrument_id, " +
		alias + ".status, " + alias + ".external_id, " + alias + ".retry_count, " +
		alias + ".last_sync_attempt, " + alias + ".rejection_reason, " +
		alias + ".queued_at, " + alias + ".started_at, " + alias + ".analyzed_at, " +
		alias + ".verified_at, " + alias + ".created_at, " + alias + ".updated_at"
}
