package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

type eventRepoPG struct{ pool *pgxpool.Pool }

func NewEventRepoPG(pool *pgxpool.Pool) EventRepository {
	return &eventRepoPG{pool: pool}
}

func (r *eventRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *eventRepoPG) Append(ctx context.Context, e *Event) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_events (id, tenant, actor, action, entity_type, entity_id, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.Tenant, e.Actor, e.Action, e.EntityType, e.EntityID, e.Detail)
	return err
}

func (r *eventRepoPG) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*Event, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_events WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, tenant, actor, action, entity_type, entity_id, detail, created_at
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		entityType, entityID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Tenant, &e.Actor, &e.Action,
			&e.EntityType, &e.EntityID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		events = append(events, &e)
	}
	return events, total, rows.Err()
}
