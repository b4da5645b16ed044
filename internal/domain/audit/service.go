package audit

import (
	"context"
	"fmt"

	"github.com/lims/lims/internal/platform/db"
	"github.com/lims/lims/internal/platform/middleware"
)

// Recorder writes one audit event per state-changing operation. It reads
// the tenant and actor from the context so domain services only name the
// action and the entity. Called inside the same transaction as the
// mutation, so a rolled-back operation leaves no audit trail.
type Recorder struct {
	events EventRepository
}

func NewRecorder(events EventRepository) *Recorder {
	return &Recorder{events: events}
}

func (r *Recorder) Record(ctx context.Context, action, entityType, entityID string, detail string) error {
	e := &Event{
		Tenant:     db.TenantFromContext(ctx),
		Actor:      middleware.ActorFromContext(ctx),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if detail != "" {
		e.Detail = &detail
	}
	if err := r.events.Append(ctx, e); err != nil {
		return fmt.Errorf("record audit event %s %s/%s: %w", action, entityType, entityID, err)
	}
	return nil
}

func (r *Recorder) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*Event, int, error) {
	return r.events.ListByEntity(ctx, entityType, entityID, limit, offset)
}
