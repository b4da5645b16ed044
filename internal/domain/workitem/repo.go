package workitem

import (
	"context"

	"github.com/google/uuid"
)

type WorkItemRepository interface {
	Create(ctx context.Context, w *WorkItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*WorkItem, error)
	Update(ctx context.Context, w *WorkItem) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*WorkItem, error)
	ListPendingByOrder(ctx context.Context, orderID uuid.UUID) ([]*WorkItem, error)
	// ListPollable returns items on the instrument in queued/in_progress
	// that carry an external id, oldest first, capped at limit.
	ListPollable(ctx context.Context, instrumentID uuid.UUID, limit int) ([]*WorkItem, error)
	// ListRetryable returns items with 0 < retry_count < maxRetries whose
	// instrument is active.
	ListRetryable(ctx context.Context, maxRetries int) ([]*WorkItem, error)
}
