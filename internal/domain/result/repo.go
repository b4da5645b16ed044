package result

import (
	"context"

	"github.com/google/uuid"
)

type ResultRepository interface {
	Create(ctx context.Context, r *Result) error
	GetByID(ctx context.Context, id uuid.UUID) (*Result, error)
	GetByWorkItem(ctx context.Context, workItemID uuid.UUID) (*Result, error)
	Update(ctx context.Context, r *Result) error
}
