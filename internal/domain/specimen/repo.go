package specimen

import (
	"context"

	"github.com/google/uuid"
)

type SpecimenRepository interface {
	Create(ctx context.Context, s *Specimen) error
	GetByID(ctx context.Context, id uuid.UUID) (*Specimen, error)
	GetBySpecimenID(ctx context.Context, specimenID string) (*Specimen, error)
	Update(ctx context.Context, s *Specimen) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Specimen, error)
}
