package catalog

import (
	"context"

	"github.com/google/uuid"
)

type TestRepository interface {
	Create(ctx context.Context, t *LabTest) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error)
	GetByCode(ctx context.Context, code string) (*LabTest, error)
	Update(ctx context.Context, t *LabTest) error
	List(ctx context.Context, limit, offset int) ([]*LabTest, int, error)
}

type DepartmentRepository interface {
	Create(ctx context.Context, d *Department) error
	GetByID(ctx context.Context, id uuid.UUID) (*Department, error)
	List(ctx context.Context) ([]*Department, error)
}
