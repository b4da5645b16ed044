package order

import (
	"context"

	"github.com/google/uuid"
)

type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByOrderID(ctx context.Context, orderID string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	List(ctx context.Context, status string, limit, offset int) ([]*Order, int, error)
}
