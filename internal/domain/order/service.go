package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lims/lims/internal/domain/audit"
)

type Service struct {
	orders OrderRepository
	audit  *audit.Recorder
}

func NewService(orders OrderRepository, rec *audit.Recorder) *Service {
	return &Service{orders: orders, audit: rec}
}

// Create persists a new pending order. The caller supplies the
// sequence-generated order id; the requested test set is fixed from here on.
func (s *Service) Create(ctx context.Context, o *Order) error {
	if o.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if o.PatientRef == "" {
		return fmt.Errorf("patient_ref is required")
	}
	if len(o.RequestedTests) == 0 {
		return fmt.Errorf("at least one test is required")
	}
	seen := make(map[string]bool, len(o.RequestedTests))
	for _, code := range o.RequestedTests {
		if code == "" {
			return fmt.Errorf("empty test code")
		}
		if seen[code] {
			return fmt.Errorf("duplicate test code: %s", code)
		}
		seen[code] = true
	}
	if o.Priority == "" {
		o.Priority = PriorityRoutine
	}
	if o.Priority != PriorityRoutine && o.Priority != PriorityUrgent {
		return fmt.Errorf("invalid priority: %s", o.Priority)
	}
	o.Status = StatusPending

	if err := s.orders.Create(ctx, o); err != nil {
		return err
	}
	return s.audit.Record(ctx, "order.created", "order", o.OrderID,
		fmt.Sprintf("%d tests", len(o.RequestedTests)))
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByOrderID(ctx, orderID)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Order, int, error) {
	return s.orders.List(ctx, status, limit, offset)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to, action, detail string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, fmt.Errorf("order %s cannot move from %s to %s", o.OrderID, o.Status, to)
	}
	o.Status = to
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, action, "order", o.OrderID, detail); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) MarkReceived(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.transition(ctx, id, StatusReceived, "order.received", "")
}

func (s *Service) MoveToAnalysis(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.transition(ctx, id, StatusAnalysis, "order.analysis", "")
}

func (s *Service) CompleteAnalysis(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusComplete) {
		return nil, fmt.Errorf("order %s cannot move from %s to %s", o.OrderID, o.Status, StatusComplete)
	}
	now := time.Now()
	o.Status = StatusComplete
	o.CompletedAt = &now
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "order.completed", "order", o.OrderID, ""); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Verify(ctx context.Context, id uuid.UUID, actor string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusVerified) {
		return nil, fmt.Errorf("order %s cannot move from %s to %s", o.OrderID, o.Status, StatusVerified)
	}
	now := time.Now()
	o.Status = StatusVerified
	o.VerifiedAt = &now
	o.VerifiedBy = &actor
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "order.verified", "order", o.OrderID, ""); err != nil {
		return nil, err
	}
	return o, nil
}

// Reject is reached only through the specimen cascade, when every specimen
// under the order has been rejected.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*Order, error) {
	return s.transition(ctx, id, StatusRejected, "order.rejected", reason)
}
