package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/lims/lims/internal/domain/catalog"
	"github.com/lims/lims/internal/domain/instrument"
	"github.com/lims/lims/internal/domain/order"
	"github.com/lims/lims/internal/domain/sequence"
	"github.com/lims/lims/internal/domain/specimen"
	"github.com/lims/lims/internal/domain/workitem"
	"github.com/lims/lims/internal/platform/db"
)

// Service stitches the domain services into the laboratory workflow:
// order intake, specimen collection and triage, dispatch to analyzers
// and order completion. Cascades that must hold together run in one
// transaction.
type Service struct {
	pool      *pgxpool.Pool
	tx        func(ctx context.Context, fn func(ctx context.Context) error) error
	seq       *sequence.Service
	orders    *order.Service
	specimens *specimen.Service
	items     *workitem.Service
	catalog   *catalog.Service
	gateway   *instrument.Gateway
	logger    zerolog.Logger
}

func NewService(pool *pgxpool.Pool, seq *sequence.Service, orders *order.Service,
	specimens *specimen.Service, items *workitem.Service, cat *catalog.Service,
	gateway *instrument.Gateway, logger zerolog.Logger) *Service {
	s := &Service{
		pool:      pool,
		seq:       seq,
		orders:    orders,
		specimens: specimens,
		items:     items,
		catalog:   cat,
		gateway:   gateway,
		logger:    logger,
	}
	s.tx = func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, s.pool, fn)
	}
	return s
}

// CreateOrder issues the order identifier, persists the order and
// materializes one pending work item per requested test, atomically.
func (s *Service) CreateOrder(ctx context.Context, o *order.Order) error {
	for _, code := range o.RequestedTests {
		test, err := s.catalog.GetTestByCode(ctx, code)
		if err != nil {
			return fmt.Errorf("unknown test code %q", code)
		}
		if !test.Active {
			return fmt.Errorf("test %q is not orderable", code)
		}
	}

	return s.tx(ctx, func(ctx context.Context) error {
		id, err := s.seq.Next(ctx, sequence.PrefixOrder)
		if err != nil {
			return err
		}
		o.OrderID = id
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		for _, code := range o.RequestedTests {
			item := &workitem.WorkItem{OrderID: o.ID, TestCode: code}
			if test, err := s.catalog.GetTestByCode(ctx, code); err == nil {
				item.DepartmentID = test.DepartmentID
			}
			if err := s.items.Create(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

// CollectSpecimen accessions a specimen against the order and binds it to
// every pending work item that has none yet.
func (s *Service) CollectSpecimen(ctx context.Context, orderID uuid.UUID, sp *specimen.Specimen) error {
	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return fmt.Errorf("order %s not found", orderID)
	}

	return s.tx(ctx, func(ctx context.Context) error {
		id, err := s.seq.Next(ctx, sequence.PrefixSpecimen)
		if err != nil {
			return err
		}
		sp.SpecimenID = id
		sp.OrderID = orderID
		if err := s.specimens.Accession(ctx, sp); err != nil {
			return err
		}

		pending, err := s.items.ListPendingByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, item := range pending {
			if item.SpecimenID != nil {
				continue
			}
			if _, err := s.items.BindSpecimen(ctx, item.ID, sp.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// AcceptSpecimen accepts the specimen and moves a still-pending order to
// received, in one transaction.
func (s *Service) AcceptSpecimen(ctx context.Context, specimenID uuid.UUID) (*specimen.Specimen, error) {
	var sp *specimen.Specimen
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		sp, err = s.specimens.Accept(ctx, specimenID)
		if err != nil {
			return err
		}
		ord, err := s.orders.Get(ctx, sp.OrderID)
		if err != nil {
			return err
		}
		if ord.Status == order.StatusPending {
			if _, err := s.orders.MarkReceived(ctx, ord.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return sp, err
}

// RejectSpecimen rejects the specimen. When every specimen of the order
// is rejected the order and its open work items cascade to rejected too.
func (s *Service) RejectSpecimen(ctx context.Context, specimenID uuid.UUID, reason string) (*specimen.Specimen, error) {
	var sp *specimen.Specimen
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		sp, err = s.specimens.Reject(ctx, specimenID, reason)
		if err != nil {
			return err
		}

		siblings, err := s.specimens.ListByOrder(ctx, sp.OrderID)
		if err != nil {
			return err
		}
		for _, sib := range siblings {
			if sib.Status != specimen.StatusRejected {
				return nil
			}
		}

		ord, err := s.orders.Get(ctx, sp.OrderID)
		if err != nil {
			return err
		}
		if ord.Status == order.StatusPending {
			if _, err := s.orders.Reject(ctx, ord.ID, reason); err != nil {
				return err
			}
		}
		items, err := s.items.ListByOrder(ctx, sp.OrderID)
		if err != nil {
			return err
		}
		// Only pending items carry the rejection down; the work item
		// state machine reaches rejected solely from pending.
		for _, item := range items {
			if item.Status != workitem.StatusPending {
				continue
			}
			if _, err := s.items.MarkRejected(ctx, item.ID, reason); err != nil {
				return err
			}
		}
		return nil
	})
	return sp, err
}

// Dispatch runs the dispatch checks and, if they clear, sends the work
// item to its analyzer. The first successful dispatch moves the order
// into analysis.
func (s *Service) Dispatch(ctx context.Context, itemID uuid.UUID) (*workitem.WorkItem, error) {
	item, err := s.items.CanDispatch(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.Send(ctx, item); err != nil {
		return nil, err
	}

	ord, err := s.orders.Get(ctx, item.OrderID)
	if err != nil {
		return nil, err
	}
	if ord.Status == order.StatusReceived {
		if _, err := s.orders.MoveToAnalysis(ctx, ord.ID); err != nil {
			return nil, err
		}
	}
	return s.items.Get(ctx, itemID)
}

// maybeCompleteOrder closes the analysis phase once every live work item
// of the order carries a result.
func (s *Service) maybeCompleteOrder(ctx context.Context, orderID uuid.UUID) error {
	ord, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if ord.Status != order.StatusAnalysis {
		return nil
	}

	items, err := s.items.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	done := 0
	for _, item := range items {
		switch item.Status {
		case workitem.StatusRejected:
		case workitem.StatusAnalysisComplete, workitem.StatusVerified:
			done++
		default:
			return nil
		}
	}
	if done == 0 {
		return nil
	}
	_, err = s.orders.CompleteAnalysis(ctx, orderID)
	return err
}
