package workitem

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lims/lims/internal/domain/audit"
)

// InstrumentInfo is what the dispatcher needs to know about an instrument.
type InstrumentInfo struct {
	Active   bool
	Endpoint string
}

// InstrumentLookup is satisfied by the instrument service.
type InstrumentLookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (InstrumentInfo, error)
}

// SpecimenInfo is what the dispatcher needs to know about a bound specimen.
type SpecimenInfo struct {
	Accepted bool
}

// SpecimenLookup is satisfied by the specimen service.
type SpecimenLookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (SpecimenInfo, error)
}

// QCGate is satisfied by the qc service's daily gate.
type QCGate interface {
	Approved(ctx context.Context, testCode string, day time.Time) (bool, error)
}

type Service struct {
	items       WorkItemRepository
	instruments InstrumentLookup
	specimens   SpecimenLookup
	gate        QCGate
	audit       *audit.Recorder
}

func NewService(items WorkItemRepository, instruments InstrumentLookup,
	specimens SpecimenLookup, gate QCGate, rec *audit.Recorder) *Service {
	return &Service{items: items, instruments: instruments, specimens: specimens, gate: gate, audit: rec}
}

// Create materializes one pending work item for an (order, test) pair.
// Uniqueness per pair is also enforced by the table constraint.
func (s *Service) Create(ctx context.Context, w *WorkItem) error {
	if w.TestCode == "" {
		return fmt.Errorf("test_code is required")
	}
	existing, err := s.items.ListByOrder(ctx, w.OrderID)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.TestCode == w.TestCode {
			return fmt.Errorf("work item for test %s already exists on this order", w.TestCode)
		}
	}
	w.Status = StatusPending
	if err := s.items.Create(ctx, w); err != nil {
		return err
	}
	return s.audit.Record(ctx, "workitem.created", "work_item", w.ID.String(), w.TestCode)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*WorkItem, error) {
	return s.items.GetByID(ctx, id)
}

func (s *Service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*WorkItem, error) {
	return s.items.ListByOrder(ctx, orderID)
}

func (s *Service) ListPendingByOrder(ctx context.Context, orderID uuid.UUID) ([]*WorkItem, error) {
	return s.items.ListPendingByOrder(ctx, orderID)
}

func (s *Service) ListPollable(ctx context.Context, instrumentID uuid.UUID, limit int) ([]*WorkItem, error) {
	return s.items.ListPollable(ctx, instrumentID, limit)
}

func (s *Service) ListRetryable(ctx context.Context, maxRetries int) ([]*WorkItem, error) {
	return s.items.ListRetryable(ctx, maxRetries)
}

// CanDispatch re-reads the item and checks every dispatch precondition
// against the freshest state, so two racing dispatch attempts cannot both
// pass. A closed QC gate is reported as ErrQCBlocked; every other refusal
// wraps ErrNotDispatchable.
func (s *Service) CanDispatch(ctx context.Context, id uuid.UUID) (*WorkItem, error) {
	w, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != StatusPending {
		return nil, fmt.Errorf("%w: status is %s, not pending", ErrNotDispatchable, w.Status)
	}
	if w.SpecimenID == nil {
		return nil, fmt.Errorf("%w: no specimen collected", ErrNotDispatchable)
	}
	sp, err := s.specimens.Lookup(ctx, *w.SpecimenID)
	if err != nil {
		return nil, fmt.Errorf("%w: specimen lookup failed: %v", ErrNotDispatchable, err)
	}
	if !sp.Accepted {
		return nil, fmt.Errorf("%w: specimen is not accepted", ErrNotDispatchable)
	}
	if w.InstrumentID == nil {
		return nil, fmt.Errorf("%w: no instrument assigned", ErrNotDispatchable)
	}
	info, err := s.instruments.Lookup(ctx, *w.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("%w: instrument lookup failed: %v", ErrNotDispatchable, err)
	}
	if !info.Active {
		return nil, fmt.Errorf("%w: instrument is not active", ErrNotDispatchable)
	}
	if info.Endpoint == "" {
		return nil, fmt.Errorf("%w: instrument has no endpoint configured", ErrNotDispatchable)
	}

	approved, err := s.gate.Approved(ctx, w.TestCode, time.Now())
	if err != nil {
		return nil, fmt.Errorf("qc gate check for %s: %w", w.TestCode, err)
	}
	if !approved {
		return nil, fmt.Errorf("%w: test %s has no passing QC today", ErrQCBlocked, w.TestCode)
	}
	return w, nil
}

func (s *Service) transition(ctx context.Context, w *WorkItem, to string) error {
	if !CanTransition(w.Status, to) {
		return fmt.Errorf("work item %s cannot move from %s to %s", w.ID, w.Status, to)
	}
	w.Status = to
	return nil
}

// MarkQueued records the instrument's tracking id. Called with the item
// already loaded by the gateway so the send result is not re-read.
func (s *Service) MarkQueued(ctx context.Context, id uuid.UUID, externalID string) (*WorkItem, error) {
	w, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, w, StatusQueued); err != nil {
		return nil, err
	}
	now := time.Now()
	w.ExternalID = &externalID
	w.QueuedAt = &now
	if err := s.items.Update(ctx, w); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "workitem.queued", "work_item", w.ID.String(), externalID); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) MarkInProgress(ctx context.Context, id uuid.UUID) (*WorkItem, error) {
	w, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, w, StatusInProgress); err != nil {
		return nil, err
	}
	now := time.Now()
	w.StartedAt = &now
	if err := s.items.Update(ctx, w); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "workitem.in_progress", "work_item", w.ID.String(), ""); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) MarkAnalyzed(ctx context.Context, id uuid.UUID) (*WorkItem, error) {
	w, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, w, StatusAnalysisComplete); err != nil {
		return nil, err
	}
	now := time.Now()
	w.AnalyzedAt = &now
	if err := s.items.Update(ctx, w); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "workitem.analyzed", "work_item", w.ID.String(), ""); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) MarkVerified(ctx context.Context, id uuid.UUID) (*WorkItem, error) {
	w, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, w, StatusVerified); err != nil {
		return nil, err
	}
	now := time.Now()
	w.VerifiedAt = &now
	if err := s.items.Update(ctx, w); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "workitem.verified", "work_item", w.ID.String(), ""); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) MarkRejected(ctx context.Context, id uuid.UUID, reason string) (*WorkItem, error) {
	if reason == "" {
		return nil, fmt.Errorf("rejection reason is required")
	}
	w, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, w, StatusRejected); err != nil {
		return nil, err
	}
	w.RejectionReason = &reason
	if err := s.items.Update(ctx, w); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "workitem.rejected", "work_item", w.ID.String(), reason); err != nil {
		return nil, err
	}
	return w, nil
}

// BindSpecimen attaches an accessioned specimen to a still-pending item.
func (s *Service) BindSpecimen(ctx context.Context, id, specimenID uuid.UUID) (*WorkItem, error) {
	w, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != StatusPending {
		return nil, fmt.Errorf("work item %s is %s; specimens bind only to pending items", w.ID, w.Status)
	}
	w.SpecimenID = &specimenID
	if err := s.items.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// RecordSendFailure increments retry bookkeeping after a failed send. The
// item stays pending so the retry sweep can pick it up.
func (s *Service) RecordSendFailure(ctx context.Context, id uuid.UUID) (*WorkItem, error) {
	w, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	w.RetryCount++
	w.LastSyncAttempt = &now
	if err := s.items.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// AssignInstrument routes a pending item to an instrument.
func (s *Service) AssignInstrument(ctx context.Context, id, instrumentID uuid.UUID) (*WorkItem, error) {
	w, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != StatusPending {
		return nil, fmt.Errorf("work item %s is %s; instruments assign only to pending items", w.ID, w.Status)
	}
	w.InstrumentID = &instrumentID
	if err := s.items.Update(ctx, w); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "workitem.assigned", "work_item", w.ID.String(), instrumentID.String()); err != nil {
		return nil, err
	}
	return w, nil
}
