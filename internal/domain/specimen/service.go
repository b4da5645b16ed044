package specimen

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lims/lims/internal/domain/audit"
	"github.com/lims/lims/internal/domain/workitem"
)

type Service struct {
	specimens SpecimenRepository
	audit     *audit.Recorder
}

func NewService(specimens SpecimenRepository, rec *audit.Recorder) *Service {
	return &Service{specimens: specimens, audit: rec}
}

// Accession registers a freshly collected specimen. The caller supplies the
// sequence-generated specimen id.
func (s *Service) Accession(ctx context.Context, sp *Specimen) error {
	if sp.SpecimenID == "" {
		return fmt.Errorf("specimen_id is required")
	}
	if sp.Type == "" {
		return fmt.Errorf("type is required")
	}
	if sp.Collector == "" {
		return fmt.Errorf("collector is required")
	}
	sp.Status = StatusAccessioned
	if sp.CollectedAt.IsZero() {
		sp.CollectedAt = time.Now()
	}
	if err := s.specimens.Create(ctx, sp); err != nil {
		return err
	}
	return s.audit.Record(ctx, "specimen.accessioned", "specimen", sp.SpecimenID, sp.Type)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	return s.specimens.GetByID(ctx, id)
}

func (s *Service) GetBySpecimenID(ctx context.Context, specimenID string) (*Specimen, error) {
	return s.specimens.GetBySpecimenID(ctx, specimenID)
}

// Lookup feeds the dispatcher's specimen check.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (workitem.SpecimenInfo, error) {
	sp, err := s.specimens.GetByID(ctx, id)
	if err != nil {
		return workitem.SpecimenInfo{}, err
	}
	return workitem.SpecimenInfo{Accepted: sp.Status == StatusAccepted}, nil
}

func (s *Service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Specimen, error) {
	return s.specimens.ListByOrder(ctx, orderID)
}

// Verify records the verifier without changing status. A rejected specimen
// can no longer be verified.
func (s *Service) Verify(ctx context.Context, id uuid.UUID, actor string) (*Specimen, error) {
	sp, err := s.specimens.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Status == StatusRejected {
		return nil, fmt.Errorf("specimen %s is rejected and cannot be verified", sp.SpecimenID)
	}
	now := time.Now()
	sp.VerifiedBy = &actor
	sp.VerifiedAt = &now
	if err := s.specimens.Update(ctx, sp); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "specimen.verified", "specimen", sp.SpecimenID, ""); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) transition(ctx context.Context, sp *Specimen, to string) error {
	if !CanTransition(sp.Status, to) {
		if IsTerminal(sp.Status) {
			return fmt.Errorf("specimen %s is %s, a terminal state", sp.SpecimenID, sp.Status)
		}
		return fmt.Errorf("specimen %s cannot move from %s to %s", sp.SpecimenID, sp.Status, to)
	}
	sp.Status = to
	return nil
}

// Accept moves the specimen to accepted. Order advancement and work item
// queueing are orchestrated by the workflow layer around this call.
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	sp, err := s.specimens.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, sp, StatusAccepted); err != nil {
		return nil, err
	}
	if err := s.specimens.Update(ctx, sp); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "specimen.accepted", "specimen", sp.SpecimenID, ""); err != nil {
		return nil, err
	}
	return sp, nil
}

// Reject requires a non-empty reason. Whether the parent order must also be
// rejected is decided by the workflow layer, which can see the siblings.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*Specimen, error) {
	if reason == "" {
		return nil, fmt.Errorf("rejection reason is required")
	}
	sp, err := s.specimens.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, sp, StatusRejected); err != nil {
		return nil, err
	}
	sp.RejectionReason = &reason
	if err := s.specimens.Update(ctx, sp); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "specimen.rejected", "specimen", sp.SpecimenID, reason); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) Store(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	sp, err := s.specimens.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, sp, StatusStored); err != nil {
		return nil, err
	}
	now := time.Now()
	sp.StoredAt = &now
	if err := s.specimens.Update(ctx, sp); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "specimen.stored", "specimen", sp.SpecimenID, ""); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) Consume(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	sp, err := s.specimens.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, sp, StatusConsumed); err != nil {
		return nil, err
	}
	now := time.Now()
	sp.ConsumedAt = &now
	if err := s.specimens.Update(ctx, sp); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "specimen.consumed", "specimen", sp.SpecimenID, ""); err != nil {
		return nil, err
	}
	return sp, nil
}
