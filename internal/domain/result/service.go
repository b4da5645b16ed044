package result

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lims/lims/internal/domain/audit"
)

type Service struct {
	results ResultRepository
	audit   *audit.Recorder
}

func NewService(results ResultRepository, rec *audit.Recorder) *Service {
	return &Service{results: results, audit: rec}
}

// Enter creates the single result for a work item. The flag is computed
// here, never supplied by the caller.
func (s *Service) Enter(ctx context.Context, res *Result, minRef, maxRef *float64) error {
	if res.Value == "" {
		return fmt.Errorf("value is required")
	}
	if res.EnteredBy == "" {
		return fmt.Errorf("entered_by is required")
	}
	if existing, err := s.results.GetByWorkItem(ctx, res.WorkItemID); err == nil && existing != nil {
		return fmt.Errorf("work item %s already has a result", res.WorkItemID)
	}
	res.Flag = ComputeFlag(res.Value, minRef, maxRef)
	res.Version = 1
	if err := s.results.Create(ctx, res); err != nil {
		return err
	}
	return s.audit.Record(ctx, "result.entered", "result", res.ID.String(),
		fmt.Sprintf("value=%s flag=%s", res.Value, res.Flag))
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Result, error) {
	return s.results.GetByID(ctx, id)
}

func (s *Service) GetByWorkItem(ctx context.Context, workItemID uuid.UUID) (*Result, error) {
	return s.results.GetByWorkItem(ctx, workItemID)
}

// UpdateValue pushes the displaced value onto history, overwrites,
// increments version by exactly one and re-flags. Released results may
// still be corrected; release is never undone by a correction.
func (s *Service) UpdateValue(ctx context.Context, id uuid.UUID, newValue, actor, reason string, minRef, maxRef *float64) (*Result, error) {
	if newValue == "" {
		return nil, fmt.Errorf("value is required")
	}
	if reason == "" {
		return nil, fmt.Errorf("a correction reason is required")
	}
	res, err := s.results.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	res.History = append(res.History, HistoryEntry{
		Version: res.Version,
		Value:   res.Value,
		Actor:   actor,
		Reason:  reason,
		At:      time.Now(),
	})
	res.Value = newValue
	res.Version++
	res.Flag = ComputeFlag(newValue, minRef, maxRef)

	if err := s.results.Update(ctx, res); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "result.corrected", "result", res.ID.String(), reason); err != nil {
		return nil, err
	}
	return res, nil
}

// MarkVerified rejects self-verification: the verifier must differ from
// the original enterer. This is a domain invariant, not a UI nicety.
func (s *Service) MarkVerified(ctx context.Context, id uuid.UUID, actor string) (*Result, error) {
	res, err := s.results.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.VerifiedAt != nil {
		return nil, fmt.Errorf("result %s is already verified", res.ID)
	}
	if actor == res.EnteredBy {
		return nil, fmt.Errorf("result %s cannot be verified by its enterer %s", res.ID, actor)
	}
	now := time.Now()
	res.VerifiedBy = &actor
	res.VerifiedAt = &now
	if err := s.results.Update(ctx, res); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "result.verified", "result", res.ID.String(), ""); err != nil {
		return nil, err
	}
	return res, nil
}

// Release requires verification and is terminal; there is no un-release.
func (s *Service) Release(ctx context.Context, id uuid.UUID, actor string) (*Result, error) {
	res, err := s.results.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.VerifiedAt == nil {
		return nil, fmt.Errorf("result %s must be verified before release", res.ID)
	}
	if res.Released {
		return nil, fmt.Errorf("result %s is already released", res.ID)
	}
	now := time.Now()
	res.Released = true
	res.ReleasedBy = &actor
	res.ReleasedAt = &now
	if err := s.results.Update(ctx, res); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "result.released", "result", res.ID.String(), ""); err != nil {
		return nil, err
	}
	return res, nil
}
