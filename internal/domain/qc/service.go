package qc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lims/lims/internal/domain/audit"
	"github.com/lims/lims/internal/platform/cache"
	"github.com/lims/lims/internal/platform/db"
	"github.com/lims/lims/internal/platform/metrics"
)

// ruleWindow is how many of the newest runs the multi-rule scan looks at.
const ruleWindow = 10

// LevelSource names the QC levels a test requires each day. Satisfied by
// the catalog service.
type LevelSource interface {
	RequiredLevels(ctx context.Context, testCode string) ([]string, error)
}

type Service struct {
	lots    LotRepository
	runs    RunRepository
	actions ActionRepository
	levels  LevelSource
	cache   cache.Cache
	audit   *audit.Recorder
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewService(lots LotRepository, runs RunRepository, actions ActionRepository,
	levels LevelSource, c cache.Cache, rec *audit.Recorder, m *metrics.Metrics,
	logger zerolog.Logger) *Service {
	return &Service{
		lots:    lots,
		runs:    runs,
		actions: actions,
		levels:  levels,
		cache:   c,
		audit:   rec,
		metrics: m,
		logger:  logger,
	}
}

func validateLot(l *Lot) error {
	if l.TestCode == "" {
		return fmt.Errorf("test_code is required")
	}
	if l.Level == "" {
		return fmt.Errorf("level is required")
	}
	if l.LotNumber == "" {
		return fmt.Errorf("lot_number is required")
	}
	if l.ReceivedDate != nil && l.ExpiryDate != nil && l.ExpiryDate.Before(*l.ReceivedDate) {
		return fmt.Errorf("expiry date precedes received date")
	}
	return nil
}

// CreateLot validates and persists a new lot with freshly computed limits.
// New lots start inactive; use Activate to bring one into service.
func (s *Service) CreateLot(ctx context.Context, l *Lot) error {
	if err := validateLot(l); err != nil {
		return err
	}
	if err := computeLimits(l); err != nil {
		return err
	}
	l.Active = false
	if err := s.lots.Create(ctx, l); err != nil {
		return err
	}
	return s.audit.Record(ctx, "qc.lot_created", "qc_lot", l.ID.String(),
		fmt.Sprintf("%s %s lot %s", l.TestCode, l.Level, l.LotNumber))
}

// UpdateLot recomputes the limits on every save; they are never
// hand-edited.
func (s *Service) UpdateLot(ctx context.Context, l *Lot) error {
	if err := validateLot(l); err != nil {
		return err
	}
	if err := computeLimits(l); err != nil {
		return err
	}
	if err := s.lots.Update(ctx, l); err != nil {
		return err
	}
	return s.audit.Record(ctx, "qc.lot_updated", "qc_lot", l.ID.String(), "")
}

func (s *Service) GetLot(ctx context.Context, id uuid.UUID) (*Lot, error) {
	return s.lots.GetByID(ctx, id)
}

func (s *Service) ListLotsByTest(ctx context.Context, testCode string) ([]*Lot, error) {
	return s.lots.ListByTest(ctx, testCode)
}

// Activate brings the lot into service, deactivating every sibling of the
// same (test, level) atomically.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (*Lot, error) {
	l, err := s.lots.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.ExpiryDate != nil && l.ExpiryDate.Before(time.Now()) {
		return nil, fmt.Errorf("lot %s is expired", l.LotNumber)
	}
	if err := s.lots.Activate(ctx, l.ID, l.TestCode, l.Level); err != nil {
		return nil, err
	}
	l.Active = true
	if err := s.audit.Record(ctx, "qc.lot_activated", "qc_lot", l.ID.String(), l.LotNumber); err != nil {
		return nil, err
	}
	s.invalidateGate(ctx, l.TestCode, time.Now())
	return l, nil
}

// RecordRun evaluates and persists one QC measurement: z-score and status
// from the lot's limits, then the multi-rule scan over the rolling window.
// A clean pass is auto-approved. The day's gate cache is invalidated so the
// next dispatch check sees the new run.
func (s *Service) RecordRun(ctx context.Context, run *Run) (*Run, error) {
	lot, err := s.lots.GetByID(ctx, run.LotID)
	if err != nil {
		return nil, err
	}
	if run.RunAt.IsZero() {
		run.RunAt = time.Now()
	}
	prior, err := s.runs.ListRecent(ctx, lot.ID, ruleWindow-1)
	if err != nil {
		return nil, err
	}
	if run.RunNumber == 0 {
		n, err := s.runs.CountOn(ctx, lot.ID, run.RunAt)
		if err != nil {
			return nil, err
		}
		run.RunNumber = n + 1
	}

	evaluateRun(lot, run)

	window := append([]*Run{run}, prior...)
	if len(window) > ruleWindow {
		window = window[:ruleWindow]
	}
	run.Violations = evaluateRules(lot, window)
	if len(run.Violations) > 0 && run.Status == StatusPass {
		run.Status = StatusWarning
	}

	// Only a clean pass is auto-approved; prior approvals are never
	// revoked by later violations.
	if run.Status == StatusPass {
		now := time.Now()
		run.Approved = true
		run.ApprovedAt = &now
	}

	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "qc.run_recorded", "qc_run", run.ID.String(),
		fmt.Sprintf("%s %s value=%g status=%s", lot.TestCode, lot.Level, run.Value, run.Status)); err != nil {
		return nil, err
	}

	s.metrics.QCRuns.WithLabelValues(run.Status).Inc()
	s.invalidateGate(ctx, lot.TestCode, run.RunAt)

	if run.Status != StatusPass {
		s.logger.Warn().
			Str("test", lot.TestCode).
			Str("level", lot.Level).
			Float64("value", run.Value).
			Str("status", run.Status).
			Strs("violations", run.Violations).
			Msg("qc run out of control")
	}
	return run, nil
}

// evaluateRun sets z and the single-point status from the lot limits.
func evaluateRun(lot *Lot, run *Run) {
	if lot.SDBased() {
		z := (run.Value - *lot.Target) / *lot.SD
		run.Z = &z
		switch {
		case run.Value < *lot.Limit3Low || run.Value > *lot.Limit3High:
			run.Status = StatusFail
		case run.Value < *lot.Limit2Low || run.Value > *lot.Limit2High:
			run.Status = StatusWarning
		default:
			run.Status = StatusPass
		}
		return
	}
	// Explicit bounds occupy the 2-SD slot; outside them is an outright
	// fail since there is no outer band.
	if run.Value < *lot.Limit2Low || run.Value > *lot.Limit2High {
		run.Status = StatusFail
	} else {
		run.Status = StatusPass
	}
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	return s.runs.GetByID(ctx, id)
}

func (s *Service) ListRecentRuns(ctx context.Context, lotID uuid.UUID, limit int) ([]*Run, error) {
	return s.runs.ListRecent(ctx, lotID, limit)
}

// ApproveRun is the operator override for warning/fail runs that turned
// out acceptable after review.
func (s *Service) ApproveRun(ctx context.Context, id uuid.UUID, actor string) (*Run, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Approved {
		return nil, fmt.Errorf("qc run %s is already approved", run.ID)
	}
	now := time.Now()
	run.Approved = true
	run.ApprovedAt = &now
	run.ApprovedBy = &actor
	if err := s.runs.Update(ctx, run); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "qc.run_approved", "qc_run", run.ID.String(), ""); err != nil {
		return nil, err
	}
	return run, nil
}

// CreateAction attaches a corrective action to a failed or warning run.
func (s *Service) CreateAction(ctx context.Context, a *Action) error {
	if a.ActionType == "" || a.Description == "" {
		return fmt.Errorf("action_type and description are required")
	}
	run, err := s.runs.GetByID(ctx, a.RunID)
	if err != nil {
		return err
	}
	if run.Status == StatusPass && len(run.Violations) == 0 {
		return fmt.Errorf("qc run %s passed; corrective actions attach to warning or failed runs", run.ID)
	}
	if err := s.actions.Create(ctx, a); err != nil {
		return err
	}
	return s.audit.Record(ctx, "qc.action_created", "qc_action", a.ID.String(), a.ActionType)
}

func (s *Service) ResolveAction(ctx context.Context, id uuid.UUID) (*Action, error) {
	a, err := s.actions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Resolved {
		return nil, fmt.Errorf("qc action %s is already resolved", a.ID)
	}
	now := time.Now()
	a.Resolved = true
	a.ResolvedAt = &now
	if err := s.actions.Update(ctx, a); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "qc.action_resolved", "qc_action", a.ID.String(), ""); err != nil {
		return nil, err
	}
	return a, nil
}

// Approved is the daily test gate: true only when every QC level the test
// requires has at least one passing run today. Cached per
// (tenant, test, day) until end of day; any new run invalidates it.
func (s *Service) Approved(ctx context.Context, testCode string, day time.Time) (bool, error) {
	key := s.gateKey(ctx, testCode, day)
	if v, err := s.cache.Get(ctx, key); err == nil {
		return v == "open", nil
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn().Err(err).Str("test", testCode).Msg("qc gate cache read failed")
	}

	open, err := s.gateOpen(ctx, testCode, day)
	if err != nil {
		return false, err
	}

	state := "closed"
	if open {
		state = "open"
	}
	if err := s.cache.Set(ctx, key, state, untilEndOfDay(day)); err != nil {
		s.logger.Warn().Err(err).Str("test", testCode).Msg("qc gate cache write failed")
	}
	return open, nil
}

func (s *Service) gateOpen(ctx context.Context, testCode string, day time.Time) (bool, error) {
	levels, err := s.levels.RequiredLevels(ctx, testCode)
	if err != nil {
		return false, err
	}
	if len(levels) == 0 {
		// Tests with no QC requirement are always approved.
		return true, nil
	}
	for _, level := range levels {
		lot, err := s.lots.GetActive(ctx, testCode, level)
		if errors.Is(err, ErrNoActiveLot) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		ok, err := s.runs.HasPassingRunOn(ctx, lot.ID, day)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) gateKey(ctx context.Context, testCode string, day time.Time) string {
	return fmt.Sprintf("qcgate:%s:%s:%s", db.TenantFromContext(ctx), testCode, day.Format("2006-01-02"))
}

func (s *Service) invalidateGate(ctx context.Context, testCode string, day time.Time) {
	if err := s.cache.Delete(ctx, s.gateKey(ctx, testCode, day)); err != nil {
		s.logger.Warn().Err(err).Str("test", testCode).Msg("qc gate cache invalidation failed")
	}
}

func untilEndOfDay(day time.Time) time.Duration {
	end := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, day.Location())
	d := time.Until(end)
	if d <= 0 {
		d = time.Minute
	}
	return d
}
