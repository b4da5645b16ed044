package instrument

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lims/lims/internal/domain/audit"
	"github.com/lims/lims/internal/domain/workitem"
)

type Service struct {
	instruments InstrumentRepository
	logs        CommLogRepository
	client      *Client
	audit       *audit.Recorder
}

func NewService(instruments InstrumentRepository, logs CommLogRepository,
	client *Client, rec *audit.Recorder) *Service {
	return &Service{instruments: instruments, logs: logs, client: client, audit: rec}
}

func validateInstrument(in *Instrument) error {
	if in.Code == "" {
		return fmt.Errorf("code is required")
	}
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch in.Status {
	case StatusActive, StatusMaintenance, StatusInactive:
	default:
		return fmt.Errorf("invalid status %q", in.Status)
	}
	return nil
}

func (s *Service) Register(ctx context.Context, in *Instrument) error {
	if in.Status == "" {
		in.Status = StatusActive
	}
	if err := validateInstrument(in); err != nil {
		return err
	}
	if err := s.instruments.Create(ctx, in); err != nil {
		return err
	}
	return s.audit.Record(ctx, "instrument.registered", "instrument", in.ID.String(), in.Code)
}

func (s *Service) Update(ctx context.Context, in *Instrument) error {
	if err := validateInstrument(in); err != nil {
		return err
	}
	if err := s.instruments.Update(ctx, in); err != nil {
		return err
	}
	return s.audit.Record(ctx, "instrument.updated", "instrument", in.ID.String(), in.Code)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Instrument, error) {
	return s.instruments.GetByID(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Instrument, error) {
	return s.instruments.GetByCode(ctx, code)
}

func (s *Service) List(ctx context.Context) ([]*Instrument, error) {
	return s.instruments.List(ctx)
}

func (s *Service) ListActive(ctx context.Context) ([]*Instrument, error) {
	return s.instruments.ListActive(ctx)
}

// Lookup feeds the dispatcher's instrument check.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (workitem.InstrumentInfo, error) {
	in, err := s.instruments.GetByID(ctx, id)
	if err != nil {
		return workitem.InstrumentInfo{}, err
	}
	return workitem.InstrumentInfo{
		Active:   in.Status == StatusActive,
		Endpoint: in.Endpoint,
	}, nil
}

// Health probes the analyzer. Unreachable instruments come back offline,
// not as errors.
func (s *Service) Health(ctx context.Context, id uuid.UUID) (HealthStatus, error) {
	in, err := s.instruments.GetByID(ctx, id)
	if err != nil {
		return HealthStatus{}, err
	}
	return s.client.Health(ctx, in), nil
}

func (s *Service) CommLogs(ctx context.Context, instrumentID uuid.UUID, limit, offset int) ([]*CommunicationLog, int, error) {
	return s.logs.ListByInstrument(ctx, instrumentID, limit, offset)
}
