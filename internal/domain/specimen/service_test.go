package specimen

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/lims/lims/internal/domain/audit"
)

// -- Mocks --

type mockSpecimenRepo struct {
	store map[uuid.UUID]*Specimen
}

func newMockSpecimenRepo() *mockSpecimenRepo {
	return &mockSpecimenRepo{store: make(map[uuid.UUID]*Specimen)}
}

func (m *mockSpecimenRepo) Create(_ context.Context, s *Specimen) error {
	s.ID = uuid.New()
	m.store[s.ID] = s
	return nil
}

func (m *mockSpecimenRepo) GetByID(_ context.Context, id uuid.UUID) (*Specimen, error) {
	s, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *s
	return &cp, nil
}

func (m *mockSpecimenRepo) GetBySpecimenID(_ context.Context, specimenID string) (*Specimen, error) {
	for _, s := range m.store {
		if s.SpecimenID == specimenID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockSpecimenRepo) Update(_ context.Context, s *Specimen) error {
	if _, ok := m.store[s.ID]; !ok {
		return fmt.Errorf("not found")
	}
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *mockSpecimenRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*Specimen, error) {
	var r []*Specimen
	for _, s := range m.store {
		if s.OrderID == orderID {
			r = append(r, s)
		}
	}
	return r, nil
}

type countingAuditRepo struct {
	events []*audit.Event
}

func (m *countingAuditRepo) Append(_ context.Context, e *audit.Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *countingAuditRepo) ListByEntity(_ context.Context, _, _ string, _, _ int) ([]*audit.Event, int, error) {
	return m.events, len(m.events), nil
}

func newTestService() (*Service, *mockSpecimenRepo, *countingAuditRepo) {
	repo := newMockSpecimenRepo()
	auditRepo := &countingAuditRepo{}
	return NewService(repo, audit.NewRecorder(auditRepo)), repo, auditRepo
}

func accession(t *testing.T, svc *Service) *Specimen {
	t.Helper()
	sp := &Specimen{SpecimenID: "SAM000001", OrderID: uuid.New(), Type: "serum", Collector: "nurse.kim"}
	if err := svc.Accession(context.Background(), sp); err != nil {
		t.Fatalf("Accession: %v", err)
	}
	return sp
}

func TestAccession_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if err := svc.Accession(ctx, &Specimen{Type: "serum", Collector: "x"}); err == nil {
		t.Error("expected error for missing specimen_id")
	}
	if err := svc.Accession(ctx, &Specimen{SpecimenID: "SAM000001", Collector: "x"}); err == nil {
		t.Error("expected error for missing type")
	}
	if err := svc.Accession(ctx, &Specimen{SpecimenID: "SAM000001", Type: "serum"}); err == nil {
		t.Error("expected error for missing collector")
	}
}

func TestVerify_RecordsVerifierWithoutStatusChange(t *testing.T) {
	svc, _, _ := newTestService()
	sp := accession(t, svc)

	got, err := svc.Verify(context.Background(), sp.ID, "tech.lee")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Status != StatusAccessioned {
		t.Errorf("status = %s, want accessioned", got.Status)
	}
	if got.VerifiedBy == nil || *got.VerifiedBy != "tech.lee" {
		t.Error("expected verifier to be recorded")
	}
}

func TestVerify_FailsAfterRejection(t *testing.T) {
	svc, _, _ := newTestService()
	sp := accession(t, svc)

	if _, err := svc.Reject(context.Background(), sp.ID, "hemolyzed"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := svc.Verify(context.Background(), sp.ID, "tech.lee"); err == nil {
		t.Error("expected error verifying a rejected specimen")
	}
}

func TestReject_RequiresReason(t *testing.T) {
	svc, _, _ := newTestService()
	sp := accession(t, svc)

	if _, err := svc.Reject(context.Background(), sp.ID, ""); err == nil {
		t.Error("expected error for empty rejection reason")
	}
}

func TestLifecycle_AcceptThenStore(t *testing.T) {
	svc, _, auditRepo := newTestService()
	sp := accession(t, svc)
	ctx := context.Background()

	if _, err := svc.Accept(ctx, sp.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	got, err := svc.Store(ctx, sp.ID)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if got.Status != StatusStored || got.StoredAt == nil {
		t.Errorf("status = %s, stored_at = %v", got.Status, got.StoredAt)
	}

	// accession + accept + store
	if len(auditRepo.events) != 3 {
		t.Errorf("expected 3 audit events, got %d", len(auditRepo.events))
	}
}

func TestTerminalStates_FailLoudly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	sp := accession(t, svc)
	svc.Accept(ctx, sp.ID)
	svc.Consume(ctx, sp.ID)

	if _, err := svc.Store(ctx, sp.ID); err == nil {
		t.Error("expected error storing a consumed specimen")
	}
	if _, err := svc.Accept(ctx, sp.ID); err == nil {
		t.Error("expected error accepting a consumed specimen")
	}

	sp2 := &Specimen{SpecimenID: "SAM000002", OrderID: uuid.New(), Type: "serum", Collector: "nurse.kim"}
	svc.Accession(ctx, sp2)
	svc.Reject(ctx, sp2.ID, "clotted")
	if _, err := svc.Accept(ctx, sp2.ID); err == nil {
		t.Error("expected error accepting a rejected specimen")
	}
}

func TestCanTransition_Table(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusAccessioned, StatusAccepted, true},
		{StatusAccessioned, StatusRejected, true},
		{StatusAccessioned, StatusStored, false},
		{StatusAccepted, StatusStored, true},
		{StatusAccepted, StatusConsumed, true},
		{StatusAccepted, StatusRejected, false},
		{StatusRejected, StatusAccepted, false},
		{StatusStored, StatusConsumed, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
