package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lims/lims/internal/domain/audit"
	"github.com/lims/lims/internal/domain/catalog"
	"github.com/lims/lims/internal/domain/instrument"
	"github.com/lims/lims/internal/domain/order"
	"github.com/lims/lims/internal/domain/result"
	"github.com/lims/lims/internal/domain/sequence"
	"github.com/lims/lims/internal/domain/specimen"
	"github.com/lims/lims/internal/domain/workitem"
	"github.com/lims/lims/internal/platform/metrics"
)

// -- Mocks --

type mockCounterRepo struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *mockCounterRepo) NextNumber(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[prefix]++
	return m.counters[prefix], nil
}

type mockOrderRepo struct {
	store map[uuid.UUID]*order.Order
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	o.ID = uuid.New()
	cp := *o
	m.store[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	o, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetByOrderID(_ context.Context, orderID string) (*order.Order, error) {
	for _, o := range m.store {
		if o.OrderID == orderID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockOrderRepo) Update(_ context.Context, o *order.Order) error {
	cp := *o
	m.store[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) List(_ context.Context, _ string, _, _ int) ([]*order.Order, int, error) {
	return nil, 0, nil
}

type mockSpecimenRepo struct {
	store map[uuid.UUID]*specimen.Specimen
}

func (m *mockSpecimenRepo) Create(_ context.Context, s *specimen.Specimen) error {
	s.ID = uuid.New()
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *mockSpecimenRepo) GetByID(_ context.Context, id uuid.UUID) (*specimen.Specimen, error) {
	s, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *s
	return &cp, nil
}

func (m *mockSpecimenRepo) GetBySpecimenID(_ context.Context, specimenID string) (*specimen.Specimen, error) {
	for _, s := range m.store {
		if s.SpecimenID == specimenID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockSpecimenRepo) Update(_ context.Context, s *specimen.Specimen) error {
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *mockSpecimenRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*specimen.Specimen, error) {
	var r []*specimen.Specimen
	for _, s := range m.store {
		if s.OrderID == orderID {
			cp := *s
			r = append(r, &cp)
		}
	}
	return r, nil
}

type mockItemRepo struct {
	store map[uuid.UUID]*workitem.WorkItem
}

func (m *mockItemRepo) Create(_ context.Context, w *workitem.WorkItem) error {
	for _, got := range m.store {
		if got.OrderID == w.OrderID && got.TestCode == w.TestCode {
			return fmt.Errorf("duplicate work item for test %s", w.TestCode)
		}
	}
	w.ID = uuid.New()
	cp := *w
	m.store[w.ID] = &cp
	return nil
}

func (m *mockItemRepo) GetByID(_ context.Context, id uuid.UUID) (*workitem.WorkItem, error) {
	w, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *w
	return &cp, nil
}

func (m *mockItemRepo) Update(_ context.Context, w *workitem.WorkItem) error {
	cp := *w
	m.store[w.ID] = &cp
	return nil
}

func (m *mockItemRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*workitem.WorkItem, error) {
	var r []*workitem.WorkItem
	for _, w := range m.store {
		if w.OrderID == orderID {
			cp := *w
			r = append(r, &cp)
		}
	}
	return r, nil
}

func (m *mockItemRepo) ListPendingByOrder(_ context.Context, orderID uuid.UUID) ([]*workitem.WorkItem, error) {
	var r []*workitem.WorkItem
	for _, w := range m.store {
		if w.OrderID == orderID && w.Status == workitem.StatusPending {
			cp := *w
			r = append(r, &cp)
		}
	}
	return r, nil
}

func (m *mockItemRepo) ListPollable(_ context.Context, instrumentID uuid.UUID, limit int) ([]*workitem.WorkItem, error) {
	var r []*workitem.WorkItem
	for _, w := range m.store {
		if len(r) == limit {
			break
		}
		if w.InstrumentID == nil || *w.InstrumentID != instrumentID || w.ExternalID == nil {
			continue
		}
		if w.Status == workitem.StatusQueued || w.Status == workitem.StatusInProgress {
			cp := *w
			r = append(r, &cp)
		}
	}
	return r, nil
}

func (m *mockItemRepo) ListRetryable(_ context.Context, maxRetries int) ([]*workitem.WorkItem, error) {
	var r []*workitem.WorkItem
	for _, w := range m.store {
		if w.Status == workitem.StatusPending && w.RetryCount > 0 && w.RetryCount < maxRetries {
			cp := *w
			r = append(r, &cp)
		}
	}
	return r, nil
}

type mockTestRepo struct {
	store map[string]*catalog.LabTest
}

func (m *mockTestRepo) Create(_ context.Context, t *catalog.LabTest) error {
	t.ID = uuid.New()
	m.store[t.Code] = t
	return nil
}

func (m *mockTestRepo) GetByID(_ context.Context, _ uuid.UUID) (*catalog.LabTest, error) {
	return nil, fmt.Errorf("not found")
}

func (m *mockTestRepo) GetByCode(_ context.Context, code string) (*catalog.LabTest, error) {
	t, ok := m.store[code]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return t, nil
}

func (m *mockTestRepo) Update(_ context.Context, t *catalog.LabTest) error {
	m.store[t.Code] = t
	return nil
}

func (m *mockTestRepo) List(_ context.Context, _, _ int) ([]*catalog.LabTest, int, error) {
	return nil, 0, nil
}

type mockDeptRepo struct{}

func (mockDeptRepo) Create(_ context.Context, _ *catalog.Department) error { return nil }
func (mockDeptRepo) GetByID(_ context.Context, _ uuid.UUID) (*catalog.Department, error) {
	return nil, fmt.Errorf("not found")
}
func (mockDeptRepo) List(_ context.Context) ([]*catalog.Department, error) { return nil, nil }

type mockResultRepo struct {
	store map[uuid.UUID]*result.Result
}

func (m *mockResultRepo) Create(_ context.Context, r *result.Result) error {
	r.ID = uuid.New()
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *mockResultRepo) GetByID(_ context.Context, id uuid.UUID) (*result.Result, error) {
	r, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *r
	return &cp, nil
}

func (m *mockResultRepo) GetByWorkItem(_ context.Context, workItemID uuid.UUID) (*result.Result, error) {
	for _, r := range m.store {
		if r.WorkItemID == workItemID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockResultRepo) Update(_ context.Context, r *result.Result) error {
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

type mockInstrumentRepo struct {
	store map[uuid.UUID]*instrument.Instrument
}

func (m *mockInstrumentRepo) Create(_ context.Context, in *instrument.Instrument) error {
	in.ID = uuid.New()
	m.store[in.ID] = in
	return nil
}

func (m *mockInstrumentRepo) GetByID(_ context.Context, id uuid.UUID) (*instrument.Instrument, error) {
	in, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return in, nil
}

func (m *mockInstrumentRepo) GetByCode(_ context.Context, code string) (*instrument.Instrument, error) {
	for _, in := range m.store {
		if in.Code == code {
			return in, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockInstrumentRepo) Update(_ context.Context, in *instrument.Instrument) error {
	m.store[in.ID] = in
	return nil
}

func (m *mockInstrumentRepo) ListActive(_ context.Context) ([]*instrument.Instrument, error) {
	var r []*instrument.Instrument
	for _, in := range m.store {
		if in.Status == instrument.StatusActive {
			r = append(r, in)
		}
	}
	return r, nil
}

func (m *mockInstrumentRepo) List(_ context.Context) ([]*instrument.Instrument, error) {
	var r []*instrument.Instrument
	for _, in := range m.store {
		r = append(r, in)
	}
	return r, nil
}

type mockCommLogRepo struct {
	logs []*instrument.CommunicationLog
}

func (m *mockCommLogRepo) Append(_ context.Context, l *instrument.CommunicationLog) error {
	l.ID = uuid.New()
	m.logs = append(m.logs, l)
	return nil
}

func (m *mockCommLogRepo) ListByInstrument(_ context.Context, _ uuid.UUID, _, _ int) ([]*instrument.CommunicationLog, int, error) {
	return m.logs, len(m.logs), nil
}

func (m *mockCommLogRepo) ListByWorkItem(_ context.Context, _ uuid.UUID) ([]*instrument.CommunicationLog, error) {
	return m.logs, nil
}

type nullAuditRepo struct{}

func (nullAuditRepo) Append(_ context.Context, _ *audit.Event) error { return nil }
func (nullAuditRepo) ListByEntity(_ context.Context, _, _ string, _, _ int) ([]*audit.Event, int, error) {
	return nil, 0, nil
}

type stubGate struct {
	open bool
}

func (g *stubGate) Approved(_ context.Context, _ string, _ time.Time) (bool, error) {
	return g.open, nil
}

// -- Fixture --

type fixture struct {
	flow    *Service
	sweeper *Sweeper
	gate    *stubGate

	orders  *mockOrderRepo
	sps     *mockSpecimenRepo
	items   *mockItemRepo
	inst    *mockInstrumentRepo
	results *mockResultRepo

	ordSvc *order.Service
	spSvc  *specimen.Service
	wiSvc  *workitem.Service
	resSvc *result.Service

	analyzer     *instrument.Instrument
	setReachable func(bool)
}

// analyzerBehavior drives the fake analyzer endpoint from inside a test.
type analyzerBehavior struct {
	queueStatus  int
	resultStatus string
	resultValue  string
	reachable    bool
}

func newFixture(t *testing.T) (*fixture, *analyzerBehavior) {
	t.Helper()

	behavior := &analyzerBehavior{queueStatus: http.StatusOK, resultStatus: "pending", resultValue: "null", reachable: true}
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/queue" {
			if behavior.queueStatus >= 300 {
				http.Error(w, "refused", behavior.queueStatus)
				return
			}
			w.WriteHeader(behavior.queueStatus)
			w.Write([]byte(`{"id": 900}`))
			return
		}
		fmt.Fprintf(w, `{"status":%q,"value":%s,"unit":"mg/dL"}`, behavior.resultStatus, behavior.resultValue)
	}))
	t.Cleanup(live.Close)

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	endpoint := func() string {
		if behavior.reachable {
			return live.URL
		}
		return dead.URL
	}

	rec := audit.NewRecorder(nullAuditRepo{})
	counters := &mockCounterRepo{counters: map[string]int64{}}
	orders := &mockOrderRepo{store: map[uuid.UUID]*order.Order{}}
	sps := &mockSpecimenRepo{store: map[uuid.UUID]*specimen.Specimen{}}
	items := &mockItemRepo{store: map[uuid.UUID]*workitem.WorkItem{}}
	tests := &mockTestRepo{store: map[string]*catalog.LabTest{}}
	results := &mockResultRepo{store: map[uuid.UUID]*result.Result{}}
	inst := &mockInstrumentRepo{store: map[uuid.UUID]*instrument.Instrument{}}
	logs := &mockCommLogRepo{}
	gate := &stubGate{open: true}

	seqSvc := sequence.NewService(counters)
	ordSvc := order.NewService(orders, rec)
	spSvc := specimen.NewService(sps, rec)
	catSvc := catalog.NewService(tests, mockDeptRepo{})
	resSvc := result.NewService(results, rec)
	client := instrument.NewClient(2*time.Second, time.Second)
	instSvc := instrument.NewService(inst, logs, client, rec)
	wiSvc := workitem.NewService(items, instSvc, spSvc, gate, rec)
	gateway := instrument.NewGateway(inst, logs, client, wiSvc, resSvc, ordSvc, spSvc,
		catSvc, metrics.New(), zerolog.Nop())

	ctx := context.Background()
	min, max := 70.0, 110.0
	units := "mg/dL"
	for _, code := range []string{"GLU", "K"} {
		if err := tests.Create(ctx, &catalog.LabTest{Code: code, Name: code,
			SpecimenType: "serum", Units: &units, MinRef: &min, MaxRef: &max, Active: true}); err != nil {
			t.Fatal(err)
		}
	}

	analyzer := &instrument.Instrument{Code: "CHEM-01", Name: "Chemistry 1",
		Endpoint: endpoint(), Status: instrument.StatusActive}
	if err := inst.Create(ctx, analyzer); err != nil {
		t.Fatal(err)
	}

	flow := NewService(nil, seqSvc, ordSvc, spSvc, wiSvc, catSvc, gateway, zerolog.Nop())
	flow.tx = func(ctx context.Context, fn func(ctx context.Context) error) error {
		return fn(ctx)
	}

	sweeper := NewSweeper(nil, nil, flow, wiSvc, instSvc, gateway,
		50, 3, time.Minute, metrics.New(), zerolog.Nop())

	f := &fixture{
		flow: flow, sweeper: sweeper, gate: gate,
		orders: orders, sps: sps, items: items, inst: inst, results: results,
		ordSvc: ordSvc, spSvc: spSvc, wiSvc: wiSvc, resSvc: resSvc,
		analyzer: analyzer,
	}

	// Swap the analyzer endpoint when a test flips reachability.
	f.setReachable = func(ok bool) {
		behavior.reachable = ok
		analyzer.Endpoint = endpoint()
	}
	return f, behavior
}

func (f *fixture) newOrder(t *testing.T, tests ...string) *order.Order {
	t.Helper()
	o := &order.Order{PatientRef: "P-1", RequestedTests: tests, Consent: true}
	if err := f.flow.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return o
}

func (f *fixture) collect(t *testing.T, orderID uuid.UUID) *specimen.Specimen {
	t.Helper()
	sp := &specimen.Specimen{Type: "serum", Collector: "nurse.kim"}
	if err := f.flow.CollectSpecimen(context.Background(), orderID, sp); err != nil {
		t.Fatalf("CollectSpecimen: %v", err)
	}
	return sp
}

func (f *fixture) itemsOf(t *testing.T, orderID uuid.UUID) []*workitem.WorkItem {
	t.Helper()
	items, err := f.items.ListByOrder(context.Background(), orderID)
	if err != nil {
		t.Fatal(err)
	}
	return items
}

// -- Order intake --

func TestCreateOrder_MaterializesWorkItems(t *testing.T) {
	f, _ := newFixture(t)
	o := f.newOrder(t, "GLU", "K")

	if o.OrderID != "REQ000001" {
		t.Errorf("order id = %q, want REQ000001", o.OrderID)
	}
	if o.Status != order.StatusPending {
		t.Errorf("status = %s, want pending", o.Status)
	}
	items := f.itemsOf(t, o.ID)
	if len(items) != 2 {
		t.Fatalf("work items = %d, want 2", len(items))
	}
	for _, item := range items {
		if item.Status != workitem.StatusPending {
			t.Errorf("item %s status = %s, want pending", item.TestCode, item.Status)
		}
	}

	second := f.newOrder(t, "GLU")
	if second.OrderID != "REQ000002" {
		t.Errorf("second order id = %q, want REQ000002", second.OrderID)
	}
}

func TestCreateOrder_UnknownTestRefused(t *testing.T) {
	f, _ := newFixture(t)
	o := &order.Order{PatientRef: "P-1", RequestedTests: []string{"NOPE"}}
	if err := f.flow.CreateOrder(context.Background(), o); err == nil {
		t.Error("expected error for unknown test code")
	}
	if len(f.orders.store) != 0 {
		t.Error("no order should be stored")
	}
}

// -- Specimen collection and triage --

func TestCollectSpecimen_BindsPendingItems(t *testing.T) {
	f, _ := newFixture(t)
	o := f.newOrder(t, "GLU", "K")
	sp := f.collect(t, o.ID)

	if sp.SpecimenID != "SAM000001" {
		t.Errorf("specimen id = %q, want SAM000001", sp.SpecimenID)
	}
	for _, item := range f.itemsOf(t, o.ID) {
		if item.SpecimenID == nil || *item.SpecimenID != sp.ID {
			t.Errorf("item %s not bound to specimen", item.TestCode)
		}
	}
}

func TestAcceptSpecimen_MarksOrderReceived(t *testing.T) {
	f, _ := newFixture(t)
	o := f.newOrder(t, "GLU")
	sp := f.collect(t, o.ID)

	got, err := f.flow.AcceptSpecimen(context.Background(), sp.ID)
	if err != nil {
		t.Fatalf("AcceptSpecimen: %v", err)
	}
	if got.Status != specimen.StatusAccepted {
		t.Errorf("specimen status = %s, want accepted", got.Status)
	}
	ord, _ := f.orders.GetByID(context.Background(), o.ID)
	if ord.Status != order.StatusReceived {
		t.Errorf("order status = %s, want received", ord.Status)
	}
}

func TestRejectSpecimen_CascadesWhenAllRejected(t *testing.T) {
	f, _ := newFixture(t)
	o := f.newOrder(t, "GLU")
	sp := f.collect(t, o.ID)

	got, err := f.flow.RejectSpecimen(context.Background(), sp.ID, "hemolyzed")
	if err != nil {
		t.Fatalf("RejectSpecimen: %v", err)
	}
	if got.Status != specimen.StatusRejected {
		t.Errorf("specimen status = %s", got.Status)
	}
	ord, _ := f.orders.GetByID(context.Background(), o.ID)
	if ord.Status != order.StatusRejected {
		t.Errorf("order status = %s, want rejected", ord.Status)
	}
	for _, item := range f.itemsOf(t, o.ID) {
		if item.Status != workitem.StatusRejected {
			t.Errorf("item %s status = %s, want rejected", item.TestCode, item.Status)
		}
	}
}

func TestRejectSpecimen_NoCascadeWhileSiblingsRemain(t *testing.T) {
	f, _ := newFixture(t)
	o := f.newOrder(t, "GLU")
	first := f.collect(t, o.ID)
	second := f.collect(t, o.ID)

	if _, err := f.flow.RejectSpecimen(context.Background(), first.ID, "clotted"); err != nil {
		t.Fatal(err)
	}
	ord, _ := f.orders.GetByID(context.Background(), o.ID)
	if ord.Status != order.StatusPending {
		t.Errorf("order status = %s, one good specimen remains", ord.Status)
	}
	_ = second
}

func TestRejectSpecimen_LeavesQueuedItemAlone(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t, "GLU", "K")
	sp := f.collect(t, o.ID)

	items := f.itemsOf(t, o.ID)
	queued, _ := f.items.GetByID(ctx, items[0].ID)
	queued.Status = workitem.StatusQueued
	if err := f.items.Update(ctx, queued); err != nil {
		t.Fatal(err)
	}

	got, err := f.flow.RejectSpecimen(ctx, sp.ID, "hemolyzed")
	if err != nil {
		t.Fatalf("RejectSpecimen: %v", err)
	}
	if got.Status != specimen.StatusRejected {
		t.Errorf("specimen status = %s, want rejected", got.Status)
	}
	ord, _ := f.orders.GetByID(ctx, o.ID)
	if ord.Status != order.StatusRejected {
		t.Errorf("order status = %s, want rejected", ord.Status)
	}
	for _, item := range f.itemsOf(t, o.ID) {
		want := workitem.StatusRejected
		if item.ID == queued.ID {
			want = workitem.StatusQueued
		}
		if item.Status != want {
			t.Errorf("item %s status = %s, want %s", item.TestCode, item.Status, want)
		}
	}
}

// -- Dispatch --

func (f *fixture) readyItem(t *testing.T) (*order.Order, *workitem.WorkItem) {
	t.Helper()
	ctx := context.Background()
	o := f.newOrder(t, "GLU")
	sp := f.collect(t, o.ID)
	if _, err := f.flow.AcceptSpecimen(ctx, sp.ID); err != nil {
		t.Fatal(err)
	}
	items := f.itemsOf(t, o.ID)
	if _, err := f.wiSvc.AssignInstrument(ctx, items[0].ID, f.analyzer.ID); err != nil {
		t.Fatal(err)
	}
	item, _ := f.items.GetByID(ctx, items[0].ID)
	return o, item
}

func TestDispatch_HappyPath(t *testing.T) {
	f, _ := newFixture(t)
	o, item := f.readyItem(t)

	got, err := f.flow.Dispatch(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got.Status != workitem.StatusQueued {
		t.Errorf("item status = %s, want queued", got.Status)
	}
	if got.ExternalID == nil || *got.ExternalID != "900" {
		t.Errorf("external id = %v, want 900", got.ExternalID)
	}
	ord, _ := f.orders.GetByID(context.Background(), o.ID)
	if ord.Status != order.StatusAnalysis {
		t.Errorf("order status = %s, want analysis", ord.Status)
	}
}

func TestDispatch_QCBlocked(t *testing.T) {
	f, _ := newFixture(t)
	_, item := f.readyItem(t)
	f.gate.open = false

	_, err := f.flow.Dispatch(context.Background(), item.ID)
	if !errors.Is(err, workitem.ErrQCBlocked) {
		t.Fatalf("err = %v, want ErrQCBlocked", err)
	}
	got, _ := f.items.GetByID(context.Background(), item.ID)
	if got.Status != workitem.StatusPending {
		t.Errorf("item status = %s, must stay pending", got.Status)
	}
}

func TestDispatch_InactiveInstrument(t *testing.T) {
	f, _ := newFixture(t)
	_, item := f.readyItem(t)
	f.analyzer.Status = instrument.StatusMaintenance

	_, err := f.flow.Dispatch(context.Background(), item.ID)
	if !errors.Is(err, workitem.ErrNotDispatchable) {
		t.Fatalf("err = %v, want ErrNotDispatchable", err)
	}
	if errors.Is(err, workitem.ErrQCBlocked) {
		t.Error("instrument refusal must not read as a QC block")
	}
}

func TestDispatch_SpecimenNotAccepted(t *testing.T) {
	f, _ := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t, "GLU")
	f.collect(t, o.ID)
	items := f.itemsOf(t, o.ID)
	if _, err := f.wiSvc.AssignInstrument(ctx, items[0].ID, f.analyzer.ID); err != nil {
		t.Fatal(err)
	}

	_, err := f.flow.Dispatch(ctx, items[0].ID)
	if !errors.Is(err, workitem.ErrNotDispatchable) {
		t.Fatalf("err = %v, want ErrNotDispatchable", err)
	}
	if errors.Is(err, workitem.ErrQCBlocked) {
		t.Error("specimen refusal must not read as a QC block")
	}
	got, _ := f.items.GetByID(ctx, items[0].ID)
	if got.Status != workitem.StatusPending {
		t.Errorf("item status = %s, must stay pending", got.Status)
	}
}

func TestDispatch_TransientFailureSchedulesRetry(t *testing.T) {
	f, _ := newFixture(t)
	_, item := f.readyItem(t)
	f.setReachable(false)

	_, err := f.flow.Dispatch(context.Background(), item.ID)
	if !errors.Is(err, instrument.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
	got, _ := f.items.GetByID(context.Background(), item.ID)
	if got.Status != workitem.StatusPending || got.RetryCount != 1 {
		t.Errorf("status=%s retry=%d, want pending/1", got.Status, got.RetryCount)
	}
}

// -- Sweeps --

func TestRetrySweep_ResendsAfterBackoff(t *testing.T) {
	f, _ := newFixture(t)
	_, item := f.readyItem(t)
	f.setReachable(false)
	if _, err := f.flow.Dispatch(context.Background(), item.ID); !errors.Is(err, instrument.ErrTransient) {
		t.Fatalf("setup dispatch: %v", err)
	}
	f.setReachable(true)
	ctx := context.Background()

	// Backoff for one failure is 2m; a fresh attempt stamp blocks the resend.
	if err := f.sweeper.retryTenant(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := f.items.GetByID(ctx, item.ID)
	if got.Status != workitem.StatusPending {
		t.Fatalf("item resent before backoff elapsed")
	}

	past := time.Now().Add(-5 * time.Minute)
	got.LastSyncAttempt = &past
	f.items.Update(ctx, got)

	if err := f.sweeper.retryTenant(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ = f.items.GetByID(ctx, item.ID)
	if got.Status != workitem.StatusQueued {
		t.Errorf("status = %s, want queued after retry", got.Status)
	}
}

func TestRetrySweep_ExhaustedItemsLeftAlone(t *testing.T) {
	f, _ := newFixture(t)
	_, item := f.readyItem(t)
	ctx := context.Background()

	got, _ := f.items.GetByID(ctx, item.ID)
	got.RetryCount = 3
	past := time.Now().Add(-time.Hour)
	got.LastSyncAttempt = &past
	f.items.Update(ctx, got)

	if err := f.sweeper.retryTenant(ctx); err != nil {
		t.Fatal(err)
	}
	after, _ := f.items.GetByID(ctx, item.ID)
	if after.Status != workitem.StatusPending {
		t.Errorf("an item at max retries must not be resent")
	}
}

func TestPollSweep_CapturesResultAndCompletesOrder(t *testing.T) {
	f, behavior := newFixture(t)
	o, item := f.readyItem(t)
	ctx := context.Background()

	if _, err := f.flow.Dispatch(ctx, item.ID); err != nil {
		t.Fatal(err)
	}

	// Analyzer still busy: nothing captured.
	behavior.resultStatus, behavior.resultValue = "in_progress", "null"
	if err := f.sweeper.pollTenant(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.results.store) != 0 {
		t.Fatal("no result expected while the analyzer is busy")
	}

	behavior.resultStatus, behavior.resultValue = "completed", "120"
	if err := f.sweeper.pollTenant(ctx); err != nil {
		t.Fatal(err)
	}

	res, err := f.results.GetByWorkItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("result not captured: %v", err)
	}
	if res.Value != "120" || res.Flag != result.FlagHigh {
		t.Errorf("value=%s flag=%s, want 120/high", res.Value, res.Flag)
	}
	got, _ := f.items.GetByID(ctx, item.ID)
	if got.Status != workitem.StatusAnalysisComplete {
		t.Errorf("item status = %s, want analysis_complete", got.Status)
	}
	ord, _ := f.orders.GetByID(ctx, o.ID)
	if ord.Status != order.StatusComplete {
		t.Errorf("order status = %s, want complete", ord.Status)
	}

	// A second poll finds nothing left to do.
	if err := f.sweeper.pollTenant(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.results.store) != 1 {
		t.Errorf("poll sweep must be idempotent, results = %d", len(f.results.store))
	}
}

// -- End to end --

func TestOrderLifecycle(t *testing.T) {
	f, behavior := newFixture(t)
	ctx := context.Background()
	o, item := f.readyItem(t)

	if _, err := f.flow.Dispatch(ctx, item.ID); err != nil {
		t.Fatal(err)
	}
	behavior.resultStatus, behavior.resultValue = "completed", "120"
	if err := f.sweeper.pollTenant(ctx); err != nil {
		t.Fatal(err)
	}

	res, err := f.results.GetByWorkItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Flag != result.FlagHigh {
		t.Fatalf("flag = %s, want high for 120 against 70 - 110", res.Flag)
	}

	// The capturing actor cannot verify its own entry.
	if _, err := f.resSvc.MarkVerified(ctx, res.ID, res.EnteredBy); err == nil {
		t.Fatal("self-verification must be refused")
	}
	verified, err := f.resSvc.MarkVerified(ctx, res.ID, "dr.lee")
	if err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}
	if verified.VerifiedBy == nil || *verified.VerifiedBy != "dr.lee" {
		t.Errorf("verifier not recorded: %+v", verified)
	}

	if _, err := f.wiSvc.MarkVerified(ctx, item.ID); err != nil {
		t.Fatalf("work item MarkVerified: %v", err)
	}
	if _, err := f.ordSvc.Verify(ctx, o.ID, "dr.lee"); err != nil {
		t.Fatalf("order Verify: %v", err)
	}
	ord, _ := f.orders.GetByID(ctx, o.ID)
	if ord.Status != order.StatusVerified {
		t.Errorf("order status = %s, want verified", ord.Status)
	}

	released, err := f.resSvc.Release(ctx, res.ID, "dr.lee")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !released.Released {
		t.Error("release not recorded")
	}
}
