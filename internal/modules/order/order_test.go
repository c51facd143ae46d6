// README: State machine tests (transition table, write-once ledger, service rules).
package order

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"mediroute/internal/types"
)

// TestCanTransition verifies the transition table without any I/O.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusCreated, StatusPendingRider, true},
		{StatusPendingRider, StatusAssigned, true},
		{StatusAssigned, StatusPickupStarted, true},
		{StatusPickupStarted, StatusPickedUp, true},
		{StatusPickedUp, StatusDeliveryStarted, true},
		{StatusDeliveryStarted, StatusDelivered, true},
		// cancels from every non-terminal state
		{StatusCreated, StatusCancelled, true},
		{StatusPendingRider, StatusCancelled, true},
		{StatusAssigned, StatusCancelled, true},
		{StatusPickupStarted, StatusCancelled, true},
		{StatusPickedUp, StatusCancelled, true},
		{StatusDeliveryStarted, StatusCancelled, true},
		// invalid: terminal states have no outgoing edges
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusCreated, false},
		{StatusDelivered, StatusCreated, false},
		// invalid: skipping states
		{StatusCreated, StatusAssigned, false},
		{StatusPendingRider, StatusPickedUp, false},
		{StatusAssigned, StatusDelivered, false},
		// invalid: backwards
		{StatusPickedUp, StatusPickupStarted, false},
		{StatusDelivered, StatusDeliveryStarted, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func newTracked(status Status) *Order {
	return &Order{
		ID:        "ord1",
		Status:    status,
		CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestApplyStatus_ForwardStampsOnce(t *testing.T) {
	o := newTracked(StatusPendingRider)
	at := o.CreatedAt.Add(5 * time.Minute)

	tr, err := o.ApplyStatus(StatusAssigned, at)
	if err != nil {
		t.Fatalf("apply assigned: %v", err)
	}
	if tr == nil || tr.From != StatusPendingRider || tr.To != StatusAssigned {
		t.Fatalf("unexpected transition: %+v", tr)
	}
	if o.AssignedAt == nil || !o.AssignedAt.Equal(at) {
		t.Fatalf("assigned_at = %v, want %v", o.AssignedAt, at)
	}
}

func TestApplyStatus_SelfTransitionIsNoOp(t *testing.T) {
	o := newTracked(StatusAssigned)
	at := o.CreatedAt.Add(time.Minute)
	o.RecordTimestamp(StatusAssigned, at)

	tr, err := o.ApplyStatus(StatusAssigned, at.Add(time.Hour))
	if err != nil || tr != nil {
		t.Fatalf("self transition should be a silent no-op, got tr=%+v err=%v", tr, err)
	}
	if !o.AssignedAt.Equal(at) {
		t.Fatalf("self transition must not touch the ledger, assigned_at = %v", o.AssignedAt)
	}
}

func TestApplyStatus_RejectsIllegalEdge(t *testing.T) {
	o := newTracked(StatusPendingRider)

	tr, err := o.ApplyStatus(StatusPickedUp, o.CreatedAt.Add(time.Minute))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if tr != nil {
		t.Fatalf("rejected transition must not be emitted: %+v", tr)
	}
	if o.Status != StatusPendingRider {
		t.Fatalf("order must be left unchanged, status = %s", o.Status)
	}
}

func TestRecordTimestamp_WriteOnce(t *testing.T) {
	o := newTracked(StatusAssigned)
	first := o.CreatedAt.Add(time.Minute)
	later := first.Add(time.Hour)

	if !o.RecordTimestamp(StatusAssigned, first) {
		t.Fatal("first write should succeed")
	}
	if o.RecordTimestamp(StatusAssigned, later) {
		t.Fatal("second write should be refused")
	}
	if !o.AssignedAt.Equal(first) {
		t.Fatalf("assigned_at overwritten: %v", o.AssignedAt)
	}
}

func TestForwardPath(t *testing.T) {
	path, ok := ForwardPath(StatusPendingRider, StatusPickedUp)
	if !ok {
		t.Fatal("expected forward path")
	}
	want := []Status{StatusAssigned, StatusPickupStarted, StatusPickedUp}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path = %v, want %v", path, want)
		}
	}

	if _, ok := ForwardPath(StatusPickedUp, StatusPickedUp); ok {
		t.Error("no path to self")
	}
	if _, ok := ForwardPath(StatusPickedUp, StatusAssigned); ok {
		t.Error("no backward path")
	}
	if _, ok := ForwardPath(StatusAssigned, StatusCancelled); ok {
		t.Error("cancel is not a forward path")
	}
}

func TestClone_Independent(t *testing.T) {
	o := newTracked(StatusAssigned)
	at := o.CreatedAt.Add(time.Minute)
	o.RecordTimestamp(StatusAssigned, at)
	o.Rider = &Rider{ID: "r1", Name: "A. Chen"}

	c := o.Clone()
	c.Rider.Name = "changed"
	*c.AssignedAt = at.Add(time.Hour)
	c.Status = StatusCancelled

	if o.Rider.Name != "A. Chen" {
		t.Error("clone shares rider")
	}
	if !o.AssignedAt.Equal(at) {
		t.Error("clone shares timestamp storage")
	}
	if o.Status != StatusAssigned {
		t.Error("clone shares status")
	}
}

// stubBackend records calls for service tests.
type stubBackend struct {
	createdID types.ID
	createErr error
	cancelErr error
	cancelled []types.ID
}

func (s *stubBackend) CreateOrder(_ context.Context, _ CreateCommand) (types.ID, error) {
	return s.createdID, s.createErr
}

func (s *stubBackend) CancelOrder(_ context.Context, id types.ID, _, _ string) error {
	s.cancelled = append(s.cancelled, id)
	return s.cancelErr
}

func TestServiceCreate_Validation(t *testing.T) {
	svc := NewService(&stubBackend{createdID: "ord9"}, nil, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateCommand{}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("empty command: expected ErrBadRequest, got %v", err)
	}

	id, err := svc.Create(ctx, CreateCommand{
		HospitalID: "hosp1",
		Sample:     Sample{Type: "blood", Quantity: 3, Urgency: "urgent"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "ord9" {
		t.Fatalf("id = %s, want ord9", id)
	}
}

func TestServiceCancel_LocalStateGuard(t *testing.T) {
	backend := &stubBackend{}
	svc := NewService(backend, nil, nil)
	ctx := context.Background()

	delivered := newTracked(StatusDelivered)
	err := svc.Cancel(ctx, CancelCommand{OrderID: "ord1", Reason: "mistake", Current: delivered})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(backend.cancelled) != 0 {
		t.Fatal("backend must not be called when the edge is locally illegal")
	}

	pending := newTracked(StatusPendingRider)
	if err := svc.Cancel(ctx, CancelCommand{OrderID: "ord1", Reason: "mistake", Current: pending}); err != nil {
		t.Fatalf("cancel pending order: %v", err)
	}
	if len(backend.cancelled) != 1 {
		t.Fatal("backend cancel should have been invoked")
	}
}

// captureHandler records slog output for assertions.
type captureHandler struct {
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

type failingJournal struct{}

func (failingJournal) AppendTransition(context.Context, *Transition) error {
	return errors.New("journal down")
}

func TestJournal_WriteFailureIsLogged(t *testing.T) {
	capture := &captureHandler{}
	svc := NewService(&stubBackend{}, failingJournal{}, slog.New(capture))

	svc.Journal(context.Background(), &Transition{
		OrderID: "ord1",
		From:    StatusCreated,
		To:      StatusPendingRider,
		At:      time.Now(),
	})

	if len(capture.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(capture.records))
	}
	if capture.records[0].Level != slog.LevelWarn {
		t.Errorf("expected Warn, got %v", capture.records[0].Level)
	}
}

func TestJournal_NilJournalIsNoop(t *testing.T) {
	capture := &captureHandler{}
	svc := NewService(&stubBackend{}, nil, slog.New(capture))
	svc.Journal(context.Background(), &Transition{OrderID: "ord1", From: StatusCreated, To: StatusPendingRider})
	if len(capture.records) != 0 {
		t.Fatalf("nil journal must not log, got %d records", len(capture.records))
	}
}
