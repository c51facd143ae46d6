package custody

import (
	"errors"
	"testing"
	"time"

	"mediroute/internal/modules/order"
)

func trackedOrder(status order.Status) *order.Order {
	return &order.Order{
		ID:        "ord1",
		Status:    status,
		CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRecordScan_PickupThenDelivery(t *testing.T) {
	o := trackedOrder(order.StatusPickupStarted)
	l := &Ledger{}
	t1 := o.CreatedAt.Add(10 * time.Minute)

	tr, err := RecordScan(o, l, ScanPickup, "rider1", t1)
	if err != nil {
		t.Fatalf("pickup scan: %v", err)
	}
	if tr == nil || tr.To != order.StatusPickedUp {
		t.Fatalf("pickup scan should drive picked_up, got %+v", tr)
	}
	if o.PickedUpAt == nil || !o.PickedUpAt.Equal(t1) {
		t.Fatalf("picked_up_at = %v, want %v", o.PickedUpAt, t1)
	}

	// Delivery is only legal once delivery has started.
	if _, err := o.ApplyStatus(order.StatusDeliveryStarted, t1.Add(time.Minute)); err != nil {
		t.Fatalf("delivery_started: %v", err)
	}

	t2 := t1.Add(20 * time.Minute)
	tr, err = RecordScan(o, l, ScanDelivery, "rider1", t2)
	if err != nil {
		t.Fatalf("delivery scan: %v", err)
	}
	if tr == nil || tr.To != order.StatusDelivered {
		t.Fatalf("delivery scan should drive delivered, got %+v", tr)
	}

	// A second delivery scan is rejected.
	if _, err := RecordScan(o, l, ScanDelivery, "rider1", t2.Add(time.Minute)); !errors.Is(err, ErrAlreadyScanned) {
		t.Fatalf("second delivery scan: expected ErrAlreadyScanned, got %v", err)
	}
}

func TestRecordScan_DeliveryBeforePickup(t *testing.T) {
	o := trackedOrder(order.StatusDeliveryStarted)
	l := &Ledger{}

	_, err := RecordScan(o, l, ScanDelivery, "rider1", o.CreatedAt.Add(time.Minute))
	if !errors.Is(err, ErrOutOfSequence) {
		t.Fatalf("expected ErrOutOfSequence, got %v", err)
	}
	// Rejected attempt is still on the record.
	events := l.Events()
	if len(events) != 1 || events[0].Success {
		t.Fatalf("expected one failed event on the ledger, got %+v", events)
	}
	// Order untouched.
	if o.Status != order.StatusDeliveryStarted {
		t.Fatalf("status changed on rejected scan: %s", o.Status)
	}
}

func TestRecordScan_DuplicatePickup(t *testing.T) {
	o := trackedOrder(order.StatusPickupStarted)
	l := &Ledger{}
	at := o.CreatedAt.Add(time.Minute)

	if _, err := RecordScan(o, l, ScanPickup, "rider1", at); err != nil {
		t.Fatalf("pickup scan: %v", err)
	}
	if _, err := RecordScan(o, l, ScanPickup, "rider1", at.Add(time.Second)); !errors.Is(err, ErrAlreadyScanned) {
		t.Fatalf("expected ErrAlreadyScanned, got %v", err)
	}
}

func TestRecordScan_DeferredUntilStatusCatchesUp(t *testing.T) {
	// Scan arrives while the aggregate still says assigned: the scan stands,
	// the transition waits for status propagation.
	o := trackedOrder(order.StatusAssigned)
	l := &Ledger{}
	scanAt := o.CreatedAt.Add(10 * time.Minute)

	tr, err := RecordScan(o, l, ScanPickup, "rider1", scanAt)
	if err != nil {
		t.Fatalf("pickup scan: %v", err)
	}
	if tr != nil {
		t.Fatalf("transition should be deferred, got %+v", tr)
	}
	if !l.HasSuccessful(ScanPickup) {
		t.Fatal("successful pickup scan should be on the ledger")
	}
	if o.Status != order.StatusAssigned {
		t.Fatalf("status should be unchanged, got %s", o.Status)
	}

	// Next snapshot: pickup has started. Reconcile drives the deferred edge.
	if _, err := o.ApplyStatus(order.StatusPickupStarted, scanAt.Add(time.Minute)); err != nil {
		t.Fatalf("pickup_started: %v", err)
	}
	applied := l.Reconcile(o)
	if len(applied) != 1 || applied[0].To != order.StatusPickedUp {
		t.Fatalf("expected deferred picked_up transition, got %+v", applied)
	}
	if o.PickedUpAt == nil || !o.PickedUpAt.Equal(scanAt) {
		t.Fatalf("picked_up_at should carry the scan time, got %v", o.PickedUpAt)
	}

	// Reconcile is idempotent once drained.
	if again := l.Reconcile(o); again != nil {
		t.Fatalf("expected empty reconcile, got %+v", again)
	}
}

func TestLedgerMerge_DeduplicatesSnapshots(t *testing.T) {
	o := trackedOrder(order.StatusPickupStarted)
	l := &Ledger{}
	at := o.CreatedAt.Add(time.Minute)

	remote := []ScanEvent{{
		ScanType:    ScanPickup,
		OrderID:     o.ID,
		PerformedBy: "rider1",
		RecordedAt:  at,
		Success:     true,
	}}
	l.Merge(o, remote)
	l.Merge(o, remote) // same snapshot applied twice

	if got := len(l.Events()); got != 1 {
		t.Fatalf("expected 1 event after duplicate merge, got %d", got)
	}

	applied := l.Reconcile(o)
	if len(applied) != 1 || applied[0].To != order.StatusPickedUp {
		t.Fatalf("expected picked_up from merged scan, got %+v", applied)
	}
}

func TestLedgerMerge_SkipsTransitionAlreadyPast(t *testing.T) {
	// Order already reported delivered by the backend; a late-arriving
	// pickup scan event must not attempt to drive picked_up again.
	o := trackedOrder(order.StatusDelivered)
	now := o.CreatedAt
	o.PickedUpAt = &now
	l := &Ledger{}

	l.Merge(o, []ScanEvent{{
		ScanType:   ScanPickup,
		OrderID:    o.ID,
		RecordedAt: o.CreatedAt.Add(time.Minute),
		Success:    true,
	}})
	if applied := l.Reconcile(o); applied != nil {
		t.Fatalf("expected no transitions for already-past state, got %+v", applied)
	}
}
