// README: Verification-ordering rules for pickup/delivery scans.
package custody

import (
	"errors"
	"time"

	"mediroute/internal/modules/order"
	"mediroute/internal/types"
)

var (
	ErrOutOfSequence  = errors.New("delivery scan requires a prior successful pickup scan")
	ErrAlreadyScanned = errors.New("a successful scan of this type already exists")
)

// transitionFor maps a successful scan to the state-machine edge it drives.
func transitionFor(t ScanType) order.Status {
	if t == ScanPickup {
		return order.StatusPickedUp
	}
	return order.StatusDelivered
}

// RecordScan validates a scan against the ledger's ordering rules, appends
// it, and attempts the induced status transition. When the aggregate has not
// yet caught up to the state that permits the edge, the scan still stands
// and the transition is deferred until Reconcile runs on a later snapshot.
// Returns the transition if one was applied now.
func RecordScan(o *order.Order, l *Ledger, scanType ScanType, performedBy types.ID, at time.Time) (*order.Transition, error) {
	if l.HasSuccessful(scanType) {
		return nil, ErrAlreadyScanned
	}
	if scanType == ScanDelivery && !l.HasSuccessful(ScanPickup) {
		l.events = append(l.events, ScanEvent{
			ScanType:    scanType,
			OrderID:     o.ID,
			PerformedBy: performedBy,
			RecordedAt:  at,
			Success:     false,
		})
		return nil, ErrOutOfSequence
	}

	l.events = append(l.events, ScanEvent{
		ScanType:    scanType,
		OrderID:     o.ID,
		PerformedBy: performedBy,
		RecordedAt:  at,
		Success:     true,
	})

	tr, err := o.ApplyStatus(transitionFor(scanType), at)
	if err != nil {
		// Scan recorded; the edge becomes legal once status propagation
		// catches up.
		l.queueDeferred(scanType)
		return nil, nil
	}
	return tr, nil
}

// Merge folds custody events arriving in a backend snapshot into the ledger.
// Duplicates (already-applied snapshots) are absorbed; new successful scans
// queue their transitions for Reconcile. Merge never fails: the backend's
// view of remote scans is taken as recorded fact.
func (l *Ledger) Merge(o *order.Order, events []ScanEvent) {
	for _, e := range events {
		if l.contains(e) {
			continue
		}
		if e.Success && l.HasSuccessful(e.ScanType) {
			// At most one successful scan per type; later duplicates from
			// divergent backend replays are dropped.
			continue
		}
		l.events = append(l.events, e)
		if e.Success {
			l.queueDeferred(e.ScanType)
		}
	}
}

// Reconcile retries deferred transitions against the current aggregate
// state, returning those that applied. Called by the tracking loop after
// each snapshot merge.
func (l *Ledger) Reconcile(o *order.Order) []*order.Transition {
	if len(l.deferred) == 0 {
		return nil
	}
	var applied []*order.Transition
	var still []ScanType
	for _, t := range l.deferred {
		target := transitionFor(t)
		if o.Status == target || forwardOf(o.Status, target) {
			// Already there or already past; nothing left to drive.
			continue
		}
		tr, err := o.ApplyStatus(target, l.latestSuccessful(t))
		if err != nil {
			still = append(still, t)
			continue
		}
		if tr != nil {
			applied = append(applied, tr)
		}
	}
	l.deferred = still
	return applied
}

// latestSuccessful returns the recorded instant of the successful scan of
// the given type; the transition carries the scan time, not the retry time.
func (l *Ledger) latestSuccessful(t ScanType) time.Time {
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].ScanType == t && l.events[i].Success {
			return l.events[i].RecordedAt
		}
	}
	return time.Time{}
}

// forwardOf reports whether status a already lies past b on the forward
// lifecycle.
func forwardOf(a, b order.Status) bool {
	_, ok := order.ForwardPath(b, a)
	return ok
}
