// README: UI-facing operations served from tracked state, with one-shot
// fetch fallback for orders no screen is currently observing.
package tracking

import (
	"context"
	"log/slog"
	"time"

	"mediroute/internal/metrics"
	"mediroute/internal/modules/custody"
	"mediroute/internal/modules/order"
	"mediroute/internal/modules/timeline"
	"mediroute/internal/types"
)

// CurrentOrder returns a copy of the last-known aggregate for a tracked
// order, or nil when the order is not being tracked or has no snapshot yet.
func (t *Service) CurrentOrder(orderID types.ID) *order.Order {
	sub := t.lookup(orderID)
	if sub == nil {
		return nil
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.state == nil {
		return nil
	}
	return sub.state.order.Clone()
}

// FetchOrder returns the order aggregate, from tracked state when available,
// otherwise from a one-shot snapshot fetch.
func (t *Service) FetchOrder(ctx context.Context, orderID types.ID) (*order.Order, error) {
	if o := t.CurrentOrder(orderID); o != nil {
		return o, nil
	}
	st, err := t.oneShot(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return st.order, nil
}

// Timeline returns the derived lifecycle steps, from tracked state when
// available, otherwise from a one-shot snapshot fetch.
func (t *Service) Timeline(ctx context.Context, orderID types.ID) ([]timeline.Step, error) {
	if sub := t.lookup(orderID); sub != nil {
		sub.mu.Lock()
		st := sub.state
		var o *order.Order
		if st != nil {
			o = st.order.Clone()
		}
		sub.mu.Unlock()
		if o != nil {
			return timeline.Derive(o, nil), nil
		}
	}
	st, err := t.oneShot(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return timeline.Derive(st.order, nil), nil
}

// View returns the map projection for an order.
func (t *Service) View(ctx context.Context, orderID types.ID) (View, error) {
	if sub := t.lookup(orderID); sub != nil {
		sub.mu.Lock()
		st := sub.state
		var v View
		ok := st != nil
		if ok {
			v = t.buildView(st, time.Now())
		}
		sub.mu.Unlock()
		if ok {
			return v, nil
		}
	}
	st, err := t.oneShot(ctx, orderID)
	if err != nil {
		return View{}, err
	}
	return t.buildView(st, time.Now()), nil
}

// RecordScan validates and records a custody scan against the order's
// ledger, driving the induced transition when the current state permits it.
// Tracked orders keep their ledger between calls; untracked ones are
// validated against a fresh snapshot.
func (t *Service) RecordScan(ctx context.Context, orderID types.ID, scanType custody.ScanType, performedBy types.ID, at time.Time) (*order.Transition, error) {
	if sub := t.lookup(orderID); sub != nil {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.state == nil {
			return nil, ErrNoSnapshot
		}
		tr, err := t.recordScan(ctx, sub.state, scanType, performedBy, at)
		if err == nil {
			t.publishLocked(sub, false)
		}
		return tr, err
	}

	st, ostErr := t.oneShot(ctx, orderID)
	if ostErr != nil {
		return nil, ostErr
	}
	return t.recordScan(ctx, st, scanType, performedBy, at)
}

func (t *Service) recordScan(ctx context.Context, st *state, scanType custody.ScanType, performedBy types.ID, at time.Time) (*order.Transition, error) {
	before := st.ledger.Len()
	tr, err := custody.RecordScan(st.order, st.ledger, scanType, performedBy, at)
	if err != nil {
		metrics.ScansRejectedTotal.Inc()
	} else {
		metrics.ScansAcceptedTotal.Inc()
	}
	// Journal every new attempt; rejected scans are part of the custody
	// audit trail too. Write failures never block the scan, but a custody
	// trail with holes must be visible.
	if events := st.ledger.Events(); len(events) > before && t.scans != nil {
		if jErr := t.scans.AppendScan(ctx, events[len(events)-1]); jErr != nil {
			t.logger.Warn("scan journal write failed",
				slog.String("order_id", string(st.order.ID)),
				slog.String("scan_type", string(scanType)),
				slog.String("error", jErr.Error()))
		}
	}
	if tr != nil {
		t.orders.Journal(ctx, tr)
	}
	return tr, err
}

func (t *Service) lookup(orderID types.ID) *subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subs[orderID]
}

// oneShot builds transient tracked state from a single snapshot fetch.
func (t *Service) oneShot(ctx context.Context, orderID types.ID) (*state, error) {
	snap, err := t.fetcher.FetchSnapshot(ctx, orderID)
	if err != nil {
		return nil, err
	}
	st := &state{order: orderFromSnapshot(snap), ledger: &custody.Ledger{}}
	st.ledger.Merge(st.order, snap.CustodyEvents)
	st.ledger.Reconcile(st.order)
	return st, nil
}
