// README: Refcounted per-order poll loops reconciling backend snapshots.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mediroute/internal/backend"
	"mediroute/internal/config"
	"mediroute/internal/metrics"
	"mediroute/internal/modules/custody"
	"mediroute/internal/modules/geo"
	"mediroute/internal/modules/location"
	"mediroute/internal/modules/order"
	"mediroute/internal/modules/timeline"
	"mediroute/internal/types"
)

var (
	ErrClosed     = errors.New("tracker closed")
	ErrNoSnapshot = errors.New("no snapshot received yet")
)

// Fetcher is the slice of the backend the tracker needs.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, orderID types.ID) (*backend.Snapshot, error)
	FetchRiderLocation(ctx context.Context, orderID types.ID) (*location.Sample, error)
}

// RouteEstimator refines the naive linear ETA with road-network travel
// times. Optional; nil disables refinement.
type RouteEstimator interface {
	EstimateTravel(ctx context.Context, origin, dest types.Point) (time.Duration, error)
}

// ScanJournal is the audit sink for custody scan attempts. Optional; nil
// disables scan journaling.
type ScanJournal interface {
	AppendScan(ctx context.Context, e custody.ScanEvent) error
}

// state is one tracked order's mutable core, guarded by its subscription's
// mutex.
type state struct {
	order    *order.Order
	ledger   *custody.Ledger
	routeETA *time.Duration
}

type subscription struct {
	orderID types.ID
	cancel  context.CancelFunc

	mu        sync.Mutex
	refs      int
	nextID    int64
	callbacks map[int64]Callback
	state     *state
	failures  int
	last      *Update
}

// Service maintains at most one poll loop per observed order id, merges
// every snapshot through the state machine and custody protocol, and fans
// updates out to subscribers.
type Service struct {
	fetcher   Fetcher
	orders    *order.Service
	scans     ScanJournal
	locations *location.Store
	routes    RouteEstimator
	cfg       config.TrackingConfig
	geoCfg    config.GeoConfig
	logger    *slog.Logger

	mu     sync.Mutex
	subs   map[types.ID]*subscription
	closed bool
	wg     sync.WaitGroup
}

func NewService(
	fetcher Fetcher,
	orders *order.Service,
	scans ScanJournal,
	locations *location.Store,
	routes RouteEstimator,
	cfg config.TrackingConfig,
	geoCfg config.GeoConfig,
	logger *slog.Logger,
) *Service {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 5 * time.Second
	}
	if cfg.LocationInterval <= 0 {
		cfg.LocationInterval = 30 * time.Second
	}
	if cfg.BackoffCeiling < cfg.SnapshotInterval {
		cfg.BackoffCeiling = cfg.SnapshotInterval
	}
	return &Service{
		fetcher:   fetcher,
		orders:    orders,
		scans:     scans,
		locations: locations,
		routes:    routes,
		cfg:       cfg,
		geoCfg:    geoCfg,
		logger:    logger,
		subs:      map[types.ID]*subscription{},
	}
}

// Subscribe joins (or starts) the poll loop for an order. The last
// published update, if any, is replayed while the callback is registered,
// so late joiners render without waiting for the next tick and the replay
// can never arrive after a newer update.
func (t *Service) Subscribe(orderID types.ID, cb Callback) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return Handle{}, ErrClosed
	}
	sub, ok := t.subs[orderID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		sub = &subscription{
			orderID:   orderID,
			cancel:    cancel,
			callbacks: map[int64]Callback{},
		}
		t.subs[orderID] = sub
		t.wg.Add(1)
		go t.loop(ctx, sub)
		metrics.ActiveSubscriptions.Inc()
	}

	sub.mu.Lock()
	sub.refs++
	sub.nextID++
	h := Handle{orderID: orderID, id: sub.nextID}
	sub.callbacks[h.id] = cb
	if sub.last != nil {
		cb(*sub.last)
	}
	sub.mu.Unlock()

	return h, nil
}

// Unsubscribe drops one subscriber. The last subscriber leaving cancels the
// loop's context, which aborts any in-flight fetch; once Unsubscribe
// returns, the callback will not be invoked again.
func (t *Service) Unsubscribe(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.subs[h.orderID]
	if !ok {
		return
	}
	sub.mu.Lock()
	if _, had := sub.callbacks[h.id]; !had {
		sub.mu.Unlock()
		return
	}
	delete(sub.callbacks, h.id)
	sub.refs--
	last := sub.refs == 0
	sub.mu.Unlock()

	if last {
		delete(t.subs, h.orderID)
		sub.cancel()
		metrics.ActiveSubscriptions.Dec()
	}
}

// Close tears down every loop and waits for them to exit.
func (t *Service) Close() {
	t.mu.Lock()
	t.closed = true
	for id, sub := range t.subs {
		sub.cancel()
		delete(t.subs, id)
		metrics.ActiveSubscriptions.Dec()
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Service) loop(ctx context.Context, sub *subscription) {
	defer t.wg.Done()

	snapTimer := time.NewTimer(0) // immediate first fetch
	defer snapTimer.Stop()
	locTicker := time.NewTicker(t.cfg.LocationInterval)
	defer locTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-snapTimer.C:
			snapTimer.Reset(t.snapshotTick(ctx, sub))
		case <-locTicker.C:
			t.locationTick(ctx, sub)
		}
	}
}

// snapshotTick runs one poll cycle and returns the delay until the next.
func (t *Service) snapshotTick(ctx context.Context, sub *subscription) time.Duration {
	metrics.PollTicksTotal.Inc()
	snap, err := t.fetcher.FetchSnapshot(ctx, sub.orderID)
	if err != nil {
		if ctx.Err() != nil {
			return t.cfg.SnapshotInterval
		}
		metrics.FetchFailuresTotal.Inc()

		sub.mu.Lock()
		sub.failures++
		delay := backoffDelay(t.cfg.SnapshotInterval, t.cfg.BackoffCeiling, sub.failures)
		var rl backend.RateLimitedError
		if errors.As(err, &rl) && rl.RetryAfter > delay {
			delay = rl.RetryAfter
		}
		failures := sub.failures
		t.publishLocked(sub, true)
		sub.mu.Unlock()

		t.logger.Warn("snapshot fetch failed, serving last-known state",
			slog.String("order_id", string(sub.orderID)),
			slog.Int("consecutive_failures", failures),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()))
		return delay
	}

	sub.mu.Lock()
	sub.failures = 0
	t.reconcileLocked(ctx, sub, snap)
	target, pos, wantRoute := t.routeQueryLocked(sub.state)
	sub.mu.Unlock()

	if wantRoute {
		// Network call outside the state lock.
		if d, err := t.routes.EstimateTravel(ctx, pos, target); err == nil {
			sub.mu.Lock()
			sub.state.routeETA = &d
			sub.mu.Unlock()
		}
	}

	sub.mu.Lock()
	t.publishLocked(sub, false)
	sub.mu.Unlock()
	return t.cfg.SnapshotInterval
}

// locationTick refreshes only the rider position between full snapshots.
// Failures here are advisory; the snapshot cadence carries recovery.
func (t *Service) locationTick(ctx context.Context, sub *subscription) {
	sub.mu.Lock()
	st := sub.state
	sub.mu.Unlock()
	if st == nil {
		return
	}

	sample, err := t.fetcher.FetchRiderLocation(ctx, sub.orderID)
	if err != nil || sample == nil {
		return
	}

	sub.mu.Lock()
	o := sub.state.order
	if o.RiderLocation == nil || sample.RecordedAt.After(o.RiderLocation.RecordedAt) {
		s := *sample
		o.RiderLocation = &s
	}
	t.publishLocked(sub, false)
	sub.mu.Unlock()

	t.cacheLocation(ctx, sub.orderID, sample)
}

// reconcileLocked merges a snapshot into the tracked state. Applying the
// same snapshot twice is a no-op by construction: timestamps are
// write-once, transitions are forward-only, and the scan ledger
// deduplicates.
func (t *Service) reconcileLocked(ctx context.Context, sub *subscription, snap *backend.Snapshot) {
	if sub.state == nil {
		sub.state = &state{order: orderFromSnapshot(snap), ledger: &custody.Ledger{}}
	}
	st := sub.state
	o := st.order

	for s, at := range snap.Timestamps {
		o.RecordTimestamp(s, at)
	}

	if snap.Status != o.Status {
		t.advanceStatus(ctx, o, snap)
	}
	if snap.Rider != nil && o.Rider == nil {
		r := *snap.Rider
		o.Rider = &r
	}
	if snap.CancelReason != nil && o.CancelReason == nil {
		reason := *snap.CancelReason
		o.CancelReason = &reason
	}
	if snap.RiderLocation != nil {
		if o.RiderLocation == nil || snap.RiderLocation.RecordedAt.After(o.RiderLocation.RecordedAt) {
			l := *snap.RiderLocation
			o.RiderLocation = &l
		}
	}

	st.ledger.Merge(o, snap.CustodyEvents)
	for _, tr := range st.ledger.Reconcile(o) {
		t.orders.Journal(ctx, tr)
	}

	metrics.SnapshotsAppliedTotal.Inc()
	if o.RiderLocation != nil {
		t.cacheLocation(ctx, o.ID, o.RiderLocation)
	}
	if order.IsTerminal(o.Status) && t.locations != nil {
		_ = t.locations.Forget(ctx, o.ID)
	}
}

// advanceStatus walks the aggregate toward the snapshot's status, stepping
// through any intermediate states a missed tick skipped over. Regressive
// statuses from out-of-order responses are absorbed, not applied.
func (t *Service) advanceStatus(ctx context.Context, o *order.Order, snap *backend.Snapshot) {
	stamp := func(s order.Status) time.Time {
		if at, ok := snap.Timestamps[s]; ok {
			return at
		}
		return time.Now()
	}

	if snap.Status == order.StatusCancelled {
		tr, err := o.ApplyStatus(order.StatusCancelled, stamp(order.StatusCancelled))
		if err != nil {
			metrics.TransitionsRejectedTotal.Inc()
			return
		}
		t.orders.Journal(ctx, tr)
		return
	}

	path, ok := order.ForwardPath(o.Status, snap.Status)
	if !ok {
		metrics.TransitionsRejectedTotal.Inc()
		t.logger.Warn("ignoring regressive snapshot status",
			slog.String("order_id", string(o.ID)),
			slog.String("have", string(o.Status)),
			slog.String("snapshot", string(snap.Status)))
		return
	}
	for _, step := range path {
		tr, err := o.ApplyStatus(step, stamp(step))
		if err != nil {
			metrics.TransitionsRejectedTotal.Inc()
			return
		}
		if tr != nil {
			t.orders.Journal(ctx, tr)
		}
	}
}

func (t *Service) cacheLocation(ctx context.Context, orderID types.ID, sample *location.Sample) {
	if t.locations == nil || sample == nil {
		return
	}
	if err := t.locations.SetLast(ctx, *sample); err != nil {
		t.logger.Warn("location cache write failed",
			slog.String("order_id", string(orderID)),
			slog.String("error", err.Error()))
	}
}

// routeQueryLocked reports whether a road-network refinement should run and
// for which leg.
func (t *Service) routeQueryLocked(st *state) (target, pos types.Point, ok bool) {
	if t.routes == nil || st == nil || st.order.RiderLocation == nil || order.IsTerminal(st.order.Status) {
		return types.Point{}, types.Point{}, false
	}
	return nextLeg(st.order), st.order.RiderLocation.Position, true
}

// publishLocked builds the current update and delivers it to every
// callback. Caller holds sub.mu; delivery under the lock is what guarantees
// no callback runs after Unsubscribe returns.
func (t *Service) publishLocked(sub *subscription, degraded bool) {
	u := t.buildUpdate(sub.state, degraded, sub.failures)
	sub.last = &u
	for _, cb := range sub.callbacks {
		cb(u)
	}
}

func (t *Service) buildUpdate(st *state, degraded bool, failures int) Update {
	if st == nil {
		// No data yet: loading, possibly degraded if the first fetches
		// already failed.
		return Update{
			Timeline: timeline.Derive(nil, nil),
			Degraded: degraded,
			Failures: failures,
		}
	}
	o := st.order.Clone()
	return Update{
		Order:    o,
		Timeline: timeline.Derive(o, nil),
		View:     t.buildView(st, time.Now()),
		Degraded: degraded,
		Failures: failures,
	}
}

func (t *Service) buildView(st *state, now time.Time) View {
	o := st.order
	points := []types.Point{o.Pickup, o.Delivery}
	var v View
	if o.RiderLocation != nil {
		s := *o.RiderLocation
		v.RiderLocation = &s
		v.LocationAge = s.Age(now)
		v.LocationStale = s.StaleAfter(t.cfg.LocationInterval, now)
		points = append(points, s.Position)
		v.ETA = geo.ETA(geo.DistanceKm(s.Position, nextLeg(o)), t.geoCfg.AvgSpeedKmh)
	} else {
		v.ETA = geo.ETA(geo.DistanceKm(o.Pickup, o.Delivery), t.geoCfg.AvgSpeedKmh)
	}
	if st.routeETA != nil {
		v.ETA = *st.routeETA
	}
	v.Region = geo.BoundingRegion(points, t.geoCfg.RegionPadding, t.geoCfg.MinSpanDeg)
	return v
}

// nextLeg is the point the rider is heading to in the current status.
func nextLeg(o *order.Order) types.Point {
	switch o.Status {
	case order.StatusPickedUp, order.StatusDeliveryStarted, order.StatusDelivered:
		return o.Delivery
	default:
		return o.Pickup
	}
}

// backoffDelay doubles the base interval per extra consecutive failure,
// capped at the ceiling: 1 failure polls again after base, 2 after 2x, 3
// after 4x, and so on.
func backoffDelay(base, ceiling time.Duration, failures int) time.Duration {
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

func orderFromSnapshot(snap *backend.Snapshot) *order.Order {
	o := &order.Order{
		ID:           snap.OrderID,
		HospitalID:   snap.HospitalID,
		Status:       snap.Status,
		Sample:       snap.Sample,
		Pickup:       snap.Pickup,
		Delivery:     snap.Delivery,
		Instructions: snap.Instructions,
		CreatedAt:    snap.CreatedAt,
	}
	for s, at := range snap.Timestamps {
		o.RecordTimestamp(s, at)
	}
	if snap.Rider != nil {
		r := *snap.Rider
		o.Rider = &r
	}
	if snap.CancelReason != nil {
		reason := *snap.CancelReason
		o.CancelReason = &reason
	}
	if snap.RiderLocation != nil {
		l := *snap.RiderLocation
		o.RiderLocation = &l
	}
	return o
}
