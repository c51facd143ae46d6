// README: Subscription handles, update payloads, and the tracking view.
package tracking

import (
	"time"

	"mediroute/internal/modules/geo"
	"mediroute/internal/modules/location"
	"mediroute/internal/modules/order"
	"mediroute/internal/modules/timeline"
	"mediroute/internal/types"
)

// Handle identifies one subscriber of one order's poll loop.
type Handle struct {
	orderID types.ID
	id      int64
}

// OrderID returns the order this handle observes.
func (h Handle) OrderID() types.ID { return h.orderID }

// View is the map-facing projection of an order: last rider position with
// its staleness advisory, the ETA toward the next custody point, and a
// non-degenerate map region covering all relevant points.
type View struct {
	RiderLocation *location.Sample `json:"rider_location,omitempty"`
	// LocationAge is how old the rider sample is; meaningful only when
	// RiderLocation is set.
	LocationAge time.Duration `json:"location_age"`
	// LocationStale marks a sample older than the location poll interval:
	// shown as "last known", never hidden.
	LocationStale bool          `json:"location_stale"`
	ETA           time.Duration `json:"eta"`
	Region        geo.Region    `json:"region"`
}

// Update is the payload delivered to subscribers on every reconciled tick.
// Order is a private deep copy; subscribers may keep it.
type Update struct {
	Order    *order.Order
	Timeline []timeline.Step
	View     View
	// Degraded marks a tick that served last-known state because the fetch
	// failed; Failures counts the consecutive misses behind it.
	Degraded bool
	Failures int
}

// Callback receives updates on the order's poll goroutine. It must return
// promptly and must not call back into the tracker; screens unsubscribe
// from their own lifecycle, not from the update path.
type Callback func(Update)
