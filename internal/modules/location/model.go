// README: Rider location sample carrying its own capture instant.
package location

import (
	"time"

	"mediroute/internal/types"
)

// Sample is a single rider position report. RecordedAt is the capture
// instant reported by the backend, not the time the sample arrived here;
// staleness decisions always use the capture instant.
type Sample struct {
	OrderID    types.ID    `json:"order_id"`
	RiderID    types.ID    `json:"rider_id"`
	Position   types.Point `json:"position"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// StaleAfter reports whether the sample is older than the given bound at
// the reference instant. A stale sample is still shown as "last known",
// never hidden.
func (s Sample) StaleAfter(bound time.Duration, now time.Time) bool {
	return now.Sub(s.RecordedAt) > bound
}

// Age returns how old the sample is at the reference instant, floored at
// zero so skewed backend clocks never report a negative age.
func (s Sample) Age(now time.Time) time.Duration {
	d := now.Sub(s.RecordedAt)
	if d < 0 {
		return 0
	}
	return d
}
