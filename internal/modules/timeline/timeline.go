// Package timeline derives the user-facing lifecycle rendering of an order
// from its status and timestamp ledger. Pure and total: it never fails,
// degrading to "Pending" labels when data is missing.
package timeline

import (
	"time"

	"mediroute/internal/modules/order"
)

type StepState string

const (
	StateCompleted StepState = "completed"
	StateCurrent   StepState = "current"
	StatePending   StepState = "pending"
)

// Step is one rendered lifecycle entry.
type Step struct {
	Name      string    `json:"name"`
	TimeLabel string    `json:"time_label"`
	State     StepState `json:"state"`
}

const timeLabelLayout = "15:04, 02 Jan 2006"

// pendingLabel is shown when a step has no recorded instant.
const pendingLabel = "Pending"

// stepDef binds a display name to the status whose timestamp backs it.
type stepDef struct {
	name   string
	status order.Status
}

var steps = []stepDef{
	{"Created", order.StatusCreated},
	{"Rider Assignment", order.StatusAssigned},
	{"En Route to Pickup", order.StatusPickupStarted},
	{"Samples Collected", order.StatusPickedUp},
	{"Delivered", order.StatusDelivered},
}

var statusRank = map[order.Status]int{
	order.StatusCreated:         0,
	order.StatusPendingRider:    0,
	order.StatusAssigned:        1,
	order.StatusPickupStarted:   2,
	order.StatusPickedUp:        3,
	order.StatusDeliveryStarted: 3,
	order.StatusDelivered:       4,
}

// Derive maps an order to its five fixed lifecycle steps. Timestamps are
// ground truth for completion; status is consulted only when a step's
// timestamp is absent but the order has demonstrably moved past it, in which
// case the gap step renders completed with a "Pending" label instead of
// blocking the current marker. loc selects the display timezone; nil means
// the process-local one.
func Derive(o *order.Order, loc *time.Location) []Step {
	out := make([]Step, len(steps))
	for i, def := range steps {
		out[i] = Step{Name: def.name, TimeLabel: pendingLabel, State: StatePending}
	}
	if o == nil {
		out[0].State = StateCurrent
		return out
	}
	if loc == nil {
		loc = time.Local
	}

	// Highest step completed according to either ground truth.
	reached := -1
	for i, def := range steps {
		if ts := o.TimestampFor(def.status); ts != nil {
			out[i].TimeLabel = ts.In(loc).Format(timeLabelLayout)
			reached = i
		}
	}
	if r, ok := statusRank[o.Status]; ok && r > reached {
		reached = r
	}

	for i := 0; i <= reached && i < len(out); i++ {
		out[i].State = StateCompleted
	}

	// Cancelled orders freeze: completed steps stay, nothing is current.
	if o.Status == order.StatusCancelled {
		return out
	}
	if next := reached + 1; next < len(out) {
		out[next].State = StateCurrent
	}
	return out
}
