// README: Order aggregate, status definitions, and the transition table.
package order

import (
	"time"

	"mediroute/internal/modules/location"
	"mediroute/internal/types"
)

type Status string

const (
	StatusNone            Status = "none"
	StatusCreated         Status = "created"
	StatusPendingRider    Status = "pending_rider_assignment"
	StatusAssigned        Status = "assigned"
	StatusPickupStarted   Status = "pickup_started"
	StatusPickedUp        Status = "picked_up"
	StatusDeliveryStarted Status = "delivery_started"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
)

// Rider is the courier assigned to an order, present once status reaches
// assigned.
type Rider struct {
	ID      types.ID `json:"id"`
	Name    string   `json:"name"`
	Phone   string   `json:"phone"`
	Vehicle string   `json:"vehicle"`
}

// Sample describes the medical material being moved; fixed at creation.
type Sample struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
	Urgency  string `json:"urgency"`
}

// Order is the aggregate root. Timestamps are write-once: a step's timestamp
// is set the first time the order is observed in that status and never
// overwritten, which makes re-applying stale or duplicate snapshots a no-op.
type Order struct {
	ID         types.ID
	HospitalID types.ID
	Status     Status
	Rider      *Rider
	Sample     Sample
	Pickup     types.Point
	Delivery   types.Point

	// RiderLocation is the latest courier position while the order is in
	// flight; carries its own capture instant for staleness checks.
	RiderLocation *location.Sample

	Instructions string
	CancelReason *string

	CreatedAt         time.Time
	AssignedAt        *time.Time
	PickupStartedAt   *time.Time
	PickedUpAt        *time.Time
	DeliveryStartedAt *time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
}

// Transition is emitted on every accepted status change.
type Transition struct {
	OrderID types.ID
	From    Status
	To      Status
	At      time.Time
}

// AllowedTransitions represents the delivery lifecycle as code: strictly
// forward edges, with cancellation reachable from every non-terminal state.
var AllowedTransitions = map[Status][]Status{
	StatusCreated:         {StatusPendingRider, StatusCancelled},
	StatusPendingRider:    {StatusAssigned, StatusCancelled},
	StatusAssigned:        {StatusPickupStarted, StatusCancelled},
	StatusPickupStarted:   {StatusPickedUp, StatusCancelled},
	StatusPickedUp:        {StatusDeliveryStarted, StatusCancelled},
	StatusDeliveryStarted: {StatusDelivered, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing edges.
func IsTerminal(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled
}

// forwardOrder indexes the non-cancel lifecycle for path computation.
var forwardOrder = []Status{
	StatusCreated,
	StatusPendingRider,
	StatusAssigned,
	StatusPickupStarted,
	StatusPickedUp,
	StatusDeliveryStarted,
	StatusDelivered,
}

func forwardIndex(s Status) int {
	for i, v := range forwardOrder {
		if v == s {
			return i
		}
	}
	return -1
}

// ForwardPath returns the chain of statuses strictly after from up to and
// including to, when to lies further along the forward lifecycle. The poller
// uses it to walk intermediate states a snapshot skipped over.
func ForwardPath(from, to Status) ([]Status, bool) {
	i, j := forwardIndex(from), forwardIndex(to)
	if i < 0 || j < 0 || j <= i {
		return nil, false
	}
	return forwardOrder[i+1 : j+1], true
}

// TimestampFor returns the write-once timestamp recorded for a status, or
// nil. The created timestamp is always present.
func (o *Order) TimestampFor(s Status) *time.Time {
	switch s {
	case StatusCreated:
		return &o.CreatedAt
	case StatusAssigned:
		return o.AssignedAt
	case StatusPickupStarted:
		return o.PickupStartedAt
	case StatusPickedUp:
		return o.PickedUpAt
	case StatusDeliveryStarted:
		return o.DeliveryStartedAt
	case StatusDelivered:
		return o.DeliveredAt
	case StatusCancelled:
		return o.CancelledAt
	}
	return nil
}

// RecordTimestamp sets the timestamp for a status if it is still unset and
// reports whether it wrote. Existing values are never overwritten, which
// guards against out-of-order network responses re-delivering an older
// instant.
func (o *Order) RecordTimestamp(s Status, at time.Time) bool {
	set := func(dst **time.Time) bool {
		if *dst != nil {
			return false
		}
		t := at
		*dst = &t
		return true
	}
	switch s {
	case StatusAssigned:
		return set(&o.AssignedAt)
	case StatusPickupStarted:
		return set(&o.PickupStartedAt)
	case StatusPickedUp:
		return set(&o.PickedUpAt)
	case StatusDeliveryStarted:
		return set(&o.DeliveryStartedAt)
	case StatusDelivered:
		return set(&o.DeliveredAt)
	case StatusCancelled:
		return set(&o.CancelledAt)
	}
	return false
}

// ApplyStatus moves the order to newStatus, stamping the step's write-once
// timestamp. Re-delivering the current status is an idempotent no-op, not an
// error: the poller receives the full status on every tick, not a delta.
// Returns the emitted transition, or nil for a no-op.
func (o *Order) ApplyStatus(newStatus Status, at time.Time) (*Transition, error) {
	if newStatus == o.Status {
		return nil, nil
	}
	if !CanTransition(o.Status, newStatus) {
		return nil, ErrInvalidTransition
	}
	tr := &Transition{OrderID: o.ID, From: o.Status, To: newStatus, At: at}
	o.Status = newStatus
	o.RecordTimestamp(newStatus, at)
	return tr, nil
}

// Clone returns a deep copy safe to hand to subscribers while the poll loop
// keeps mutating the original.
func (o *Order) Clone() *Order {
	c := *o
	if o.Rider != nil {
		r := *o.Rider
		c.Rider = &r
	}
	if o.RiderLocation != nil {
		l := *o.RiderLocation
		c.RiderLocation = &l
	}
	if o.CancelReason != nil {
		s := *o.CancelReason
		c.CancelReason = &s
	}
	clonePtr := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		v := *t
		return &v
	}
	c.AssignedAt = clonePtr(o.AssignedAt)
	c.PickupStartedAt = clonePtr(o.PickupStartedAt)
	c.PickedUpAt = clonePtr(o.PickedUpAt)
	c.DeliveryStartedAt = clonePtr(o.DeliveryStartedAt)
	c.DeliveredAt = clonePtr(o.DeliveredAt)
	c.CancelledAt = clonePtr(o.CancelledAt)
	return &c
}
