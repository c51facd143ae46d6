// README: Custody scan events, QR token pair, and the per-order scan ledger.
package custody

import (
	"time"

	"mediroute/internal/types"
)

type ScanType string

const (
	ScanPickup   ScanType = "pickup"
	ScanDelivery ScanType = "delivery"
)

// ScanEvent is one QR verification attempt. Append-only, ordered by
// RecordedAt.
type ScanEvent struct {
	ScanType    ScanType  `json:"scan_type"`
	OrderID     types.ID  `json:"order_id"`
	PerformedBy types.ID  `json:"performed_by"`
	RecordedAt  time.Time `json:"recorded_at"`
	Success     bool      `json:"success"`
}

// Tokens is the opaque QR pair issued by the backend once an order is
// assigned. The content scheme is the backend's business.
type Tokens struct {
	PickupQR   string `json:"pickup_qr"`
	DeliveryQR string `json:"delivery_qr"`
}

// Ledger holds an order's scan history plus transitions that were
// authorized by a scan but not yet legal on the aggregate (clock skew
// between scan time and status propagation). Not safe for concurrent use;
// the tracking loop serializes access.
type Ledger struct {
	events   []ScanEvent
	deferred []ScanType
}

// HasSuccessful reports whether a successful scan of the given type exists.
func (l *Ledger) HasSuccessful(t ScanType) bool {
	for _, e := range l.events {
		if e.ScanType == t && e.Success {
			return true
		}
	}
	return false
}

// Len returns the number of recorded scan attempts.
func (l *Ledger) Len() int {
	return len(l.events)
}

// Events returns a copy of the scan history.
func (l *Ledger) Events() []ScanEvent {
	out := make([]ScanEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Ledger) contains(e ScanEvent) bool {
	for _, have := range l.events {
		if have.ScanType == e.ScanType && have.Success == e.Success && have.RecordedAt.Equal(e.RecordedAt) {
			return true
		}
	}
	return false
}

func (l *Ledger) queueDeferred(t ScanType) {
	for _, d := range l.deferred {
		if d == t {
			return
		}
	}
	l.deferred = append(l.deferred, t)
}
