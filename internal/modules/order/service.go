// README: Order service: intake and cancellation against the courier backend.
package order

import (
	"context"
	"errors"
	"log/slog"

	"mediroute/internal/types"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotFound          = errors.New("order not found")
	ErrBadRequest        = errors.New("bad request")
)

// Backend is the slice of the courier backend the order service needs.
// The full snapshot surface lives in the backend adapter package.
type Backend interface {
	CreateOrder(ctx context.Context, cmd CreateCommand) (types.ID, error)
	CancelOrder(ctx context.Context, id types.ID, reason, notes string) error
}

// TransitionJournal is the audit sink for accepted status transitions.
type TransitionJournal interface {
	AppendTransition(ctx context.Context, tr *Transition) error
}

type Service struct {
	backend Backend
	journal TransitionJournal
	logger  *slog.Logger
}

func NewService(backend Backend, journal TransitionJournal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, journal: journal, logger: logger}
}

type CreateCommand struct {
	HospitalID   types.ID
	Sample       Sample
	Pickup       types.Point
	Delivery     types.Point
	Instructions string
}

type CancelCommand struct {
	OrderID types.ID
	Reason  string
	Notes   string
	// Current is the last-known aggregate when the order is being tracked;
	// nil when it is not, in which case the backend is the sole validator.
	Current *Order
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	if cmd.HospitalID == "" || cmd.Sample.Type == "" || cmd.Sample.Quantity <= 0 {
		return "", ErrBadRequest
	}
	return s.backend.CreateOrder(ctx, cmd)
}

// Cancel rejects locally when the last-known state already rules the edge
// out, so the user sees "cannot be cancelled in its current state" without a
// round trip. The backend remains authoritative for the race where state
// advanced since the last snapshot.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	if cmd.OrderID == "" || cmd.Reason == "" {
		return ErrBadRequest
	}
	if cmd.Current != nil && !CanTransition(cmd.Current.Status, StatusCancelled) {
		return ErrInvalidTransition
	}
	return s.backend.CancelOrder(ctx, cmd.OrderID, cmd.Reason, cmd.Notes)
}

// Journal appends an accepted transition to the audit journal. Write
// failures never block reconciliation, but a broken audit trail must be
// visible, so they are logged.
func (s *Service) Journal(ctx context.Context, tr *Transition) {
	if tr == nil || s.journal == nil {
		return
	}
	if err := s.journal.AppendTransition(ctx, tr); err != nil {
		s.logger.Warn("transition journal write failed",
			slog.String("order_id", string(tr.OrderID)),
			slog.String("from", string(tr.From)),
			slog.String("to", string(tr.To)),
			slog.String("error", err.Error()))
	}
}
