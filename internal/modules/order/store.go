// README: Append-only transition journal backed by PostgreSQL.
package order

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store journals accepted status transitions for audit. The live aggregate
// is client-side and in-memory; durability belongs to the backend, so a nil
// Store (no DSN configured) is a valid no-op sink.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) AppendTransition(ctx context.Context, tr *Transition) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO order_transition_events (
            order_id, from_status, to_status, occurred_at
        ) VALUES ($1, $2, $3, $4)`,
		string(tr.OrderID),
		string(tr.From),
		string(tr.To),
		tr.At,
	)
	return err
}
