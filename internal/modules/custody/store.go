// README: Append-only custody scan journal backed by PostgreSQL.
package custody

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store journals every scan attempt, including rejected ones: the custody
// chain of a medical sample is audited end to end. Nil-safe like the order
// journal; no DSN means no journal.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) AppendScan(ctx context.Context, e ScanEvent) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO custody_scan_events (
            order_id, scan_type, performed_by, recorded_at, success
        ) VALUES ($1, $2, $3, $4, $5)`,
		string(e.OrderID),
		string(e.ScanType),
		string(e.PerformedBy),
		e.RecordedAt,
		e.Success,
	)
	return err
}
