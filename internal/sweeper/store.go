package sweeper

import (
    "context"
    "database/sql"
    "time"

    "github.com/habeshastay/booking-engine/internal/repository"
)

// MySQLStore implements Store on the repository layer.  One call is one
// transaction: lock and expire the stale bookings, audit them, and give
// their rooms back.
type MySQLStore struct {
    db       *sql.DB
    bookings *repository.BookingRepo
    rooms    *repository.RoomRepo
    logs     *repository.PaymentLogRepo
}

// NewMySQLStore returns a store wired to the shared repositories.
func NewMySQLStore(db *sql.DB, bookings *repository.BookingRepo, rooms *repository.RoomRepo, logs *repository.PaymentLogRepo) *MySQLStore {
    return &MySQLStore{db: db, bookings: bookings, rooms: rooms, logs: logs}
}

// ExpireStale transitions every PENDING booking created before cutoff to
// EXPIRED, appends the audit entries, and releases the held rooms, all
// within one transaction.  A booking confirmed or cancelled concurrently
// is excluded by the row locks taken inside ExpireStaleTx.
func (s *MySQLStore) ExpireStale(ctx context.Context, cutoff time.Time) (int, error) {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return 0, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    expired, err := s.bookings.ExpireStaleTx(ctx, tx, cutoff)
    if err != nil {
        return 0, err
    }
    if len(expired) == 0 {
        committed = true
        return 0, tx.Commit()
    }

    bookingIDs := make([]uint64, 0, len(expired))
    roomIDs := make([]uint64, 0, len(expired))
    for _, e := range expired {
        bookingIDs = append(bookingIDs, e.BookingID)
        roomIDs = append(roomIDs, e.RoomID)
    }
    if err := s.logs.AppendExpiredBulkTx(ctx, tx, bookingIDs); err != nil {
        return 0, err
    }
    if err := s.rooms.ReleaseBulkTx(ctx, tx, roomIDs); err != nil {
        return 0, err
    }
    if err := tx.Commit(); err != nil {
        return 0, err
    }
    committed = true
    return len(expired), nil
}
