package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/habeshastay/booking-engine/internal/model"
)

// RoomRepo manages the catalog's rooms table.  The booking core reads the
// rate and hotel association and writes only the status column, flipping
// rooms between AVAILABLE and OCCUPIED as bookings are created and
// resolved.
type RoomRepo struct {
    db *sql.DB
}

// NewRoomRepo returns a new RoomRepo bound to the given database.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

// DB exposes the underlying sql.DB.  It allows handlers to begin
// transactions that span rooms, bookings and payments.
func (r *RoomRepo) DB() *sql.DB { return r.db }

// GetForUpdateTx loads a room by ID with SELECT ... FOR UPDATE, taking a
// row lock that serializes all concurrent booking attempts on the same
// room until the surrounding transaction commits or rolls back.  The
// conflict check that follows is therefore linearizable with respect to
// other createBooking calls regardless of the session isolation level.
// Returns ErrRoomNotFound when the room does not exist or belongs to a
// different hotel.
func (r *RoomRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, roomID, hotelID uint64) (*model.Room, error) {
    const q = `SELECT id, hotel_id, number, room_type, rate_cents_night, status, created_at, updated_at
               FROM rooms WHERE id = ? FOR UPDATE`
    var rm model.Room
    err := tx.QueryRowContext(ctx, q, roomID).Scan(
        &rm.ID, &rm.HotelID, &rm.Number, &rm.RoomType, &rm.RateCentsNight,
        &rm.Status, &rm.CreatedAt, &rm.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrRoomNotFound
        }
        return nil, err
    }
    if rm.HotelID != hotelID {
        return nil, ErrRoomNotFound
    }
    return &rm, nil
}

// UpdateStatusTx sets the room's status within the provided transaction.
// The caller must commit or roll back.
func (r *RoomRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, roomID uint64, status model.RoomStatus) error {
    const q = `UPDATE rooms SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
    _, err := tx.ExecContext(ctx, q, string(status), roomID)
    return err
}

// ReleaseBulkTx flips every listed room back to AVAILABLE in a single
// statement.  The expiry sweep uses it after bulk-expiring the bookings
// that held those rooms.
func (r *RoomRepo) ReleaseBulkTx(ctx context.Context, tx *sql.Tx, roomIDs []uint64) error {
    if len(roomIDs) == 0 {
        return nil
    }
    placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roomIDs)), ",")
    q := `UPDATE rooms SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id IN (` + placeholders + `)`
    args := make([]any, 0, len(roomIDs)+1)
    args = append(args, string(model.RoomAvailable))
    for _, id := range roomIDs {
        args = append(args, id)
    }
    _, err := tx.ExecContext(ctx, q, args...)
    return err
}

// GetByID loads a room outside any transaction for read-only projections.
func (r *RoomRepo) GetByID(ctx context.Context, roomID uint64) (*model.Room, error) {
    const q = `SELECT id, hotel_id, number, room_type, rate_cents_night, status, created_at, updated_at
               FROM rooms WHERE id = ?`
    var rm model.Room
    err := r.db.QueryRowContext(ctx, q, roomID).Scan(
        &rm.ID, &rm.HotelID, &rm.Number, &rm.RoomType, &rm.RateCentsNight,
        &rm.Status, &rm.CreatedAt, &rm.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrRoomNotFound
        }
        return nil, err
    }
    return &rm, nil
}
