package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/habeshastay/booking-engine/internal/model"
)

// BookingRepo provides data access to the bookings table.  Bookings are
// created PENDING inside the booking guard's transaction and transition
// exactly once to CONFIRMED, CANCELLED or EXPIRED.  Rows are never
// physically deleted.  All timestamps are stored in UTC.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying sql.DB so handlers can begin transactions
// spanning bookings, payments and rooms.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const dateFormat = "2006-01-02"

// CreateTx inserts a new booking within the scope of an existing
// transaction and populates the generated ID and timestamps on the
// provided struct.  The caller must commit or roll back.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
    const q = `INSERT INTO bookings (guest_id, user_id, hotel_id, room_id, check_in, check_out, nights, total_amount_cents, status)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
    var userID interface{}
    if b.UserID != nil {
        userID = *b.UserID
    }
    result, err := tx.ExecContext(ctx, q,
        b.GuestID, userID, b.HotelID, b.RoomID,
        b.CheckIn.UTC().Format(dateFormat), b.CheckOut.UTC().Format(dateFormat),
        b.Nights, b.TotalAmountCents, string(b.Status),
    )
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    b.ID = uint64(id)
    // Query back the row to populate DB-assigned timestamps
    const sel = `SELECT created_at, updated_at FROM bookings WHERE id = ?`
    return tx.QueryRowContext(ctx, sel, b.ID).Scan(&b.CreatedAt, &b.UpdatedAt)
}

// HasOverlapTx reports whether any PENDING or CONFIRMED booking on the
// room intersects the half-open [checkIn, checkOut) range.  Callers must
// hold the room row lock (RoomRepo.GetForUpdateTx) before invoking this
// so the check-and-flip cannot race a concurrent booking attempt.
func (r *BookingRepo) HasOverlapTx(ctx context.Context, tx *sql.Tx, roomID uint64, checkIn, checkOut time.Time) (bool, error) {
    const q = `SELECT COUNT(*) FROM bookings
               WHERE room_id = ?
                 AND status IN ('PENDING', 'CONFIRMED')
                 AND check_in < ?
                 AND check_out > ?`
    var n int
    err := tx.QueryRowContext(ctx, q, roomID,
        checkOut.UTC().Format(dateFormat), checkIn.UTC().Format(dateFormat)).Scan(&n)
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// HasDuplicateTx reports whether the guest already has an active booking
// for the same room and exact dates.  This is the idempotency guard
// against double submits of one request.
func (r *BookingRepo) HasDuplicateTx(ctx context.Context, tx *sql.Tx, guestID, roomID uint64, checkIn, checkOut time.Time) (bool, error) {
    const q = `SELECT COUNT(*) FROM bookings
               WHERE guest_id = ? AND room_id = ?
                 AND check_in = ? AND check_out = ?
                 AND status IN ('PENDING', 'CONFIRMED')`
    var n int
    err := tx.QueryRowContext(ctx, q, guestID, roomID,
        checkIn.UTC().Format(dateFormat), checkOut.UTC().Format(dateFormat)).Scan(&n)
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// scanBooking reads one bookings row from either a *sql.Row or *sql.Rows.
func scanBooking(scan func(dest ...interface{}) error) (*model.Booking, error) {
    var b model.Booking
    var userID sql.NullInt64
    var status string
    err := scan(&b.ID, &b.GuestID, &userID, &b.HotelID, &b.RoomID,
        &b.CheckIn, &b.CheckOut, &b.Nights, &b.TotalAmountCents,
        &status, &b.CreatedAt, &b.UpdatedAt)
    if err != nil {
        return nil, err
    }
    if userID.Valid {
        uid := uint64(userID.Int64)
        b.UserID = &uid
    }
    b.Status = model.BookingStatus(status)
    return &b, nil
}

const bookingColumns = `id, guest_id, user_id, hotel_id, room_id, check_in, check_out, nights, total_amount_cents, status, created_at, updated_at`

// GetByID loads a booking outside any transaction.
func (r *BookingRepo) GetByID(ctx context.Context, bookingID uint64) (*model.Booking, error) {
    q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
    b, err := scanBooking(r.db.QueryRowContext(ctx, q, bookingID).Scan)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrBookingNotFound
        }
        return nil, err
    }
    return b, nil
}

// GetForUpdateTx loads a booking with a row lock inside the provided
// transaction.  The payment orchestrator uses this before mutating
// booking state so concurrent callbacks for the same booking serialize.
func (r *BookingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (*model.Booking, error) {
    q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? FOR UPDATE`
    b, err := scanBooking(tx.QueryRowContext(ctx, q, bookingID).Scan)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrBookingNotFound
        }
        return nil, err
    }
    return b, nil
}

// UpdateStatusTx sets the booking's status within the provided
// transaction.  Callers are responsible for checking the transition is
// legal via model.Booking.CanTransitionTo first.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, bookingID uint64, status model.BookingStatus) error {
    const q = `UPDATE bookings SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
    _, err := tx.ExecContext(ctx, q, string(status), bookingID)
    return err
}

// ExpiredBooking pairs a stale booking with the room it was holding so
// the sweeper can release inventory in the same transaction.
type ExpiredBooking struct {
    BookingID uint64
    RoomID    uint64
}

// ExpireStaleTx transitions every PENDING booking created before the
// cutoff to EXPIRED and returns the affected booking/room pairs.  The
// rows are locked first so a concurrent payment callback for one of the
// bookings waits and then observes the EXPIRED state.  Room release is
// the caller's next step; both must share the transaction.
//
// When there are no stale bookings, it returns an empty slice and nil.
func (r *BookingRepo) ExpireStaleTx(ctx context.Context, tx *sql.Tx, cutoff time.Time) ([]ExpiredBooking, error) {
    rows, err := tx.QueryContext(ctx,
        `SELECT id, room_id FROM bookings
         WHERE status = 'PENDING' AND created_at < ?
         FOR UPDATE`,
        cutoff.UTC().Format("2006-01-02 15:04:05"),
    )
    if err != nil {
        return nil, err
    }
    var stale []ExpiredBooking
    for rows.Next() {
        var e ExpiredBooking
        if scanErr := rows.Scan(&e.BookingID, &e.RoomID); scanErr != nil {
            rows.Close()
            return nil, scanErr
        }
        stale = append(stale, e)
    }
    if err = rows.Close(); err != nil {
        return nil, err
    }
    if len(stale) == 0 {
        return []ExpiredBooking{}, nil
    }
    _, err = tx.ExecContext(ctx,
        `UPDATE bookings SET status = 'EXPIRED', updated_at = UTC_TIMESTAMP()
         WHERE status = 'PENDING' AND created_at < ?`,
        cutoff.UTC().Format("2006-01-02 15:04:05"),
    )
    if err != nil {
        return nil, err
    }
    return stale, nil
}

// BookingDetail aggregates a booking with its guest, hotel and room for
// the read-only GET endpoints.
type BookingDetail struct {
    Booking model.Booking `json:"booking"`
    Guest   model.Guest   `json:"guest"`
    Hotel   model.Hotel   `json:"hotel"`
    Room    model.Room    `json:"room"`
}

// GetDetail returns a booking joined with its guest, hotel and room.
// Returns ErrBookingNotFound when the booking does not exist.
func (r *BookingRepo) GetDetail(ctx context.Context, bookingID uint64) (*BookingDetail, error) {
    const q = `SELECT b.id, b.guest_id, b.user_id, b.hotel_id, b.room_id, b.check_in, b.check_out,
                      b.nights, b.total_amount_cents, b.status, b.created_at, b.updated_at,
                      g.name, g.contact,
                      h.name, h.city, h.is_active,
                      rm.number, rm.room_type, rm.rate_cents_night, rm.status
               FROM bookings b
               JOIN guests g ON g.id = b.guest_id
               JOIN hotels h ON h.id = b.hotel_id
               JOIN rooms rm ON rm.id = b.room_id
               WHERE b.id = ?`
    var det BookingDetail
    var userID sql.NullInt64
    var bStatus, rmStatus string
    err := r.db.QueryRowContext(ctx, q, bookingID).Scan(
        &det.Booking.ID, &det.Booking.GuestID, &userID, &det.Booking.HotelID, &det.Booking.RoomID,
        &det.Booking.CheckIn, &det.Booking.CheckOut, &det.Booking.Nights, &det.Booking.TotalAmountCents,
        &bStatus, &det.Booking.CreatedAt, &det.Booking.UpdatedAt,
        &det.Guest.Name, &det.Guest.Contact,
        &det.Hotel.Name, &det.Hotel.City, &det.Hotel.IsActive,
        &det.Room.Number, &det.Room.RoomType, &det.Room.RateCentsNight, &rmStatus,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrBookingNotFound
        }
        return nil, err
    }
    det.Booking.Status = model.BookingStatus(bStatus)
    if userID.Valid {
        uid := uint64(userID.Int64)
        det.Booking.UserID = &uid
    }
    det.Guest.ID = det.Booking.GuestID
    det.Hotel.ID = det.Booking.HotelID
    det.Room.ID = det.Booking.RoomID
    det.Room.HotelID = det.Booking.HotelID
    det.Room.Status = model.RoomStatus(rmStatus)
    return &det, nil
}
