package repository

import (
    "context"
    "database/sql"
    "strings"

    "github.com/habeshastay/booking-engine/internal/model"
)

// PaymentLogRepo writes the append-only audit trail of the payment flow.
// Rows are inserted inside the same transaction as the state change they
// describe and are never updated or deleted.
type PaymentLogRepo struct {
    db *sql.DB
}

// NewPaymentLogRepo returns a new PaymentLogRepo bound to the given database.
func NewPaymentLogRepo(db *sql.DB) *PaymentLogRepo { return &PaymentLogRepo{db: db} }

// AppendTx inserts one audit entry within the provided transaction.
func (r *PaymentLogRepo) AppendTx(ctx context.Context, tx *sql.Tx, paymentID, bookingID uint64, action, detail string) error {
    const q = `INSERT INTO payment_logs (payment_id, booking_id, action, detail) VALUES (?, ?, ?, ?)`
    _, err := tx.ExecContext(ctx, q, paymentID, bookingID, action, detail)
    return err
}

// AppendExpiredBulkTx writes one BOOKING_EXPIRED entry per expired
// booking in a single INSERT ... SELECT, attaching each entry to the
// booking's most recent payment.  Called by the expiry sweep inside the
// same transaction that flips the bookings.
func (r *PaymentLogRepo) AppendExpiredBulkTx(ctx context.Context, tx *sql.Tx, bookingIDs []uint64) error {
    if len(bookingIDs) == 0 {
        return nil
    }
    placeholders := strings.TrimSuffix(strings.Repeat("?,", len(bookingIDs)), ",")
    q := `INSERT INTO payment_logs (payment_id, booking_id, action, detail)
          SELECT MAX(p.id), p.booking_id, ?, ?
          FROM payments p WHERE p.booking_id IN (` + placeholders + `)
          GROUP BY p.booking_id`
    args := make([]any, 0, len(bookingIDs)+2)
    args = append(args, model.LogBookingExpired, "grace window elapsed before payment completion")
    for _, id := range bookingIDs {
        args = append(args, id)
    }
    _, err := tx.ExecContext(ctx, q, args...)
    return err
}

// ListByPayment returns all audit entries for a payment, oldest first.
func (r *PaymentLogRepo) ListByPayment(ctx context.Context, paymentID uint64) ([]model.PaymentLog, error) {
    const q = `SELECT id, payment_id, booking_id, action, detail, created_at
               FROM payment_logs WHERE payment_id = ? ORDER BY id ASC`
    rows, err := r.db.QueryContext(ctx, q, paymentID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    logs := make([]model.PaymentLog, 0)
    for rows.Next() {
        var l model.PaymentLog
        if err := rows.Scan(&l.ID, &l.PaymentID, &l.BookingID, &l.Action, &l.Detail, &l.CreatedAt); err != nil {
            return nil, err
        }
        logs = append(logs, l)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return logs, nil
}
