package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/habeshastay/booking-engine/internal/model"
)

// PaymentRepo provides data access to the payments table.  A booking may
// accumulate several payment rows over its life (a failed attempt followed
// by a retry) but only one should ever be PENDING at a time.
type PaymentRepo struct {
    db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// CreateTx inserts a new payment within the provided transaction and
// populates the generated ID and timestamps on the struct.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
    const q = `INSERT INTO payments (booking_id, amount_cents, provider, provider_ref, status)
               VALUES (?, ?, ?, ?, ?)`
    var ref interface{}
    if p.ProviderRef != nil {
        ref = *p.ProviderRef
    }
    result, err := tx.ExecContext(ctx, q, p.BookingID, p.AmountCents, p.Provider, ref, string(p.Status))
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    p.ID = uint64(id)
    const sel = `SELECT created_at, updated_at FROM payments WHERE id = ?`
    return tx.QueryRowContext(ctx, sel, p.ID).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func scanPayment(scan func(dest ...interface{}) error) (*model.Payment, error) {
    var p model.Payment
    var ref sql.NullString
    var status string
    err := scan(&p.ID, &p.BookingID, &p.AmountCents, &p.Provider, &ref, &status, &p.CreatedAt, &p.UpdatedAt)
    if err != nil {
        return nil, err
    }
    if ref.Valid {
        s := ref.String
        p.ProviderRef = &s
    }
    p.Status = model.PaymentStatus(status)
    return &p, nil
}

const paymentColumns = `id, booking_id, amount_cents, provider, provider_ref, status, created_at, updated_at`

// GetByID loads a payment outside any transaction.
func (r *PaymentRepo) GetByID(ctx context.Context, paymentID uint64) (*model.Payment, error) {
    q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
    p, err := scanPayment(r.db.QueryRowContext(ctx, q, paymentID).Scan)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrPaymentNotFound
        }
        return nil, err
    }
    return p, nil
}

// GetPendingByBookingTx returns the booking's PENDING payment row with a
// row lock, or ErrPaymentNotFound when none exists.  initiatePayment
// reuses this row instead of stacking a second open attempt.
func (r *PaymentRepo) GetPendingByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (*model.Payment, error) {
    q := `SELECT ` + paymentColumns + ` FROM payments
          WHERE booking_id = ? AND status = 'PENDING'
          ORDER BY id DESC LIMIT 1 FOR UPDATE`
    p, err := scanPayment(tx.QueryRowContext(ctx, q, bookingID).Scan)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrPaymentNotFound
        }
        return nil, err
    }
    return p, nil
}

// GetByProviderRefTx resolves a payment by the provider-assigned
// reference, the correlation key carried by asynchronous callbacks.  The
// row is locked so duplicate callbacks serialize behind each other.
func (r *PaymentRepo) GetByProviderRefTx(ctx context.Context, tx *sql.Tx, providerRef string) (*model.Payment, error) {
    q := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_ref = ? FOR UPDATE`
    p, err := scanPayment(tx.QueryRowContext(ctx, q, providerRef).Scan)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrPaymentNotFound
        }
        return nil, err
    }
    return p, nil
}

// GetLatestByBookingTx is the fallback resolution path for callbacks that
// carry only a booking id.  Returns the most recent payment row, locked.
func (r *PaymentRepo) GetLatestByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (*model.Payment, error) {
    q := `SELECT ` + paymentColumns + ` FROM payments
          WHERE booking_id = ? ORDER BY id DESC LIMIT 1 FOR UPDATE`
    p, err := scanPayment(tx.QueryRowContext(ctx, q, bookingID).Scan)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrPaymentNotFound
        }
        return nil, err
    }
    return p, nil
}

// SetProviderTx records the chosen provider and its reference on the
// payment row.  Called when payment is initiated, regardless of whether
// the gateway accepted the request, so a later verify can correlate.
func (r *PaymentRepo) SetProviderTx(ctx context.Context, tx *sql.Tx, paymentID uint64, provider, providerRef string) error {
    const q = `UPDATE payments SET provider = ?, provider_ref = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
    _, err := tx.ExecContext(ctx, q, provider, providerRef, paymentID)
    return err
}

// UpdateStatusTx moves the payment to a terminal status within the
// provided transaction.
func (r *PaymentRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, paymentID uint64, status model.PaymentStatus) error {
    const q = `UPDATE payments SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
    _, err := tx.ExecContext(ctx, q, string(status), paymentID)
    return err
}

// ListByBooking returns all payment attempts for a booking, oldest first.
func (r *PaymentRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Payment, error) {
    q := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = ? ORDER BY id ASC`
    rows, err := r.db.QueryContext(ctx, q, bookingID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    payments := make([]model.Payment, 0)
    for rows.Next() {
        p, err := scanPayment(rows.Scan)
        if err != nil {
            return nil, err
        }
        payments = append(payments, *p)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return payments, nil
}
