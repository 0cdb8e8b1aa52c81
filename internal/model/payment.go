package model

import "time"

// PaymentStatus enumerates settlement attempt states.  SUCCESS and FAILED
// are terminal; a payment transitions out of PENDING exactly once.
type PaymentStatus string

const (
    PaymentPending PaymentStatus = "PENDING"
    PaymentSuccess PaymentStatus = "SUCCESS"
    PaymentFailed  PaymentStatus = "FAILED"
)

// Payment represents one settlement attempt for a booking.  The amount is
// copied from the booking at creation and must match on reconciliation; a
// mismatch is rejected, never silently accepted.
//
// Fields:
//  ID           – primary key identifier.
//  BookingID    – booking being settled.
//  AmountCents  – copy of the booking's total at initiation time.
//  Provider     – gateway identifier, "NONE" until payment is initiated.
//  ProviderRef  – provider-scoped transaction reference used to correlate
//                 asynchronous callbacks; nullable until initiation.
//  Status       – PENDING/SUCCESS/FAILED.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type Payment struct {
    ID          uint64        // payments.id
    BookingID   uint64        // payments.booking_id
    AmountCents uint64        // payments.amount_cents
    Provider    string        // payments.provider
    ProviderRef *string       // payments.provider_ref (nullable)
    Status      PaymentStatus // payments.status
    CreatedAt   time.Time     // payments.created_at
    UpdatedAt   time.Time     // payments.updated_at
}

// Terminal reports whether the payment has already been resolved.  Callbacks
// for terminal payments are acknowledged without reprocessing.
func (p *Payment) Terminal() bool {
    return p.Status == PaymentSuccess || p.Status == PaymentFailed
}

// ProviderNone is the placeholder stored on the payment row created together
// with the booking, before the client picks a gateway.
const ProviderNone = "NONE"

// PaymentLog is an append-only audit entry tied to a payment and its
// booking.  Rows are never updated or deleted; they exist purely for
// diagnosing the asynchronous multi-party payment flow.
type PaymentLog struct {
    ID        uint64    // payment_logs.id
    PaymentID uint64    // payment_logs.payment_id
    BookingID uint64    // payment_logs.booking_id
    Action    string    // payment_logs.action
    Detail    string    // payment_logs.detail
    CreatedAt time.Time // payment_logs.created_at
}

// Audit action labels written to payment_logs.
const (
    LogBookingCreated   = "BOOKING_CREATED"
    LogPaymentInitiated = "PAYMENT_INITIATED"
    LogPaymentSuccess   = "PAYMENT_SUCCESS"
    LogPaymentFailed    = "PAYMENT_FAILED"
    LogPaymentMismatch  = "PAYMENT_MISMATCH"
    LogBookingExpired   = "BOOKING_EXPIRED"
)
