// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names used for the notification/analytics sink.
const (
    BookingCreatedQueue  = "booking.created"
    PaymentResolvedQueue = "payment.resolved"
)

// BookingCreatedEvent is published after a booking commits.  It carries
// enough for downstream consumers to notify or run analytics without
// querying the primary database.
type BookingCreatedEvent struct {
    BookingID        uint64 `json:"booking_id"`
    GuestName        string `json:"guest_name"`
    HotelName        string `json:"hotel_name"`
    RoomNumber       string `json:"room_number"`
    CheckIn          string `json:"check_in"`
    CheckOut         string `json:"check_out"`
    Nights           uint32 `json:"nights"`
    TotalAmountCents uint64 `json:"total_amount_cents"`
    CreatedAt        string `json:"created_at"`
}

// PaymentResolvedEvent is published when a payment reaches a terminal
// state and the booking is confirmed or cancelled.
type PaymentResolvedEvent struct {
    BookingID  uint64 `json:"booking_id"`
    PaymentID  uint64 `json:"payment_id"`
    Status     string `json:"status"`
    HotelName  string `json:"hotel_name,omitempty"`
    ResolvedAt string `json:"resolved_at"`
}
