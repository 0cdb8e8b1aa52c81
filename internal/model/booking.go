package model

import "time"

// BookingStatus enumerates the lifecycle states of a booking.  PENDING is
// the only non-terminal state: a booking leaves it exactly once, either
// through payment resolution (CONFIRMED/CANCELLED) or through the
// expiration sweeper (EXPIRED).
type BookingStatus string

const (
    BookingPending   BookingStatus = "PENDING"
    BookingConfirmed BookingStatus = "CONFIRMED"
    BookingCancelled BookingStatus = "CANCELLED"
    BookingExpired   BookingStatus = "EXPIRED"
)

// Booking records a guest's claim on a room for a date range.
//
// Fields:
//  ID              – primary key identifier.
//  GuestID         – guest who made the booking.
//  UserID          – authenticated user, when the request carried a token.
//  HotelID         – hotel the room belongs to.
//  RoomID          – room being booked.
//  CheckIn         – first night of the stay (date only, UTC).
//  CheckOut        – morning of departure; strictly after CheckIn.
//  Nights          – derived, max(1, CheckOut-CheckIn in days).
//  TotalAmountCents – Nights × nightly rate snapshotted at creation time.
//  Status          – lifecycle state (PENDING/CONFIRMED/CANCELLED/EXPIRED).
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Booking struct {
    ID               uint64        // bookings.id
    GuestID          uint64        // bookings.guest_id
    UserID           *uint64       // bookings.user_id (nullable)
    HotelID          uint64        // bookings.hotel_id
    RoomID           uint64        // bookings.room_id
    CheckIn          time.Time     // bookings.check_in
    CheckOut         time.Time     // bookings.check_out
    Nights           uint32        // bookings.nights
    TotalAmountCents uint64        // bookings.total_amount_cents
    Status           BookingStatus // bookings.status
    CreatedAt        time.Time     // bookings.created_at
    UpdatedAt        time.Time     // bookings.updated_at
}

// CanTransitionTo reports whether the booking may move to the target state.
// Every terminal state rejects further transitions; PENDING accepts all
// three outcomes.  No transition ever skips PENDING.
func (b *Booking) CanTransitionTo(target BookingStatus) bool {
    if b.Status != BookingPending {
        return false
    }
    switch target {
    case BookingConfirmed, BookingCancelled, BookingExpired:
        return true
    }
    return false
}

// NightsBetween computes the billable nights for a stay.  A same-day pair
// is invalid upstream; the max(1, days) floor covers sub-day rounding.
func NightsBetween(checkIn, checkOut time.Time) uint32 {
    days := int(checkOut.Sub(checkIn).Hours() / 24)
    if days < 1 {
        return 1
    }
    return uint32(days)
}

// TotalAmountCents multiplies the nightly rate by the night count.  The
// result is snapshotted on the booking and never recomputed afterwards,
// so later rate changes cannot alter an existing booking's price.
func TotalAmountCents(nights uint32, rateCents uint64) uint64 {
    return uint64(nights) * rateCents
}

// RangesOverlap reports whether two [checkIn, checkOut) intervals intersect.
// Checkout day equals checkin day of the next stay without conflict.
func RangesOverlap(aIn, aOut, bIn, bOut time.Time) bool {
    return aIn.Before(bOut) && bIn.Before(aOut)
}
