// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios and map
// them onto the HTTP error taxonomy: not-found conditions become 404,
// ErrRoomUnavailable and ErrDuplicateBooking become 409/422, and
// ErrInvalidBookingState / ErrAmountMismatch become 422.
package repository

import "errors"

// ErrHotelNotFound indicates the referenced hotel does not exist or is
// not active.
var ErrHotelNotFound = errors.New("hotel not found")

// ErrRoomNotFound indicates the referenced room does not exist or does
// not belong to the requested hotel.
var ErrRoomNotFound = errors.New("room not found")

// ErrRoomUnavailable indicates the room is not AVAILABLE or an
// overlapping PENDING/CONFIRMED booking already claims the date range.
var ErrRoomUnavailable = errors.New("room unavailable")

// ErrDuplicateBooking indicates the same guest already holds an active
// booking for the same room and exact dates.  It guards against double
// submits of the same request.
var ErrDuplicateBooking = errors.New("duplicate booking request")

// ErrBookingNotFound indicates no booking matches the identifier.
var ErrBookingNotFound = errors.New("booking not found")

// ErrPaymentNotFound indicates no payment matches the identifier, booking
// or provider reference used to resolve it.
var ErrPaymentNotFound = errors.New("payment not found")

// ErrInvalidBookingState indicates an operation required the booking to
// be PENDING but it has already reached a terminal state.
var ErrInvalidBookingState = errors.New("invalid booking state")

// ErrAmountMismatch indicates a provider callback reported an amount
// different from the stored payment amount.  The transaction is rejected
// without mutating state.
var ErrAmountMismatch = errors.New("payment amount mismatch")
