package model

import "time"

// RoomStatus is the inventory state the booking core flips between
// AVAILABLE and OCCUPIED.  Other statuses (e.g. MAINTENANCE) belong to the
// catalog service and are treated as not bookable.
type RoomStatus string

const (
    RoomAvailable   RoomStatus = "AVAILABLE"
    RoomOccupied    RoomStatus = "OCCUPIED"
    RoomMaintenance RoomStatus = "MAINTENANCE"
)

// Room is catalog-owned inventory.  The booking core reads its rate and
// hotel association and writes only its status.
type Room struct {
    ID             uint64     // rooms.id
    HotelID        uint64     // rooms.hotel_id
    Number         string     // rooms.number
    RoomType       string     // rooms.room_type
    RateCentsNight uint64     // rooms.rate_cents_night
    Status         RoomStatus // rooms.status
    CreatedAt      time.Time  // rooms.created_at
    UpdatedAt      time.Time  // rooms.updated_at
}

// Hotel is catalog-owned.  Only existence and the active flag are consulted
// by the booking core.
type Hotel struct {
    ID        uint64    // hotels.id
    Name      string    // hotels.name
    City      string    // hotels.city
    IsActive  bool      // hotels.is_active
    CreatedAt time.Time // hotels.created_at
}

// Guest is the lightweight identity a booking is attached to.  Guests are
// resolved by contact and created on the fly when absent; full user/account
// management lives in the identity service.
type Guest struct {
    ID        uint64    // guests.id
    Name      string    // guests.name
    Contact   string    // guests.contact (unique)
    CreatedAt time.Time // guests.created_at
}
