package handler

import (
    "errors"
    "log"
    "net/http"
    "strconv"
    "time"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"

    "github.com/habeshastay/booking-engine/internal/middleware"
    "github.com/habeshastay/booking-engine/internal/model"
    "github.com/habeshastay/booking-engine/internal/queue"
    "github.com/habeshastay/booking-engine/internal/repository"
    queue_publisher "github.com/habeshastay/booking-engine/internal/service"
)

// BookingHandler is the booking guard: it atomically validates and
// creates bookings and is the sole gate against double-booking.  The
// room row is locked before the conflict check so two concurrent
// requests for overlapping dates on the same room cannot both commit.
type BookingHandler struct {
    BookingRepo *repository.BookingRepo
    PaymentRepo *repository.PaymentRepo
    LogRepo     *repository.PaymentLogRepo
    RoomRepo    *repository.RoomRepo
    HotelRepo   *repository.HotelRepo
    GuestRepo   *repository.GuestRepo

    validate *validator.Validate
}

// NewBookingHandler constructs a BookingHandler with the provided
// repositories.  All dependencies must be non-nil.
func NewBookingHandler(bookingRepo *repository.BookingRepo, paymentRepo *repository.PaymentRepo, logRepo *repository.PaymentLogRepo, roomRepo *repository.RoomRepo, hotelRepo *repository.HotelRepo, guestRepo *repository.GuestRepo) *BookingHandler {
    if bookingRepo == nil || paymentRepo == nil || logRepo == nil || roomRepo == nil || hotelRepo == nil || guestRepo == nil {
        panic("nil repository passed to NewBookingHandler")
    }
    return &BookingHandler{
        BookingRepo: bookingRepo,
        PaymentRepo: paymentRepo,
        LogRepo:     logRepo,
        RoomRepo:    roomRepo,
        HotelRepo:   hotelRepo,
        GuestRepo:   guestRepo,
        validate:    validator.New(),
    }
}

// createBookingRequest is the body of POST /v1/bookings.
type createBookingRequest struct {
    GuestName    string `json:"guest_name" validate:"required,min=2"`
    GuestContact string `json:"guest_contact" validate:"required,min=5"`
    HotelID      uint64 `json:"hotel_id" validate:"required,gt=0"`
    RoomID       uint64 `json:"room_id" validate:"required,gt=0"`
    CheckIn      string `json:"check_in" validate:"required"`
    CheckOut     string `json:"check_out" validate:"required"`
}

const dateLayout = "2006-01-02"

// parseStayDates validates and parses the requested date range.  Dates
// must parse as YYYY-MM-DD, checkout must be after checkin and checkin
// must not be strictly in the past (same-day checkin is allowed).
func parseStayDates(checkIn, checkOut string, now time.Time) (time.Time, time.Time, error) {
    in, err := time.Parse(dateLayout, checkIn)
    if err != nil {
        return time.Time{}, time.Time{}, errors.New("check_in must be a YYYY-MM-DD date")
    }
    out, err := time.Parse(dateLayout, checkOut)
    if err != nil {
        return time.Time{}, time.Time{}, errors.New("check_out must be a YYYY-MM-DD date")
    }
    if !out.After(in) {
        return time.Time{}, time.Time{}, errors.New("check_out must be after check_in")
    }
    today := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
    if in.Before(today) {
        return time.Time{}, time.Time{}, errors.New("check_in must not be in the past")
    }
    return in, out, nil
}

// CreateBooking handles POST /v1/bookings.  Inside one transaction it
// locks the room row, verifies the hotel is active, the room belongs to
// it and is AVAILABLE, checks for overlapping PENDING/CONFIRMED bookings
// and duplicate submissions, then creates the booking (PENDING) with its
// companion payment row, audit entry and room lock.  Notification side
// effects fire only after commit and never affect the response.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
    var body createBookingRequest
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body", "kind": "validation_failed"})
    }
    if err := h.validate.Struct(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "kind": "validation_failed"})
    }
    checkIn, checkOut, err := parseStayDates(body.CheckIn, body.CheckOut, time.Now())
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "kind": "validation_failed"})
    }

    ctx := c.Request().Context()
    tx, err := h.BookingRepo.DB().BeginTx(ctx, nil)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction", "kind": "internal"})
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    hotel, err := h.HotelRepo.GetActiveTx(ctx, tx, body.HotelID)
    if err != nil {
        if errors.Is(err, repository.ErrHotelNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "hotel not found", "kind": "not_found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    // The FOR UPDATE lock taken here serializes every concurrent booking
    // attempt on this room until commit.
    room, err := h.RoomRepo.GetForUpdateTx(ctx, tx, body.RoomID, hotel.ID)
    if err != nil {
        if errors.Is(err, repository.ErrRoomNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found", "kind": "not_found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    if room.Status != model.RoomAvailable {
        return c.JSON(http.StatusConflict, echo.Map{"error": "room is not available", "kind": "room_unavailable"})
    }
    overlap, err := h.BookingRepo.HasOverlapTx(ctx, tx, room.ID, checkIn, checkOut)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    if overlap {
        return c.JSON(http.StatusConflict, echo.Map{"error": "room already booked for the requested dates", "kind": "room_unavailable"})
    }
    guest, err := h.GuestRepo.ResolveTx(ctx, tx, body.GuestName, body.GuestContact)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    dup, err := h.BookingRepo.HasDuplicateTx(ctx, tx, guest.ID, room.ID, checkIn, checkOut)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    if dup {
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "an active booking for these dates already exists", "kind": "duplicate_request"})
    }

    nights := model.NightsBetween(checkIn, checkOut)
    booking := &model.Booking{
        GuestID:          guest.ID,
        HotelID:          hotel.ID,
        RoomID:           room.ID,
        CheckIn:          checkIn,
        CheckOut:         checkOut,
        Nights:           nights,
        TotalAmountCents: model.TotalAmountCents(nights, room.RateCentsNight),
        Status:           model.BookingPending,
    }
    if uid, ok := middleware.UserID(c); ok {
        booking.UserID = &uid
    }
    if err := h.BookingRepo.CreateTx(ctx, tx, booking); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create booking", "kind": "internal"})
    }
    payment := &model.Payment{
        BookingID:   booking.ID,
        AmountCents: booking.TotalAmountCents,
        Provider:    model.ProviderNone,
        Status:      model.PaymentPending,
    }
    if err := h.PaymentRepo.CreateTx(ctx, tx, payment); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create payment", "kind": "internal"})
    }
    if err := h.LogRepo.AppendTx(ctx, tx, payment.ID, booking.ID, model.LogBookingCreated,
        "booking created, room "+room.Number+" locked pending payment"); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to write audit log", "kind": "internal"})
    }
    if err := h.RoomRepo.UpdateStatusTx(ctx, tx, room.ID, model.RoomOccupied); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to lock room", "kind": "internal"})
    }
    if err := tx.Commit(); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit transaction", "kind": "internal"})
    }
    committed = true

    // fire-and-forget; failures are logged inside the publisher
    go func(ev queue.BookingCreatedEvent) {
        if err := queue_publisher.PublishBookingCreated(ev); err != nil {
            log.Printf("booking-created event publish failed: %v", err)
        }
    }(queue.BookingCreatedEvent{
        BookingID:        booking.ID,
        GuestName:        guest.Name,
        HotelName:        hotel.Name,
        RoomNumber:       room.Number,
        CheckIn:          checkIn.Format(dateLayout),
        CheckOut:         checkOut.Format(dateLayout),
        Nights:           nights,
        TotalAmountCents: booking.TotalAmountCents,
        CreatedAt:        booking.CreatedAt.UTC().Format(time.RFC3339),
    })

    return c.JSON(http.StatusCreated, echo.Map{
        "booking": echo.Map{
            "id":                 booking.ID,
            "guest_id":           guest.ID,
            "hotel_id":           hotel.ID,
            "room_id":            room.ID,
            "check_in":           body.CheckIn,
            "check_out":          body.CheckOut,
            "nights":             nights,
            "total_amount_cents": booking.TotalAmountCents,
            "status":             booking.Status,
        },
        "payment": echo.Map{
            "id":     payment.ID,
            "status": payment.Status,
        },
        "next": "POST /v1/payments/initiate with booking_id and provider to pay",
    })
}

// GetBooking handles GET /v1/bookings/:id.  It returns the booking with
// its guest, hotel, room and full payment history.
func (h *BookingHandler) GetBooking(c echo.Context) error {
    bookingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || bookingID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id", "kind": "validation_failed"})
    }
    ctx := c.Request().Context()
    det, err := h.BookingRepo.GetDetail(ctx, bookingID)
    if err != nil {
        if errors.Is(err, repository.ErrBookingNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found", "kind": "not_found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    payments, err := h.PaymentRepo.ListByBooking(ctx, bookingID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "booking": echo.Map{
            "id":                 det.Booking.ID,
            "check_in":           det.Booking.CheckIn.Format(dateLayout),
            "check_out":          det.Booking.CheckOut.Format(dateLayout),
            "nights":             det.Booking.Nights,
            "total_amount_cents": det.Booking.TotalAmountCents,
            "status":             det.Booking.Status,
            "created_at":         det.Booking.CreatedAt.UTC().Format(time.RFC3339),
        },
        "guest": echo.Map{"id": det.Guest.ID, "name": det.Guest.Name, "contact": det.Guest.Contact},
        "hotel": echo.Map{"id": det.Hotel.ID, "name": det.Hotel.Name, "city": det.Hotel.City},
        "room": echo.Map{
            "id":               det.Room.ID,
            "number":           det.Room.Number,
            "room_type":        det.Room.RoomType,
            "rate_cents_night": det.Room.RateCentsNight,
            "status":           det.Room.Status,
        },
        "payments": paymentListJSON(payments),
    })
}

// paymentListJSON renders payment attempts for the read endpoints.
func paymentListJSON(payments []model.Payment) []echo.Map {
    out := make([]echo.Map, 0, len(payments))
    for _, p := range payments {
        m := echo.Map{
            "id":           p.ID,
            "amount_cents": p.AmountCents,
            "provider":     p.Provider,
            "status":       p.Status,
            "created_at":   p.CreatedAt.UTC().Format(time.RFC3339),
        }
        if p.ProviderRef != nil {
            m["provider_ref"] = *p.ProviderRef
        }
        out = append(out, m)
    }
    return out
}
