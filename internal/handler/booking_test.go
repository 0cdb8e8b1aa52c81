package handler

import (
    "bytes"
    "database/sql"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/labstack/echo/v4"
)

func (e *mockEnv) bookingHandler() *BookingHandler {
    return NewBookingHandler(e.bookings, e.payments, e.logs, e.rooms, e.hotels, e.guests)
}

func createBookingContext(body string) (echo.Context, *httptest.ResponseRecorder) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/bookings", bytes.NewReader([]byte(body)))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    rec := httptest.NewRecorder()
    return e.NewContext(req, rec), rec
}

func hotelRows(id int64, active bool) *sqlmock.Rows {
    return sqlmock.NewRows([]string{"id", "name", "city", "is_active", "created_at"}).
        AddRow(id, "Skylight", "Addis Ababa", active, time.Now())
}

func roomRows(id, hotelID, rateCents int64, status string) *sqlmock.Rows {
    now := time.Now()
    return sqlmock.NewRows([]string{"id", "hotel_id", "number", "room_type", "rate_cents_night", "status", "created_at", "updated_at"}).
        AddRow(id, hotelID, "101", "DELUXE", rateCents, status, now, now)
}

func countRows(n int) *sqlmock.Rows {
    return sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(n)
}

func timestampRows() *sqlmock.Rows {
    now := time.Now()
    return sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now)
}

const bookingBody = `{"guest_name":"Abebe Bikila","guest_contact":"+251911000000","hotel_id":1,"room_id":2,"check_in":"2027-01-10","check_out":"2027-01-12"}`

func TestCreateBookingCommitsBookingPaymentAndRoomLock(t *testing.T) {
    env := newMockEnv(t)
    h := env.bookingHandler()

    env.mock.ExpectBegin()
    env.mock.ExpectQuery("FROM hotels WHERE id").WithArgs(1).WillReturnRows(hotelRows(1, true))
    env.mock.ExpectQuery("FROM rooms WHERE id").WithArgs(2).WillReturnRows(roomRows(2, 1, 200000, "AVAILABLE"))
    env.mock.ExpectQuery("SELECT COUNT").WithArgs(2, "2027-01-12", "2027-01-10").WillReturnRows(countRows(0))
    env.mock.ExpectQuery("FROM guests WHERE contact").WithArgs("+251911000000").WillReturnError(sql.ErrNoRows)
    env.mock.ExpectExec("INSERT INTO guests").WithArgs("Abebe Bikila", "+251911000000").
        WillReturnResult(sqlmock.NewResult(3, 1))
    env.mock.ExpectQuery("SELECT COUNT").WithArgs(3, 2, "2027-01-10", "2027-01-12").WillReturnRows(countRows(0))
    env.mock.ExpectExec("INSERT INTO bookings").
        WithArgs(3, nil, 1, 2, "2027-01-10", "2027-01-12", 2, 400000, "PENDING").
        WillReturnResult(sqlmock.NewResult(7, 1))
    env.mock.ExpectQuery("SELECT created_at, updated_at FROM bookings WHERE id").WithArgs(7).
        WillReturnRows(timestampRows())
    env.mock.ExpectExec("INSERT INTO payments").WithArgs(7, 400000, "NONE", nil, "PENDING").
        WillReturnResult(sqlmock.NewResult(9, 1))
    env.mock.ExpectQuery("SELECT created_at, updated_at FROM payments WHERE id").WithArgs(9).
        WillReturnRows(timestampRows())
    env.mock.ExpectExec("INSERT INTO payment_logs").WithArgs(9, 7, "BOOKING_CREATED", sqlmock.AnyArg()).
        WillReturnResult(sqlmock.NewResult(1, 1))
    env.mock.ExpectExec("UPDATE rooms SET status").WithArgs("OCCUPIED", 2).
        WillReturnResult(sqlmock.NewResult(0, 1))
    env.mock.ExpectCommit()

    c, rec := createBookingContext(bookingBody)
    if err := h.CreateBooking(c); err != nil {
        t.Fatalf("CreateBooking: %v", err)
    }
    if rec.Code != http.StatusCreated {
        t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
    }
    var resp struct {
        Booking struct {
            ID               uint64 `json:"id"`
            TotalAmountCents uint64 `json:"total_amount_cents"`
            Status           string `json:"status"`
        } `json:"booking"`
        Payment struct {
            ID     uint64 `json:"id"`
            Status string `json:"status"`
        } `json:"payment"`
    }
    if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
        t.Fatalf("decode response: %v", err)
    }
    if resp.Booking.ID != 7 || resp.Booking.Status != "PENDING" || resp.Booking.TotalAmountCents != 400000 {
        t.Errorf("booking = %+v, want id 7 PENDING 400000 cents", resp.Booking)
    }
    if resp.Payment.ID != 9 || resp.Payment.Status != "PENDING" {
        t.Errorf("payment = %+v, want id 9 PENDING", resp.Payment)
    }
    if err := env.mock.ExpectationsWereMet(); err != nil {
        t.Errorf("unmet expectations: %v", err)
    }
}

// Two attempts on the same room serialize on the row lock; the loser
// sees the winner's overlapping PENDING booking and must not write.
func TestCreateBookingRejectsOverlapWithoutWriting(t *testing.T) {
    env := newMockEnv(t)
    h := env.bookingHandler()

    env.mock.ExpectBegin()
    env.mock.ExpectQuery("FROM hotels WHERE id").WithArgs(1).WillReturnRows(hotelRows(1, true))
    env.mock.ExpectQuery("FROM rooms WHERE id").WithArgs(2).WillReturnRows(roomRows(2, 1, 200000, "AVAILABLE"))
    env.mock.ExpectQuery("SELECT COUNT").WithArgs(2, "2027-01-12", "2027-01-10").WillReturnRows(countRows(1))
    env.mock.ExpectRollback()

    c, rec := createBookingContext(bookingBody)
    if err := h.CreateBooking(c); err != nil {
        t.Fatalf("CreateBooking: %v", err)
    }
    if rec.Code != http.StatusConflict {
        t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusConflict, rec.Body.String())
    }
    var resp map[string]interface{}
    if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
        t.Fatalf("decode response: %v", err)
    }
    if resp["kind"] != "room_unavailable" {
        t.Errorf("kind = %v, want room_unavailable", resp["kind"])
    }
    // every registered expectation was consumed, so no insert or update
    // ran before the rollback
    if err := env.mock.ExpectationsWereMet(); err != nil {
        t.Errorf("unmet expectations: %v", err)
    }
}

func TestCreateBookingRejectsHeldRoom(t *testing.T) {
    env := newMockEnv(t)
    h := env.bookingHandler()

    env.mock.ExpectBegin()
    env.mock.ExpectQuery("FROM hotels WHERE id").WithArgs(1).WillReturnRows(hotelRows(1, true))
    env.mock.ExpectQuery("FROM rooms WHERE id").WithArgs(2).WillReturnRows(roomRows(2, 1, 200000, "OCCUPIED"))
    env.mock.ExpectRollback()

    c, rec := createBookingContext(bookingBody)
    if err := h.CreateBooking(c); err != nil {
        t.Fatalf("CreateBooking: %v", err)
    }
    if rec.Code != http.StatusConflict {
        t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusConflict, rec.Body.String())
    }
    if err := env.mock.ExpectationsWereMet(); err != nil {
        t.Errorf("unmet expectations: %v", err)
    }
}

func TestCreateBookingRejectsDuplicateSubmission(t *testing.T) {
    env := newMockEnv(t)
    h := env.bookingHandler()

    env.mock.ExpectBegin()
    env.mock.ExpectQuery("FROM hotels WHERE id").WithArgs(1).WillReturnRows(hotelRows(1, true))
    env.mock.ExpectQuery("FROM rooms WHERE id").WithArgs(2).WillReturnRows(roomRows(2, 1, 200000, "AVAILABLE"))
    env.mock.ExpectQuery("SELECT COUNT").WithArgs(2, "2027-01-12", "2027-01-10").WillReturnRows(countRows(0))
    env.mock.ExpectQuery("FROM guests WHERE contact").WithArgs("+251911000000").WillReturnRows(
        sqlmock.NewRows([]string{"id", "name", "contact", "created_at"}).
            AddRow(3, "Abebe Bikila", "+251911000000", time.Now()))
    env.mock.ExpectQuery("SELECT COUNT").WithArgs(3, 2, "2027-01-10", "2027-01-12").WillReturnRows(countRows(1))
    env.mock.ExpectRollback()

    c, rec := createBookingContext(bookingBody)
    if err := h.CreateBooking(c); err != nil {
        t.Fatalf("CreateBooking: %v", err)
    }
    if rec.Code != http.StatusUnprocessableEntity {
        t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusUnprocessableEntity, rec.Body.String())
    }
    if err := env.mock.ExpectationsWereMet(); err != nil {
        t.Errorf("unmet expectations: %v", err)
    }
}
