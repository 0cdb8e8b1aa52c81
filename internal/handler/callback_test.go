package handler

import (
    "bytes"
    "crypto/hmac"
    "crypto/sha256"
    "database/sql"
    "encoding/hex"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/labstack/echo/v4"

    "github.com/habeshastay/booking-engine/internal/gateway"
    "github.com/habeshastay/booking-engine/internal/repository"
)

const testWebhookSecret = "sk_test_secret"

// mockEnv wires every repository onto one sqlmock database so handler
// tests exercise the real transaction flow end to end.
type mockEnv struct {
    mock     sqlmock.Sqlmock
    db       *sql.DB
    bookings *repository.BookingRepo
    payments *repository.PaymentRepo
    logs     *repository.PaymentLogRepo
    rooms    *repository.RoomRepo
    hotels   *repository.HotelRepo
    guests   *repository.GuestRepo
}

func newMockEnv(t *testing.T) *mockEnv {
    t.Helper()
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock: %v", err)
    }
    t.Cleanup(func() { _ = db.Close() })
    return &mockEnv{
        mock:     mock,
        db:       db,
        bookings: repository.NewBookingRepo(db),
        payments: repository.NewPaymentRepo(db),
        logs:     repository.NewPaymentLogRepo(db),
        rooms:    repository.NewRoomRepo(db),
        hotels:   repository.NewHotelRepo(db),
        guests:   repository.NewGuestRepo(db),
    }
}

func (e *mockEnv) paymentHandler(registry *gateway.Registry) *PaymentHandler {
    return NewPaymentHandler(e.bookings, e.payments, e.logs, e.rooms, registry, "ETB", "https://api.test/v1/payments/callback")
}

func chapaRegistry() *gateway.Registry {
    return gateway.NewRegistry(gateway.NewChapaGateway(gateway.ChapaConfig{SecretKey: testWebhookSecret}))
}

func signPayload(payload []byte) string {
    mac := hmac.New(sha256.New, []byte(testWebhookSecret))
    mac.Write(payload)
    return hex.EncodeToString(mac.Sum(nil))
}

func callbackRequest(payload []byte, signature string) (echo.Context, *httptest.ResponseRecorder) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback", bytes.NewReader(payload))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    req.Header.Set("X-Webhook-Signature", signature)
    rec := httptest.NewRecorder()
    return e.NewContext(req, rec), rec
}

func paymentRows(id, bookingID, amountCents int64, provider string, ref interface{}, status string) *sqlmock.Rows {
    now := time.Now()
    return sqlmock.NewRows([]string{"id", "booking_id", "amount_cents", "provider", "provider_ref", "status", "created_at", "updated_at"}).
        AddRow(id, bookingID, amountCents, provider, ref, status, now, now)
}

func bookingRows(id, guestID, hotelID, roomID int64, status string) *sqlmock.Rows {
    now := time.Now()
    checkIn := time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC)
    checkOut := time.Date(2027, 1, 12, 0, 0, 0, 0, time.UTC)
    return sqlmock.NewRows([]string{"id", "guest_id", "user_id", "hotel_id", "room_id", "check_in", "check_out",
        "nights", "total_amount_cents", "status", "created_at", "updated_at"}).
        AddRow(id, guestID, nil, hotelID, roomID, checkIn, checkOut, 2, 400000, status, now, now)
}

func TestHandleCallbackSuccessConfirmsBooking(t *testing.T) {
    env := newMockEnv(t)
    h := env.paymentHandler(chapaRegistry())

    payload := []byte(`{"tx_ref":"CHAPA_1_abc","status":"success","amount":"4000.00","transaction_id":"TX99"}`)

    env.mock.ExpectBegin()
    env.mock.ExpectQuery("FROM payments WHERE provider_ref").WithArgs("CHAPA_1_abc").
        WillReturnRows(paymentRows(9, 5, 400000, "chapa", "CHAPA_1_abc", "PENDING"))
    env.mock.ExpectQuery("FROM bookings WHERE id").WithArgs(5).
        WillReturnRows(bookingRows(5, 3, 1, 2, "PENDING"))
    env.mock.ExpectExec("UPDATE payments SET status").WithArgs("SUCCESS", 9).
        WillReturnResult(sqlmock.NewResult(0, 1))
    env.mock.ExpectExec("UPDATE bookings SET status").WithArgs("CONFIRMED", 5).
        WillReturnResult(sqlmock.NewResult(0, 1))
    env.mock.ExpectExec("INSERT INTO payment_logs").WithArgs(9, 5, "PAYMENT_SUCCESS", sqlmock.AnyArg()).
        WillReturnResult(sqlmock.NewResult(1, 1))
    env.mock.ExpectCommit()
    // receipt projection is best-effort; failing it keeps the test focused
    // on the committed state change
    env.mock.ExpectQuery("JOIN guests").WillReturnError(sql.ErrNoRows)

    c, rec := callbackRequest(payload, signPayload(payload))
    if err := h.HandleCallback(c); err != nil {
        t.Fatalf("HandleCallback: %v", err)
    }
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
    }
    var resp map[string]interface{}
    if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
        t.Fatalf("decode response: %v", err)
    }
    if resp["confirmation_code"] == "" || resp["confirmation_code"] == nil {
        t.Error("response is missing the confirmation code")
    }
    if err := env.mock.ExpectationsWereMet(); err != nil {
        t.Errorf("unmet expectations: %v", err)
    }
}

func TestHandleCallbackFailureCancelsBookingAndReleasesRoom(t *testing.T) {
    env := newMockEnv(t)
    h := env.paymentHandler(chapaRegistry())

    payload := []byte(`{"tx_ref":"CHAPA_2_def","status":"failed","amount":"4000.00","error_message":"insufficient funds"}`)

    env.mock.ExpectBegin()
    env.mock.ExpectQuery("FROM payments WHERE provider_ref").WithArgs("CHAPA_2_def").
        WillReturnRows(paymentRows(9, 5, 400000, "chapa", "CHAPA_2_def", "PENDING"))
    env.mock.ExpectQuery("FROM bookings WHERE id").WithArgs(5).
        WillReturnRows(bookingRows(5, 3, 1, 2, "PENDING"))
    env.mock.ExpectExec("UPDATE payments SET status").WithArgs("FAILED", 9).
        WillReturnResult(sqlmock.NewResult(0, 1))
    env.mock.ExpectExec("UPDATE bookings SET status").WithArgs("CANCELLED", 5).
        WillReturnResult(sqlmock.NewResult(0, 1))
    env.mock.ExpectExec("UPDATE rooms SET status").WithArgs("AVAILABLE", 2).
        WillReturnResult(sqlmock.NewResult(0, 1))
    env.mock.ExpectExec("INSERT INTO payment_logs").WithArgs(9, 5, "PAYMENT_FAILED", sqlmock.AnyArg()).
        WillReturnResult(sqlmock.NewResult(1, 1))
    env.mock.ExpectCommit()

    c, rec := callbackRequest(payload, signPayload(payload))
    if err := h.HandleCallback(c); err != nil {
        t.Fatalf("HandleCallback: %v", err)
    }
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
    }
    var resp map[string]interface{}
    if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
        t.Fatalf("decode response: %v", err)
    }
    if resp["booking_status"] != "CANCELLED" || resp["payment_status"] != "FAILED" {
        t.Errorf("response = %v, want booking CANCELLED / payment FAILED", resp)
    }
    if err := env.mock.ExpectationsWereMet(); err != nil {
        t.Errorf("unmet expectations: %v", err)
    }
}

func TestHandleCallbackAmountMismatchRejectedWithoutStateChange(t *testing.T) {
    env := newMockEnv(t)
    h := env.paymentHandler(chapaRegistry())

    // tampered amount: stored 4000.00, callback claims 1.00
    payload := []byte(`{"tx_ref":"CHAPA_3_ghi","status":"success","amount":"1.00"}`)

    env.mock.ExpectBegin()
    env.mock.ExpectQuery("FROM payments WHERE provider_ref").WithArgs("CHAPA_3_ghi").
        WillReturnRows(paymentRows(9, 5, 400000, "chapa", "CHAPA_3_ghi", "PENDING"))
    // the only write is the audit entry; no booking, payment or room update
    env.mock.ExpectExec("INSERT INTO payment_logs").WithArgs(9, 5, "PAYMENT_MISMATCH", sqlmock.AnyArg()).
        WillReturnResult(sqlmock.NewResult(1, 1))
    env.mock.ExpectCommit()

    c, rec := callbackRequest(payload, signPayload(payload))
    if err := h.HandleCallback(c); err != nil {
        t.Fatalf("HandleCallback: %v", err)
    }
    if rec.Code != http.StatusUnprocessableEntity {
        t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusUnprocessableEntity, rec.Body.String())
    }
    if err := env.mock.ExpectationsWereMet(); err != nil {
        t.Errorf("unmet expectations: %v", err)
    }
}

func TestHandleCallbackDuplicateIsNoOpAck(t *testing.T) {
    env := newMockEnv(t)
    h := env.paymentHandler(chapaRegistry())

    payload := []byte(`{"tx_ref":"CHAPA_4_jkl","status":"success","amount":"4000.00"}`)

    env.mock.ExpectBegin()
    env.mock.ExpectQuery("FROM payments WHERE provider_ref").WithArgs("CHAPA_4_jkl").
        WillReturnRows(paymentRows(9, 5, 400000, "chapa", "CHAPA_4_jkl", "SUCCESS"))
    // already terminal: no writes, the open transaction is rolled back
    env.mock.ExpectRollback()

    c, rec := callbackRequest(payload, signPayload(payload))
    if err := h.HandleCallback(c); err != nil {
        t.Fatalf("HandleCallback: %v", err)
    }
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
    }
    var resp map[string]interface{}
    if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
        t.Fatalf("decode response: %v", err)
    }
    if resp["acknowledged"] != true {
        t.Errorf("response = %v, want acknowledged=true", resp)
    }
    if err := env.mock.ExpectationsWereMet(); err != nil {
        t.Errorf("unmet expectations: %v", err)
    }
}

func TestHandleCallbackBadSignatureRejected(t *testing.T) {
    env := newMockEnv(t)
    h := env.paymentHandler(chapaRegistry())

    payload := []byte(`{"tx_ref":"CHAPA_5_mno","status":"success","amount":"4000.00"}`)

    env.mock.ExpectBegin()
    env.mock.ExpectQuery("FROM payments WHERE provider_ref").WithArgs("CHAPA_5_mno").
        WillReturnRows(paymentRows(9, 5, 400000, "chapa", "CHAPA_5_mno", "PENDING"))
    env.mock.ExpectRollback()

    c, rec := callbackRequest(payload, "deadbeef")
    if err := h.HandleCallback(c); err != nil {
        t.Fatalf("HandleCallback: %v", err)
    }
    if rec.Code != http.StatusBadRequest {
        t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
    }
    if err := env.mock.ExpectationsWereMet(); err != nil {
        t.Errorf("unmet expectations: %v", err)
    }
}

// The transaction reference must be on the payment row before the
// provider is contacted, so a callback racing the audit write can still
// correlate by reference.
func TestInitiatePaymentPersistsReferenceBeforeGatewayCall(t *testing.T) {
    env := newMockEnv(t)

    var gotRef string
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        // every expectation registered so far covers the first
        // transaction; all of them must already be satisfied here
        if err := env.mock.ExpectationsWereMet(); err != nil {
            t.Errorf("reference not persisted before the gateway call: %v", err)
        }
        var body map[string]string
        _ = json.NewDecoder(r.Body).Decode(&body)
        gotRef = body["tx_ref"]

        env.mock.ExpectBegin()
        env.mock.ExpectExec("INSERT INTO payment_logs").WithArgs(9, 5, "PAYMENT_INITIATED", sqlmock.AnyArg()).
            WillReturnResult(sqlmock.NewResult(1, 1))
        env.mock.ExpectCommit()

        _ = json.NewEncoder(w).Encode(map[string]interface{}{
            "status": "success",
            "data":   map[string]string{"checkout_url": "https://checkout.test/pay"},
        })
    }))
    defer srv.Close()

    registry := gateway.NewRegistry(gateway.NewChapaGateway(gateway.ChapaConfig{
        BaseURL:   srv.URL,
        SecretKey: testWebhookSecret,
    }))
    h := env.paymentHandler(registry)

    env.mock.ExpectBegin()
    env.mock.ExpectQuery("FROM bookings WHERE id").WithArgs(5).
        WillReturnRows(bookingRows(5, 3, 1, 2, "PENDING"))
    env.mock.ExpectQuery("FROM payments").WithArgs(5).
        WillReturnRows(paymentRows(9, 5, 400000, "NONE", nil, "PENDING"))
    env.mock.ExpectExec("UPDATE payments SET provider").WithArgs("chapa", sqlmock.AnyArg(), 9).
        WillReturnResult(sqlmock.NewResult(0, 1))
    env.mock.ExpectCommit()
    // payer lookup between commit and gateway call is best-effort
    env.mock.ExpectQuery("JOIN guests").WillReturnError(sql.ErrNoRows)

    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/payments/initiate",
        bytes.NewReader([]byte(`{"booking_id":5,"provider":"chapa"}`)))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    rec := httptest.NewRecorder()

    if err := h.InitiatePayment(e.NewContext(req, rec)); err != nil {
        t.Fatalf("InitiatePayment: %v", err)
    }
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
    }
    if gotRef == "" {
        t.Fatal("gateway never received a transaction reference")
    }
    var resp map[string]interface{}
    if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
        t.Fatalf("decode response: %v", err)
    }
    if resp["provider_ref"] != gotRef {
        t.Errorf("response provider_ref = %v, gateway saw %q", resp["provider_ref"], gotRef)
    }
    if err := env.mock.ExpectationsWereMet(); err != nil {
        t.Errorf("unmet expectations: %v", err)
    }
}
