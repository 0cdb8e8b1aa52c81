package handler

import (
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "log"
    "net/http"
    "strconv"
    "sync"
    "time"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"

    "github.com/habeshastay/booking-engine/internal/gateway"
    "github.com/habeshastay/booking-engine/internal/model"
    "github.com/habeshastay/booking-engine/internal/queue"
    "github.com/habeshastay/booking-engine/internal/repository"
    queue_publisher "github.com/habeshastay/booking-engine/internal/service"
)

// PaymentHandler drives a PENDING booking to CONFIRMED or CANCELLED by
// brokering between storage and the gateway registry.  It never branches
// on provider identity outside the registry lookup.
type PaymentHandler struct {
    BookingRepo *repository.BookingRepo
    PaymentRepo *repository.PaymentRepo
    LogRepo     *repository.PaymentLogRepo
    RoomRepo    *repository.RoomRepo
    Registry    *gateway.Registry

    Currency    string
    CallbackURL string

    validate *validator.Validate

    // one lock per booking id, held across the whole initiate flow so a
    // concurrent initiate cannot overwrite the reference of a gateway
    // session that is still in flight
    initiateLocks sync.Map
}

// NewPaymentHandler constructs a PaymentHandler.  All dependencies must
// be non-nil.
func NewPaymentHandler(bookingRepo *repository.BookingRepo, paymentRepo *repository.PaymentRepo, logRepo *repository.PaymentLogRepo, roomRepo *repository.RoomRepo, registry *gateway.Registry, currency, callbackURL string) *PaymentHandler {
    if bookingRepo == nil || paymentRepo == nil || logRepo == nil || roomRepo == nil || registry == nil {
        panic("nil dependency passed to NewPaymentHandler")
    }
    return &PaymentHandler{
        BookingRepo: bookingRepo,
        PaymentRepo: paymentRepo,
        LogRepo:     logRepo,
        RoomRepo:    roomRepo,
        Registry:    registry,
        Currency:    currency,
        CallbackURL: callbackURL,
        validate:    validator.New(),
    }
}

type initiatePaymentRequest struct {
    BookingID uint64 `json:"booking_id" validate:"required,gt=0"`
    Provider  string `json:"provider" validate:"required"`
}

// InitiatePayment handles POST /v1/payments/initiate.  Preconditions run
// in one transaction: the booking must exist and still be PENDING and
// the provider must be recognized.  The existing PENDING payment row is
// reused (its provider updated) rather than stacking a second open
// attempt.  The transaction reference is generated here and persisted in
// that same transaction, before the gateway is contacted, so a callback
// can correlate no matter when it arrives relative to the audit write.
// The gateway call itself runs outside any transaction so a slow
// provider never holds row locks; initiates for one booking are
// serialized across the whole gateway round-trip by a per-booking lock,
// so a retry cannot overwrite the reference of a session still in
// flight.  Booking status is never changed here; only callback/verify
// does that.
func (h *PaymentHandler) InitiatePayment(c echo.Context) error {
    var body initiatePaymentRequest
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body", "kind": "validation_failed"})
    }
    if err := h.validate.Struct(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "kind": "validation_failed"})
    }
    provider, err := gateway.ParseProvider(body.Provider)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unsupported payment provider", "kind": "unsupported_provider"})
    }
    gw, err := h.Registry.Resolve(provider)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unsupported payment provider", "kind": "unsupported_provider"})
    }

    lock, _ := h.initiateLocks.LoadOrStore(body.BookingID, &sync.Mutex{})
    mu := lock.(*sync.Mutex)
    mu.Lock()
    defer mu.Unlock()

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

    booking, err := h.BookingRepo.GetForUpdateTx(ctx, tx, body.BookingID)
    if err != nil {
        if errors.Is(err, repository.ErrBookingNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found", "kind": "not_found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    if booking.Status != model.BookingPending {
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{
            "error": fmt.Sprintf("booking is %s, payment can only be initiated while PENDING", booking.Status),
            "kind":  "invalid_state",
        })
    }
    payment, err := h.PaymentRepo.GetPendingByBookingTx(ctx, tx, booking.ID)
    if errors.Is(err, repository.ErrPaymentNotFound) {
        // previous attempt reached a terminal state; open a fresh one
        payment = &model.Payment{
            BookingID:   booking.ID,
            AmountCents: booking.TotalAmountCents,
            Provider:    string(provider),
            Status:      model.PaymentPending,
        }
        err = h.PaymentRepo.CreateTx(ctx, tx, payment)
    }
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    // the reference goes on the row before the gateway sees it
    ref := gateway.NewReference(provider)
    if err := h.PaymentRepo.SetProviderTx(ctx, tx, payment.ID, string(provider), ref); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record payment attempt", "kind": "internal"})
    }
    if err := tx.Commit(); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit transaction", "kind": "internal"})
    }
    committed = true

    guestName, guestContact := "", ""
    if det, derr := h.BookingRepo.GetDetail(ctx, booking.ID); derr == nil {
        guestName, guestContact = det.Guest.Name, det.Guest.Contact
    }
    result := gw.Initiate(gateway.InitiateRequest{
        Reference:    ref,
        AmountCents:  payment.AmountCents,
        Currency:     h.Currency,
        BookingID:    booking.ID,
        PayerContact: guestContact,
        PayerName:    guestName,
        CallbackURL:  h.CallbackURL,
    })

    // record the attempt outcome; the reference is already on the row
    tx2, err := h.BookingRepo.DB().BeginTx(ctx, nil)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction", "kind": "internal"})
    }
    committed2 := false
    defer func() {
        if !committed2 {
            _ = tx2.Rollback()
        }
    }()
    if result.ProviderRef != "" && result.ProviderRef != ref {
        // the provider assigned its own reference, keep that as the
        // correlation key
        if err := h.PaymentRepo.SetProviderTx(ctx, tx2, payment.ID, string(provider), result.ProviderRef); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record payment attempt", "kind": "internal"})
        }
        ref = result.ProviderRef
    }
    detail := fmt.Sprintf("initiate via %s ref=%s success=%t", provider, ref, result.Success)
    if result.Message != "" {
        detail += " message=" + result.Message
    }
    if err := h.LogRepo.AppendTx(ctx, tx2, payment.ID, booking.ID, model.LogPaymentInitiated, detail); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to write audit log", "kind": "internal"})
    }
    if err := tx2.Commit(); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit transaction", "kind": "internal"})
    }
    committed2 = true

    if !result.Success {
        return c.JSON(http.StatusBadGateway, echo.Map{
            "error":        result.Message,
            "kind":         "provider_unavailable",
            "provider":     provider,
            "provider_ref": ref,
        })
    }
    resp := echo.Map{
        "payment_id":   payment.ID,
        "provider":     provider,
        "provider_ref": ref,
        "redirect_url": result.RedirectURL,
    }
    if result.Message != "" {
        resp["instructions"] = result.Message
    }
    if result.ExpiresAt != nil {
        resp["expires_at"] = result.ExpiresAt.UTC().Format(time.RFC3339)
    }
    return c.JSON(http.StatusOK, resp)
}

// callbackData is the provider-agnostic shape every webhook payload is
// normalized into before processing.
type callbackData struct {
    ProviderRef   string
    BookingID     uint64
    Success       bool
    Failed        bool
    AmountCents   uint64
    HasAmount     bool
    TransactionID string
    ErrorMessage  string
}

// normalizeCallback maps the field spellings of the four providers onto
// callbackData.  It does not trust anything beyond shape; signature
// verification happens separately against the raw payload.
func normalizeCallback(payload []byte) (*callbackData, error) {
    var raw struct {
        // reference spellings
        ProviderReference string `json:"provider_reference"`
        TxRef             string `json:"tx_ref"`
        OutTradeNo        string `json:"outTradeNo"`
        Reference         string `json:"reference"`
        ReferenceID       string `json:"referenceId"`
        // booking fallback
        BookingID uint64 `json:"booking_id"`
        // status spellings
        Status        string `json:"status"`
        TradeStatus   string `json:"tradeStatus"`
        PaymentStatus string `json:"paymentStatus"`
        // amount spellings
        Amount      string `json:"amount"`
        TotalAmount string `json:"totalAmount"`
        // transaction id spellings
        TransactionID string `json:"transaction_id"`
        TradeNo       string `json:"tradeNo"`
        // error spellings
        ErrorMessage string `json:"error_message"`
        Message      string `json:"message"`
    }
    if err := json.Unmarshal(payload, &raw); err != nil {
        return nil, errors.New("callback payload is not valid JSON")
    }
    d := &callbackData{BookingID: raw.BookingID}
    for _, ref := range []string{raw.ProviderReference, raw.TxRef, raw.OutTradeNo, raw.Reference, raw.ReferenceID} {
        if ref != "" {
            d.ProviderRef = ref
            break
        }
    }
    if d.ProviderRef == "" && d.BookingID == 0 {
        return nil, errors.New("callback carries neither a provider reference nor a booking id")
    }
    status := raw.Status
    if status == "" {
        status = raw.TradeStatus
    }
    if status == "" {
        status = raw.PaymentStatus
    }
    switch status {
    case "success", "Completed", "PAID", "COMPLETED":
        d.Success = true
    case "failed", "cancelled", "Failure", "Closed", "FAILED", "DECLINED", "EXPIRED":
        d.Failed = true
    default:
        return nil, fmt.Errorf("callback status %q is not recognized", status)
    }
    amount := raw.Amount
    if amount == "" {
        amount = raw.TotalAmount
    }
    if amount != "" {
        cents, ok := parseCallbackAmount(amount)
        if !ok {
            return nil, fmt.Errorf("callback amount %q is not a valid decimal", amount)
        }
        d.AmountCents = cents
        d.HasAmount = true
    }
    d.TransactionID = raw.TransactionID
    if d.TransactionID == "" {
        d.TransactionID = raw.TradeNo
    }
    d.ErrorMessage = raw.ErrorMessage
    if d.ErrorMessage == "" && (d.Failed || raw.Message != "") {
        d.ErrorMessage = raw.Message
    }
    return d, nil
}

// parseCallbackAmount converts a decimal amount string to cents.
func parseCallbackAmount(s string) (uint64, bool) {
    var whole, frac uint64
    var fracDigits int
    seenDot := false
    if s == "" {
        return 0, false
    }
    for _, r := range s {
        switch {
        case r >= '0' && r <= '9':
            if seenDot {
                if fracDigits < 2 {
                    frac = frac*10 + uint64(r-'0')
                    fracDigits++
                }
            } else {
                whole = whole*10 + uint64(r-'0')
            }
        case r == '.' && !seenDot:
            seenDot = true
        default:
            return 0, false
        }
    }
    for fracDigits < 2 {
        frac *= 10
        fracDigits++
    }
    return whole*100 + frac, true
}

// ConfirmationCode derives the short human-facing code on receipts from
// the booking id.  The suffix is a truncated SHA-256 of the id so codes
// are not trivially guessable from sequential ids.
func ConfirmationCode(bookingID uint64) string {
    sum := sha256.Sum256([]byte(strconv.FormatUint(bookingID, 10)))
    return fmt.Sprintf("BK-%06d-%s", bookingID, hex.EncodeToString(sum[:3]))
}

// HandleCallback handles POST /v1/payments/callback, the webhook target
// for all providers.  The payload signature is verified with the
// adapter's scheme before the payload is trusted, the callback amount
// must equal the stored payment amount, and a duplicate callback for an
// already terminal payment is acknowledged without reprocessing.  All
// state changes of either branch commit in one transaction.
func (h *PaymentHandler) HandleCallback(c echo.Context) error {
    payload, err := io.ReadAll(c.Request().Body)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "failed to read callback body", "kind": "validation_failed"})
    }
    data, err := normalizeCallback(payload)
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

    var payment *model.Payment
    if data.ProviderRef != "" {
        payment, err = h.PaymentRepo.GetByProviderRefTx(ctx, tx, data.ProviderRef)
    } else {
        payment, err = h.PaymentRepo.GetLatestByBookingTx(ctx, tx, data.BookingID)
    }
    if err != nil {
        if errors.Is(err, repository.ErrPaymentNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "payment not found", "kind": "not_found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }

    provider, err := gateway.ParseProvider(payment.Provider)
    if err != nil {
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "payment has no initiated provider", "kind": "invalid_state"})
    }
    gw, err := h.Registry.Resolve(provider)
    if err != nil {
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "payment provider is not configured", "kind": "unsupported_provider"})
    }
    signature := c.Request().Header.Get("X-Webhook-Signature")
    if !gw.VerifyWebhookSignature(payload, signature) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid webhook signature", "kind": "validation_failed"})
    }

    // duplicate delivery of an already processed outcome is a no-op ack
    if payment.Terminal() {
        return c.JSON(http.StatusOK, echo.Map{
            "acknowledged":   true,
            "payment_status": payment.Status,
        })
    }

    if data.HasAmount && data.AmountCents != payment.AmountCents {
        detail := fmt.Sprintf("callback amount %d does not match stored amount %d", data.AmountCents, payment.AmountCents)
        if logErr := h.LogRepo.AppendTx(ctx, tx, payment.ID, payment.BookingID, model.LogPaymentMismatch, detail); logErr == nil {
            if err := tx.Commit(); err == nil {
                committed = true
            }
        }
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "payment amount mismatch", "kind": "payment_mismatch"})
    }

    booking, err := h.BookingRepo.GetForUpdateTx(ctx, tx, payment.BookingID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }

    if data.Success {
        if !booking.CanTransitionTo(model.BookingConfirmed) {
            // the sweeper expired the booking before the provider settled;
            // close the payment attempt, the room stays released
            if err := h.PaymentRepo.UpdateStatusTx(ctx, tx, payment.ID, model.PaymentFailed); err != nil {
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
            }
            detail := fmt.Sprintf("provider reported success but booking is %s", booking.Status)
            if err := h.LogRepo.AppendTx(ctx, tx, payment.ID, booking.ID, model.LogPaymentFailed, detail); err != nil {
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
            }
            if err := tx.Commit(); err != nil {
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit transaction", "kind": "internal"})
            }
            committed = true
            return c.JSON(http.StatusUnprocessableEntity, echo.Map{
                "error": fmt.Sprintf("booking is %s and can no longer be confirmed", booking.Status),
                "kind":  "invalid_state",
            })
        }
        if err := h.PaymentRepo.UpdateStatusTx(ctx, tx, payment.ID, model.PaymentSuccess); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
        }
        if err := h.BookingRepo.UpdateStatusTx(ctx, tx, booking.ID, model.BookingConfirmed); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
        }
        detail := "provider confirmed payment"
        if data.TransactionID != "" {
            detail += " tx=" + data.TransactionID
        }
        if err := h.LogRepo.AppendTx(ctx, tx, payment.ID, booking.ID, model.LogPaymentSuccess, detail); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
        }
        if err := tx.Commit(); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit transaction", "kind": "internal"})
        }
        committed = true

        det, derr := h.BookingRepo.GetDetail(ctx, booking.ID)
        if derr != nil {
            // state is committed; the receipt projection is best-effort
            return c.JSON(http.StatusOK, echo.Map{"confirmation_code": ConfirmationCode(booking.ID)})
        }
        h.publishResolved(booking.ID, payment.ID, string(model.PaymentSuccess), det.Hotel.Name)
        return c.JSON(http.StatusOK, echo.Map{
            "confirmation_code":  ConfirmationCode(booking.ID),
            "guest":              det.Guest.Name,
            "hotel":              det.Hotel.Name,
            "room":               det.Room.Number,
            "check_in":           det.Booking.CheckIn.Format(dateLayout),
            "check_out":          det.Booking.CheckOut.Format(dateLayout),
            "total_amount_cents": det.Booking.TotalAmountCents,
            "booking_status":     model.BookingConfirmed,
            "payment_status":     model.PaymentSuccess,
        })
    }

    // provider-reported failure: cancel the booking and release the room
    if err := h.PaymentRepo.UpdateStatusTx(ctx, tx, payment.ID, model.PaymentFailed); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    roomRelease := booking.CanTransitionTo(model.BookingCancelled)
    if roomRelease {
        if err := h.BookingRepo.UpdateStatusTx(ctx, tx, booking.ID, model.BookingCancelled); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
        }
        if err := h.RoomRepo.UpdateStatusTx(ctx, tx, booking.RoomID, model.RoomAvailable); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
        }
    }
    detail := "provider reported failure"
    if data.ErrorMessage != "" {
        detail += ": " + data.ErrorMessage
    }
    if err := h.LogRepo.AppendTx(ctx, tx, payment.ID, booking.ID, model.LogPaymentFailed, detail); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    if err := tx.Commit(); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit transaction", "kind": "internal"})
    }
    committed = true

    h.publishResolved(booking.ID, payment.ID, string(model.PaymentFailed), "")
    return c.JSON(http.StatusOK, echo.Map{
        "booking_status": model.BookingCancelled,
        "payment_status": model.PaymentFailed,
    })
}

// publishResolved emits the payment.resolved event without blocking the
// response; failures are logged and swallowed.
func (h *PaymentHandler) publishResolved(bookingID, paymentID uint64, status, hotelName string) {
    go func() {
        ev := queue.PaymentResolvedEvent{
            BookingID:  bookingID,
            PaymentID:  paymentID,
            Status:     status,
            HotelName:  hotelName,
            ResolvedAt: time.Now().UTC().Format(time.RFC3339),
        }
        if err := queue_publisher.PublishPaymentResolved(ev); err != nil {
            log.Printf("payment-resolved event publish failed: %v", err)
        }
    }()
}

// GetPayment handles GET /v1/payments/:id.  It returns the payment with
// its booking and the full audit log.  Read-only, no state change.
func (h *PaymentHandler) GetPayment(c echo.Context) error {
    paymentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || paymentID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payment id", "kind": "validation_failed"})
    }
    ctx := c.Request().Context()
    payment, err := h.PaymentRepo.GetByID(ctx, paymentID)
    if err != nil {
        if errors.Is(err, repository.ErrPaymentNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "payment not found", "kind": "not_found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    booking, err := h.BookingRepo.GetByID(ctx, payment.BookingID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    logs, err := h.LogRepo.ListByPayment(ctx, paymentID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error", "kind": "internal"})
    }
    logJSON := make([]echo.Map, 0, len(logs))
    for _, l := range logs {
        logJSON = append(logJSON, echo.Map{
            "action":     l.Action,
            "detail":     l.Detail,
            "created_at": l.CreatedAt.UTC().Format(time.RFC3339),
        })
    }
    resp := echo.Map{
        "payment": echo.Map{
            "id":           payment.ID,
            "booking_id":   payment.BookingID,
            "amount_cents": payment.AmountCents,
            "provider":     payment.Provider,
            "status":       payment.Status,
            "created_at":   payment.CreatedAt.UTC().Format(time.RFC3339),
        },
        "booking": echo.Map{
            "id":        booking.ID,
            "status":    booking.Status,
            "check_in":  booking.CheckIn.Format(dateLayout),
            "check_out": booking.CheckOut.Format(dateLayout),
        },
        "logs": logJSON,
    }
    if payment.ProviderRef != nil {
        resp["payment"].(echo.Map)["provider_ref"] = *payment.ProviderRef
    }
    return c.JSON(http.StatusOK, resp)
}
