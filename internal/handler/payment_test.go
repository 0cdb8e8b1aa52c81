package handler

import (
    "strings"
    "testing"
    "time"
)

func TestParseStayDates(t *testing.T) {
    now := time.Date(2025, 10, 1, 13, 30, 0, 0, time.UTC)
    tests := []struct {
        name     string
        checkIn  string
        checkOut string
        wantErr  string
    }{
        {name: "valid", checkIn: "2025-10-01", checkOut: "2025-10-03"},
        {name: "same day checkin allowed", checkIn: "2025-10-01", checkOut: "2025-10-02"},
        {name: "future stay", checkIn: "2025-12-24", checkOut: "2026-01-02"},
        {name: "garbage checkin", checkIn: "01/10/2025", checkOut: "2025-10-03", wantErr: "check_in"},
        {name: "garbage checkout", checkIn: "2025-10-01", checkOut: "soon", wantErr: "check_out"},
        {name: "checkout equals checkin", checkIn: "2025-10-01", checkOut: "2025-10-01", wantErr: "after"},
        {name: "checkout before checkin", checkIn: "2025-10-05", checkOut: "2025-10-03", wantErr: "after"},
        {name: "checkin in the past", checkIn: "2025-09-30", checkOut: "2025-10-03", wantErr: "past"},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            in, out, err := parseStayDates(tt.checkIn, tt.checkOut, now)
            if tt.wantErr != "" {
                if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
                    t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
                }
                return
            }
            if err != nil {
                t.Fatalf("unexpected error: %v", err)
            }
            if !out.After(in) {
                t.Errorf("parsed range inverted: %v .. %v", in, out)
            }
        })
    }
}

func TestNormalizeCallback(t *testing.T) {
    tests := []struct {
        name    string
        payload string
        wantErr bool
        check   func(t *testing.T, d *callbackData)
    }{
        {
            name:    "chapa success",
            payload: `{"tx_ref":"CHAPA_1_abc","status":"success","amount":"4000.00","transaction_id":"ch-9"}`,
            check: func(t *testing.T, d *callbackData) {
                if d.ProviderRef != "CHAPA_1_abc" || !d.Success || d.Failed {
                    t.Errorf("unexpected: %+v", d)
                }
                if !d.HasAmount || d.AmountCents != 400000 {
                    t.Errorf("amount = %d (has=%v)", d.AmountCents, d.HasAmount)
                }
                if d.TransactionID != "ch-9" {
                    t.Errorf("transaction id = %q", d.TransactionID)
                }
            },
        },
        {
            name:    "telebirr completed",
            payload: `{"outTradeNo":"TELEBIRR_2_def","tradeStatus":"Completed","totalAmount":"1500.50","tradeNo":"tb-1"}`,
            check: func(t *testing.T, d *callbackData) {
                if d.ProviderRef != "TELEBIRR_2_def" || !d.Success {
                    t.Errorf("unexpected: %+v", d)
                }
                if d.AmountCents != 150050 {
                    t.Errorf("amount = %d", d.AmountCents)
                }
                if d.TransactionID != "tb-1" {
                    t.Errorf("transaction id = %q", d.TransactionID)
                }
            },
        },
        {
            name:    "kaafi declined with message",
            payload: `{"referenceId":"KAAFI_3_ghi","paymentStatus":"DECLINED","message":"insufficient funds"}`,
            check: func(t *testing.T, d *callbackData) {
                if !d.Failed || d.Success {
                    t.Errorf("unexpected: %+v", d)
                }
                if d.ErrorMessage != "insufficient funds" {
                    t.Errorf("error message = %q", d.ErrorMessage)
                }
                if d.HasAmount {
                    t.Error("amount flagged present on payload without one")
                }
            },
        },
        {
            name:    "booking id fallback",
            payload: `{"booking_id":42,"status":"failed"}`,
            check: func(t *testing.T, d *callbackData) {
                if d.ProviderRef != "" || d.BookingID != 42 || !d.Failed {
                    t.Errorf("unexpected: %+v", d)
                }
            },
        },
        {name: "no correlation key", payload: `{"status":"success"}`, wantErr: true},
        {name: "unknown status", payload: `{"tx_ref":"CHAPA_1_x","status":"maybe"}`, wantErr: true},
        {name: "bad amount", payload: `{"tx_ref":"CHAPA_1_x","status":"success","amount":"4,000"}`, wantErr: true},
        {name: "not json", payload: `status=success`, wantErr: true},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            d, err := normalizeCallback([]byte(tt.payload))
            if tt.wantErr {
                if err == nil {
                    t.Fatalf("expected error, got %+v", d)
                }
                return
            }
            if err != nil {
                t.Fatalf("unexpected error: %v", err)
            }
            tt.check(t, d)
        })
    }
}

func TestParseCallbackAmount(t *testing.T) {
    tests := []struct {
        in   string
        want uint64
        ok   bool
    }{
        {"4000.00", 400000, true},
        {"4000", 400000, true},
        {"0.5", 50, true},
        {"", 0, false},
        {"-5", 0, false},
        {"1.2.3", 0, false},
    }
    for _, tt := range tests {
        got, ok := parseCallbackAmount(tt.in)
        if ok != tt.ok || got != tt.want {
            t.Errorf("parseCallbackAmount(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
        }
    }
}

func TestConfirmationCode(t *testing.T) {
    code := ConfirmationCode(42)
    if !strings.HasPrefix(code, "BK-000042-") {
        t.Errorf("code = %q", code)
    }
    if len(code) != len("BK-000042-")+6 {
        t.Errorf("code length = %d", len(code))
    }
    if code != ConfirmationCode(42) {
        t.Error("code is not deterministic")
    }
    if ConfirmationCode(43) == code {
        t.Error("distinct bookings share a code")
    }
}
