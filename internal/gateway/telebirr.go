package gateway

import (
    "bytes"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"
)

// TeleBirrConfig holds the credentials for the TeleBirr wallet gateway.
type TeleBirrConfig struct {
    BaseURL string
    AppID   string
    AppKey  string
    Timeout time.Duration
}

// TeleBirrGateway talks to the TeleBirr in-app payment API.  TeleBirr
// pushes a USSD/app prompt to the payer's phone, so Initiate returns
// instructions rather than a redirect when the provider gives no URL.
type TeleBirrGateway struct {
    cfg    TeleBirrConfig
    client *http.Client
}

// NewTeleBirrGateway builds the adapter with defaults applied.
func NewTeleBirrGateway(cfg TeleBirrConfig) *TeleBirrGateway {
    if cfg.BaseURL == "" {
        cfg.BaseURL = "https://app.telebirr.et/api"
    }
    if cfg.Timeout <= 0 {
        cfg.Timeout = 30 * time.Second
    }
    return &TeleBirrGateway{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name returns the provider identifier.
func (g *TeleBirrGateway) Name() Provider { return ProviderTeleBirr }

func (g *TeleBirrGateway) configured() bool { return g.cfg.AppID != "" && g.cfg.AppKey != "" }

// sign computes TeleBirr's request signature: HMAC-SHA256 over the
// pipe-joined appId, reference and amount.
func (g *TeleBirrGateway) sign(ref, amount string) string {
    payload := strings.Join([]string{g.cfg.AppID, ref, amount}, "|")
    return signHMAC(g.cfg.AppKey, []byte(payload))
}

// Initiate requests a payment push to the payer's wallet.
func (g *TeleBirrGateway) Initiate(req InitiateRequest) InitiateResult {
    ref := req.Reference
    if ref == "" {
        ref = NewReference(ProviderTeleBirr)
    }
    if !g.configured() {
        return InitiateResult{ProviderRef: ref, Message: "telebirr credentials not configured"}
    }
    amount := amountString(req.AmountCents)
    body, _ := json.Marshal(map[string]string{
        "appId":      g.cfg.AppID,
        "outTradeNo": ref,
        "totalAmount": amount,
        "subject":    fmt.Sprintf("booking %d", req.BookingID),
        "msisdn":     req.PayerContact,
        "notifyUrl":  req.CallbackURL,
        "sign":       g.sign(ref, amount),
    })
    httpReq, err := http.NewRequest(http.MethodPost, g.cfg.BaseURL+"/payment/v1/toTradeWebPay", bytes.NewReader(body))
    if err != nil {
        return InitiateResult{ProviderRef: ref, Message: err.Error()}
    }
    httpReq.Header.Set("Content-Type", "application/json")
    resp, err := g.client.Do(httpReq)
    if err != nil {
        return InitiateResult{ProviderRef: ref, Message: fmt.Sprintf("telebirr request failed: %v", err)}
    }
    defer resp.Body.Close()
    var out struct {
        Code    int    `json:"code"`
        Message string `json:"message"`
        Data    struct {
            ToPayURL string `json:"toPayUrl"`
        } `json:"data"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return InitiateResult{ProviderRef: ref, Message: fmt.Sprintf("telebirr response decode failed: %v", err)}
    }
    if resp.StatusCode != http.StatusOK || out.Code != 0 {
        msg := out.Message
        if msg == "" {
            msg = fmt.Sprintf("telebirr rejected the request (http %d)", resp.StatusCode)
        }
        return InitiateResult{ProviderRef: ref, Message: msg}
    }
    expires := time.Now().UTC().Add(15 * time.Minute)
    res := InitiateResult{Success: true, ProviderRef: ref, RedirectURL: out.Data.ToPayURL, ExpiresAt: &expires}
    if res.RedirectURL == "" {
        res.Message = "confirm the payment prompt on your telebirr app"
    }
    return res
}

// Verify queries the trade state by reference.
func (g *TeleBirrGateway) Verify(providerRef string) VerifyResult {
    if !g.configured() {
        return VerifyResult{Status: VerifyPending, Message: "telebirr credentials not configured"}
    }
    body, _ := json.Marshal(map[string]string{
        "appId":      g.cfg.AppID,
        "outTradeNo": providerRef,
        "sign":       g.sign(providerRef, ""),
    })
    httpReq, err := http.NewRequest(http.MethodPost, g.cfg.BaseURL+"/payment/v1/queryOrder", bytes.NewReader(body))
    if err != nil {
        return VerifyResult{Status: VerifyPending, Message: err.Error()}
    }
    httpReq.Header.Set("Content-Type", "application/json")
    resp, err := g.client.Do(httpReq)
    if err != nil {
        return VerifyResult{Status: VerifyPending, Message: fmt.Sprintf("telebirr request failed: %v", err)}
    }
    defer resp.Body.Close()
    var out struct {
        Code int `json:"code"`
        Data struct {
            TradeStatus string `json:"tradeStatus"`
            TradeNo     string `json:"tradeNo"`
            TotalAmount string `json:"totalAmount"`
            PayTime     string `json:"payTime"`
        } `json:"data"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return VerifyResult{Status: VerifyPending, Message: fmt.Sprintf("telebirr response decode failed: %v", err)}
    }
    res := VerifyResult{TransactionID: out.Data.TradeNo}
    if amount, ok := parseAmountCents(out.Data.TotalAmount); ok {
        res.AmountCents = amount
    }
    switch out.Data.TradeStatus {
    case "Completed":
        res.Success = true
        res.Status = VerifySuccess
        if t, err := time.Parse("2006-01-02 15:04:05", out.Data.PayTime); err == nil {
            utc := t.UTC()
            res.PaidAt = &utc
        }
    case "Failure", "Closed":
        res.Status = VerifyFailed
    default:
        res.Status = VerifyPending
    }
    return res
}

// VerifyWebhookSignature checks TeleBirr's callback signature.  TeleBirr
// signs the pipe-joined appId, outTradeNo, tradeStatus and totalAmount
// fields of the callback with the shared app key.
func (g *TeleBirrGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
    if !g.configured() {
        return false
    }
    var cb struct {
        OutTradeNo  string `json:"outTradeNo"`
        TradeStatus string `json:"tradeStatus"`
        TotalAmount string `json:"totalAmount"`
    }
    if err := json.Unmarshal(payload, &cb); err != nil {
        return false
    }
    signed := strings.Join([]string{g.cfg.AppID, cb.OutTradeNo, cb.TradeStatus, cb.TotalAmount}, "|")
    return verifyHMAC(g.cfg.AppKey, []byte(signed), signature)
}
