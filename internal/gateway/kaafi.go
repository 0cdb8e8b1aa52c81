package gateway

import (
    "bytes"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"
)

// KaafiConfig holds the credentials for the Kaafi gateway.
type KaafiConfig struct {
    BaseURL      string
    MerchantCode string
    Secret       string
    Timeout      time.Duration
}

// KaafiGateway talks to the Kaafi payment API.  Kaafi signs both
// requests and callbacks with HMAC-SHA256 over a pipe-joined field
// concatenation rather than the raw body.
type KaafiGateway struct {
    cfg    KaafiConfig
    client *http.Client
}

// NewKaafiGateway builds the adapter with defaults applied.
func NewKaafiGateway(cfg KaafiConfig) *KaafiGateway {
    if cfg.BaseURL == "" {
        cfg.BaseURL = "https://pay.kaafi.com/api"
    }
    if cfg.Timeout <= 0 {
        cfg.Timeout = 30 * time.Second
    }
    return &KaafiGateway{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name returns the provider identifier.
func (g *KaafiGateway) Name() Provider { return ProviderKaafi }

func (g *KaafiGateway) configured() bool { return g.cfg.MerchantCode != "" && g.cfg.Secret != "" }

// Initiate opens a payment and returns the hosted payment page URL.
func (g *KaafiGateway) Initiate(req InitiateRequest) InitiateResult {
    ref := req.Reference
    if ref == "" {
        ref = NewReference(ProviderKaafi)
    }
    if !g.configured() {
        return InitiateResult{ProviderRef: ref, Message: "kaafi credentials not configured"}
    }
    amount := amountString(req.AmountCents)
    signed := strings.Join([]string{g.cfg.MerchantCode, ref, amount}, "|")
    body, _ := json.Marshal(map[string]string{
        "merchantCode": g.cfg.MerchantCode,
        "referenceId":  ref,
        "amount":       amount,
        "currency":     req.Currency,
        "customerName": req.PayerName,
        "customerTel":  req.PayerContact,
        "callbackUrl":  req.CallbackURL,
        "signature":    signHMAC(g.cfg.Secret, []byte(signed)),
    })
    httpReq, err := http.NewRequest(http.MethodPost, g.cfg.BaseURL+"/v1/checkout", bytes.NewReader(body))
    if err != nil {
        return InitiateResult{ProviderRef: ref, Message: err.Error()}
    }
    httpReq.Header.Set("Content-Type", "application/json")
    resp, err := g.client.Do(httpReq)
    if err != nil {
        return InitiateResult{ProviderRef: ref, Message: fmt.Sprintf("kaafi request failed: %v", err)}
    }
    defer resp.Body.Close()
    var out struct {
        Status  string `json:"status"`
        Message string `json:"message"`
        Data    struct {
            CheckoutURL string `json:"checkoutUrl"`
        } `json:"data"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return InitiateResult{ProviderRef: ref, Message: fmt.Sprintf("kaafi response decode failed: %v", err)}
    }
    if resp.StatusCode != http.StatusOK || out.Status != "OK" {
        msg := out.Message
        if msg == "" {
            msg = fmt.Sprintf("kaafi rejected the request (http %d)", resp.StatusCode)
        }
        return InitiateResult{ProviderRef: ref, Message: msg}
    }
    expires := time.Now().UTC().Add(15 * time.Minute)
    return InitiateResult{Success: true, ProviderRef: ref, RedirectURL: out.Data.CheckoutURL, ExpiresAt: &expires}
}

// Verify polls the payment state by reference.
func (g *KaafiGateway) Verify(providerRef string) VerifyResult {
    if !g.configured() {
        return VerifyResult{Status: VerifyPending, Message: "kaafi credentials not configured"}
    }
    signed := strings.Join([]string{g.cfg.MerchantCode, providerRef}, "|")
    body, _ := json.Marshal(map[string]string{
        "merchantCode": g.cfg.MerchantCode,
        "referenceId":  providerRef,
        "signature":    signHMAC(g.cfg.Secret, []byte(signed)),
    })
    httpReq, err := http.NewRequest(http.MethodPost, g.cfg.BaseURL+"/v1/checkout/status", bytes.NewReader(body))
    if err != nil {
        return VerifyResult{Status: VerifyPending, Message: err.Error()}
    }
    httpReq.Header.Set("Content-Type", "application/json")
    resp, err := g.client.Do(httpReq)
    if err != nil {
        return VerifyResult{Status: VerifyPending, Message: fmt.Sprintf("kaafi request failed: %v", err)}
    }
    defer resp.Body.Close()
    var out struct {
        Status string `json:"status"`
        Data   struct {
            PaymentStatus string `json:"paymentStatus"`
            Amount        string `json:"amount"`
            TransactionID string `json:"transactionId"`
            CompletedAt   string `json:"completedAt"`
        } `json:"data"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return VerifyResult{Status: VerifyPending, Message: fmt.Sprintf("kaafi response decode failed: %v", err)}
    }
    res := VerifyResult{TransactionID: out.Data.TransactionID}
    if amount, ok := parseAmountCents(out.Data.Amount); ok {
        res.AmountCents = amount
    }
    switch out.Data.PaymentStatus {
    case "COMPLETED":
        res.Success = true
        res.Status = VerifySuccess
        if t, err := time.Parse(time.RFC3339, out.Data.CompletedAt); err == nil {
            utc := t.UTC()
            res.PaidAt = &utc
        }
    case "DECLINED", "EXPIRED":
        res.Status = VerifyFailed
    default:
        res.Status = VerifyPending
    }
    return res
}

// VerifyWebhookSignature checks Kaafi's callback signature: HMAC-SHA256
// over the pipe-joined merchantCode, referenceId, paymentStatus and
// amount fields.
func (g *KaafiGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
    if !g.configured() {
        return false
    }
    var cb struct {
        ReferenceID   string `json:"referenceId"`
        PaymentStatus string `json:"paymentStatus"`
        Amount        string `json:"amount"`
    }
    if err := json.Unmarshal(payload, &cb); err != nil {
        return false
    }
    signed := strings.Join([]string{g.cfg.MerchantCode, cb.ReferenceID, cb.PaymentStatus, cb.Amount}, "|")
    return verifyHMAC(g.cfg.Secret, []byte(signed), signature)
}
