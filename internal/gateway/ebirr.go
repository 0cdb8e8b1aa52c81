package gateway

import (
    "bytes"
    "encoding/json"
    "fmt"
    "net/http"
    "time"
)

// EBirrConfig holds the credentials for the eBirr wallet gateway.
type EBirrConfig struct {
    BaseURL    string
    MerchantID string
    APIKey     string
    Timeout    time.Duration
}

// EBirrGateway talks to the eBirr merchant API.  Requests carry the
// merchant id and an HMAC of the raw JSON body in headers.
type EBirrGateway struct {
    cfg    EBirrConfig
    client *http.Client
}

// NewEBirrGateway builds the adapter with defaults applied.
func NewEBirrGateway(cfg EBirrConfig) *EBirrGateway {
    if cfg.BaseURL == "" {
        cfg.BaseURL = "https://api.ebirr.com"
    }
    if cfg.Timeout <= 0 {
        cfg.Timeout = 30 * time.Second
    }
    return &EBirrGateway{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name returns the provider identifier.
func (g *EBirrGateway) Name() Provider { return ProviderEBirr }

func (g *EBirrGateway) configured() bool { return g.cfg.MerchantID != "" && g.cfg.APIKey != "" }

func (g *EBirrGateway) post(path string, body []byte) (*http.Response, error) {
    httpReq, err := http.NewRequest(http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(body))
    if err != nil {
        return nil, err
    }
    httpReq.Header.Set("Content-Type", "application/json")
    httpReq.Header.Set("X-Merchant-Id", g.cfg.MerchantID)
    httpReq.Header.Set("X-Signature", signHMAC(g.cfg.APIKey, body))
    return g.client.Do(httpReq)
}

// Initiate opens a wallet payment request for the payer's phone number.
func (g *EBirrGateway) Initiate(req InitiateRequest) InitiateResult {
    ref := req.Reference
    if ref == "" {
        ref = NewReference(ProviderEBirr)
    }
    if !g.configured() {
        return InitiateResult{ProviderRef: ref, Message: "ebirr credentials not configured"}
    }
    body, _ := json.Marshal(map[string]string{
        "merchantId": g.cfg.MerchantID,
        "reference":  ref,
        "amount":     amountString(req.AmountCents),
        "currency":   req.Currency,
        "phone":      req.PayerContact,
        "payerName":  req.PayerName,
        "webhookUrl": req.CallbackURL,
    })
    resp, err := g.post("/v2/payments", body)
    if err != nil {
        return InitiateResult{ProviderRef: ref, Message: fmt.Sprintf("ebirr request failed: %v", err)}
    }
    defer resp.Body.Close()
    var out struct {
        Success bool   `json:"success"`
        Error   string `json:"error"`
        Data    struct {
            PaymentURL string `json:"paymentUrl"`
            ExpiresAt  string `json:"expiresAt"`
        } `json:"data"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return InitiateResult{ProviderRef: ref, Message: fmt.Sprintf("ebirr response decode failed: %v", err)}
    }
    if resp.StatusCode != http.StatusOK || !out.Success {
        msg := out.Error
        if msg == "" {
            msg = fmt.Sprintf("ebirr rejected the request (http %d)", resp.StatusCode)
        }
        return InitiateResult{ProviderRef: ref, Message: msg}
    }
    res := InitiateResult{Success: true, ProviderRef: ref, RedirectURL: out.Data.PaymentURL}
    if t, err := time.Parse(time.RFC3339, out.Data.ExpiresAt); err == nil {
        utc := t.UTC()
        res.ExpiresAt = &utc
    }
    return res
}

// Verify polls the payment state by reference.
func (g *EBirrGateway) Verify(providerRef string) VerifyResult {
    if !g.configured() {
        return VerifyResult{Status: VerifyPending, Message: "ebirr credentials not configured"}
    }
    body, _ := json.Marshal(map[string]string{
        "merchantId": g.cfg.MerchantID,
        "reference":  providerRef,
    })
    resp, err := g.post("/v2/payments/status", body)
    if err != nil {
        return VerifyResult{Status: VerifyPending, Message: fmt.Sprintf("ebirr request failed: %v", err)}
    }
    defer resp.Body.Close()
    var out struct {
        Success bool `json:"success"`
        Data    struct {
            Status        string `json:"status"`
            Amount        string `json:"amount"`
            TransactionID string `json:"transactionId"`
            PaidAt        string `json:"paidAt"`
        } `json:"data"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return VerifyResult{Status: VerifyPending, Message: fmt.Sprintf("ebirr response decode failed: %v", err)}
    }
    res := VerifyResult{TransactionID: out.Data.TransactionID}
    if amount, ok := parseAmountCents(out.Data.Amount); ok {
        res.AmountCents = amount
    }
    switch out.Data.Status {
    case "PAID":
        res.Success = true
        res.Status = VerifySuccess
        if t, err := time.Parse(time.RFC3339, out.Data.PaidAt); err == nil {
            utc := t.UTC()
            res.PaidAt = &utc
        }
    case "FAILED", "EXPIRED":
        res.Status = VerifyFailed
    default:
        res.Status = VerifyPending
    }
    return res
}

// VerifyWebhookSignature checks eBirr's HMAC-SHA256 over the raw JSON
// payload using the API key, mirroring the request signing scheme.
func (g *EBirrGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
    if g.cfg.APIKey == "" {
        return false
    }
    return verifyHMAC(g.cfg.APIKey, payload, signature)
}
