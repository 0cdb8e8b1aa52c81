package gateway

import (
    "bytes"
    "encoding/json"
    "fmt"
    "net/http"
    "time"
)

// ChapaConfig holds the credentials and endpoint for the Chapa gateway.
// SecretKey doubles as the webhook signing secret unless WebhookSecret is
// set separately.
type ChapaConfig struct {
    BaseURL       string
    SecretKey     string
    WebhookSecret string
    Timeout       time.Duration
}

// ChapaGateway talks to the Chapa hosted-checkout API.  A missing secret
// key degrades the adapter: Initiate and Verify return Success=false
// instead of the constructor failing, so the rest of the system keeps
// working with provider-by-provider availability.
type ChapaGateway struct {
    cfg    ChapaConfig
    client *http.Client
}

// NewChapaGateway builds the adapter.  BaseURL defaults to the public
// API host and Timeout to 30 seconds.
func NewChapaGateway(cfg ChapaConfig) *ChapaGateway {
    if cfg.BaseURL == "" {
        cfg.BaseURL = "https://api.chapa.co"
    }
    if cfg.Timeout <= 0 {
        cfg.Timeout = 30 * time.Second
    }
    return &ChapaGateway{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name returns the provider identifier.
func (g *ChapaGateway) Name() Provider { return ProviderChapa }

func (g *ChapaGateway) configured() bool { return g.cfg.SecretKey != "" }

// Initiate starts a hosted-checkout transaction and returns the checkout
// URL the client should be redirected to.
func (g *ChapaGateway) Initiate(req InitiateRequest) InitiateResult {
    ref := req.Reference
    if ref == "" {
        ref = NewReference(ProviderChapa)
    }
    if !g.configured() {
        return InitiateResult{ProviderRef: ref, Message: "chapa credentials not configured"}
    }
    body, _ := json.Marshal(map[string]string{
        "amount":       amountString(req.AmountCents),
        "currency":     req.Currency,
        "tx_ref":       ref,
        "phone_number": req.PayerContact,
        "first_name":   req.PayerName,
        "callback_url": req.CallbackURL,
    })
    httpReq, err := http.NewRequest(http.MethodPost, g.cfg.BaseURL+"/v1/transaction/initialize", bytes.NewReader(body))
    if err != nil {
        return InitiateResult{ProviderRef: ref, Message: err.Error()}
    }
    httpReq.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
    httpReq.Header.Set("Content-Type", "application/json")
    resp, err := g.client.Do(httpReq)
    if err != nil {
        return InitiateResult{ProviderRef: ref, Message: fmt.Sprintf("chapa request failed: %v", err)}
    }
    defer resp.Body.Close()
    var out struct {
        Status  string `json:"status"`
        Message string `json:"message"`
        Data    struct {
            CheckoutURL string `json:"checkout_url"`
        } `json:"data"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return InitiateResult{ProviderRef: ref, Message: fmt.Sprintf("chapa response decode failed: %v", err)}
    }
    if resp.StatusCode != http.StatusOK || out.Status != "success" {
        msg := out.Message
        if msg == "" {
            msg = fmt.Sprintf("chapa rejected the request (http %d)", resp.StatusCode)
        }
        return InitiateResult{ProviderRef: ref, Message: msg}
    }
    expires := time.Now().UTC().Add(15 * time.Minute)
    return InitiateResult{
        Success:     true,
        RedirectURL: out.Data.CheckoutURL,
        ProviderRef: ref,
        ExpiresAt:   &expires,
    }
}

// Verify polls the transaction state by reference.
func (g *ChapaGateway) Verify(providerRef string) VerifyResult {
    if !g.configured() {
        return VerifyResult{Status: VerifyPending, Message: "chapa credentials not configured"}
    }
    httpReq, err := http.NewRequest(http.MethodGet, g.cfg.BaseURL+"/v1/transaction/verify/"+providerRef, nil)
    if err != nil {
        return VerifyResult{Status: VerifyPending, Message: err.Error()}
    }
    httpReq.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
    resp, err := g.client.Do(httpReq)
    if err != nil {
        return VerifyResult{Status: VerifyPending, Message: fmt.Sprintf("chapa request failed: %v", err)}
    }
    defer resp.Body.Close()
    var out struct {
        Status string `json:"status"`
        Data   struct {
            Status    string `json:"status"`
            Amount    string `json:"amount"`
            Reference string `json:"reference"`
            PaidAt    string `json:"paid_at"`
        } `json:"data"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return VerifyResult{Status: VerifyPending, Message: fmt.Sprintf("chapa response decode failed: %v", err)}
    }
    res := VerifyResult{TransactionID: out.Data.Reference}
    if amount, ok := parseAmountCents(out.Data.Amount); ok {
        res.AmountCents = amount
    }
    switch out.Data.Status {
    case "success":
        res.Success = true
        res.Status = VerifySuccess
        if t, err := time.Parse(time.RFC3339, out.Data.PaidAt); err == nil {
            utc := t.UTC()
            res.PaidAt = &utc
        }
    case "failed", "cancelled":
        res.Status = VerifyFailed
    default:
        res.Status = VerifyPending
    }
    return res
}

// VerifyWebhookSignature checks Chapa's HMAC-SHA256 over the raw JSON
// payload using the webhook secret.
func (g *ChapaGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
    secret := g.cfg.WebhookSecret
    if secret == "" {
        secret = g.cfg.SecretKey
    }
    if secret == "" {
        return false
    }
    return verifyHMAC(secret, payload, signature)
}
