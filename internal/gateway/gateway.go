// Package gateway presents one interface over the supported payment
// providers so the payment orchestrator never branches on provider
// identity.  Each adapter owns its credential configuration and signing
// scheme.  Business-level failures (missing credentials, rejected
// requests, network timeouts) are returned as Success=false results,
// never as errors: an unreachable provider leaves the payment PENDING
// for the sweeper to expire.
package gateway

import (
    "crypto/hmac"
    "crypto/sha256"
    "encoding/hex"
    "errors"
    "fmt"
    "strconv"
    "strings"
    "time"

    "github.com/google/uuid"
)

// Provider identifies a supported payment network.
type Provider string

const (
    ProviderChapa    Provider = "chapa"
    ProviderTeleBirr Provider = "telebirr"
    ProviderEBirr    Provider = "ebirr"
    ProviderKaafi    Provider = "kaafi"
)

// ErrUnsupportedProvider signals a provider value outside the supported set.
var ErrUnsupportedProvider = errors.New("unsupported payment provider")

// ParseProvider validates a client-supplied provider string.
func ParseProvider(s string) (Provider, error) {
    switch Provider(strings.ToLower(strings.TrimSpace(s))) {
    case ProviderChapa:
        return ProviderChapa, nil
    case ProviderTeleBirr:
        return ProviderTeleBirr, nil
    case ProviderEBirr:
        return ProviderEBirr, nil
    case ProviderKaafi:
        return ProviderKaafi, nil
    }
    return "", ErrUnsupportedProvider
}

// InitiateRequest carries everything an adapter needs to start a payment.
// Reference, when set, is the pre-assigned transaction reference the
// adapter must present to the provider; the orchestrator persists it
// before the network call so a callback can always correlate.  Adapters
// generate one themselves only when it is empty.
type InitiateRequest struct {
    Reference    string
    AmountCents  uint64
    Currency     string
    BookingID    uint64
    PayerContact string
    PayerName    string
    CallbackURL  string
}

// InitiateResult is the uniform outcome of an initiation attempt.  When
// Success is false, Message explains why; ProviderRef is populated either
// way so a later verify or callback can still correlate.
type InitiateResult struct {
    Success     bool
    RedirectURL string
    ProviderRef string
    Message     string
    ExpiresAt   *time.Time
}

// Verify status values reported by adapters.
const (
    VerifySuccess = "success"
    VerifyPending = "pending"
    VerifyFailed  = "failed"
)

// VerifyResult is the uniform outcome of an explicit verification call,
// used when a callback is delayed or lost.
type VerifyResult struct {
    Success       bool
    Status        string
    AmountCents   uint64
    TransactionID string
    PaidAt        *time.Time
    Message       string
}

// Gateway is implemented once per provider.
type Gateway interface {
    // Initiate starts a payment and returns redirect/instruction data.
    Initiate(req InitiateRequest) InitiateResult
    // Verify polls the provider for the state of a previously initiated
    // transaction identified by its provider reference.
    Verify(providerRef string) VerifyResult
    // VerifyWebhookSignature checks the provider's signature over a
    // callback payload before any of the payload is trusted.
    VerifyWebhookSignature(payload []byte, signature string) bool
    // Name returns the provider identifier.
    Name() Provider
}

// Registry maps provider values to their adapter instances.  It is built
// once at startup and injected into the payment handler, preserving the
// one-instance-per-provider intent without global state.
type Registry struct {
    gateways map[Provider]Gateway
}

// NewRegistry builds a registry from the given adapters.  Later adapters
// with the same name overwrite earlier ones.
func NewRegistry(gws ...Gateway) *Registry {
    m := make(map[Provider]Gateway, len(gws))
    for _, g := range gws {
        if g != nil {
            m[g.Name()] = g
        }
    }
    return &Registry{gateways: m}
}

// Resolve returns the adapter for the provider or ErrUnsupportedProvider.
func (r *Registry) Resolve(p Provider) (Gateway, error) {
    g, ok := r.gateways[p]
    if !ok {
        return nil, ErrUnsupportedProvider
    }
    return g, nil
}

// NewReference generates a provider-scoped transaction reference in the
// form <PROVIDER>_<epoch-ms>_<random>.  This reference, not the internal
// payment id, is the correlation key used by callbacks.
func NewReference(p Provider) string {
    random := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
    return fmt.Sprintf("%s_%d_%s", strings.ToUpper(string(p)), time.Now().UnixMilli(), random)
}

// signHMAC computes the hex HMAC-SHA256 of data under the shared secret.
func signHMAC(secret string, data []byte) string {
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write(data)
    return hex.EncodeToString(mac.Sum(nil))
}

// verifyHMAC compares an expected HMAC-SHA256 against a hex signature in
// constant time.  Signatures with a "sha256=" prefix are accepted.
func verifyHMAC(secret string, data []byte, signature string) bool {
    signature = strings.TrimPrefix(signature, "sha256=")
    expected := signHMAC(secret, data)
    return hmac.Equal([]byte(expected), []byte(signature))
}

// amountString renders cents as a decimal birr amount ("4000.00") the
// provider APIs expect.
func amountString(cents uint64) string {
    return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// parseAmountCents converts a provider-reported decimal amount back to
// cents.  Reports false on malformed input.
func parseAmountCents(s string) (uint64, bool) {
    s = strings.TrimSpace(s)
    if s == "" {
        return 0, false
    }
    whole, frac, _ := strings.Cut(s, ".")
    w, err := strconv.ParseUint(whole, 10, 64)
    if err != nil {
        return 0, false
    }
    cents := w * 100
    if frac != "" {
        if len(frac) > 2 {
            frac = frac[:2]
        }
        for len(frac) < 2 {
            frac += "0"
        }
        f, err := strconv.ParseUint(frac, 10, 64)
        if err != nil {
            return 0, false
        }
        cents += f
    }
    return cents, true
}
