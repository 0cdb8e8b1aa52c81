package gateway

import (
    "strconv"
    "strings"
    "testing"
    "time"
)

func TestParseProvider(t *testing.T) {
    tests := []struct {
        in      string
        want    Provider
        wantErr bool
    }{
        {in: "chapa", want: ProviderChapa},
        {in: "TELEBIRR", want: ProviderTeleBirr},
        {in: " ebirr ", want: ProviderEBirr},
        {in: "kaafi", want: ProviderKaafi},
        {in: "paypal", wantErr: true},
        {in: "", wantErr: true},
    }
    for _, tt := range tests {
        got, err := ParseProvider(tt.in)
        if tt.wantErr {
            if err == nil {
                t.Errorf("ParseProvider(%q) expected error, got %q", tt.in, got)
            }
            continue
        }
        if err != nil || got != tt.want {
            t.Errorf("ParseProvider(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
        }
    }
}

func TestNewReferenceFormat(t *testing.T) {
    before := time.Now().UnixMilli()
    ref := NewReference(ProviderTeleBirr)
    after := time.Now().UnixMilli()

    parts := strings.SplitN(ref, "_", 3)
    if len(parts) != 3 {
        t.Fatalf("reference %q does not have three parts", ref)
    }
    if parts[0] != "TELEBIRR" {
        t.Errorf("reference prefix = %q, want TELEBIRR", parts[0])
    }
    ms, err := strconv.ParseInt(parts[1], 10, 64)
    if err != nil || ms < before || ms > after {
        t.Errorf("reference timestamp %q not in [%d, %d]", parts[1], before, after)
    }
    if len(parts[2]) == 0 {
        t.Errorf("reference %q missing random suffix", ref)
    }
    if NewReference(ProviderTeleBirr) == ref {
        t.Error("two references collided")
    }
}

func TestRegistryResolve(t *testing.T) {
    chapa := NewChapaGateway(ChapaConfig{SecretKey: "sk"})
    telebirr := NewTeleBirrGateway(TeleBirrConfig{AppID: "a", AppKey: "k"})
    reg := NewRegistry(chapa, telebirr)

    g, err := reg.Resolve(ProviderChapa)
    if err != nil || g.Name() != ProviderChapa {
        t.Fatalf("Resolve(chapa) = %v, %v", g, err)
    }
    if _, err := reg.Resolve(ProviderKaafi); err != ErrUnsupportedProvider {
        t.Fatalf("Resolve(kaafi) error = %v, want ErrUnsupportedProvider", err)
    }
}

func TestAmountString(t *testing.T) {
    tests := []struct {
        cents uint64
        want  string
    }{
        {400000, "4000.00"},
        {150, "1.50"},
        {5, "0.05"},
        {0, "0.00"},
    }
    for _, tt := range tests {
        if got := amountString(tt.cents); got != tt.want {
            t.Errorf("amountString(%d) = %q, want %q", tt.cents, got, tt.want)
        }
    }
}

func TestParseAmountCents(t *testing.T) {
    tests := []struct {
        in   string
        want uint64
        ok   bool
    }{
        {"4000.00", 400000, true},
        {"4000", 400000, true},
        {"1.5", 150, true},
        {"0.05", 5, true},
        {"", 0, false},
        {"abc", 0, false},
    }
    for _, tt := range tests {
        got, ok := parseAmountCents(tt.in)
        if ok != tt.ok || got != tt.want {
            t.Errorf("parseAmountCents(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
        }
    }
}

func TestVerifyHMAC(t *testing.T) {
    payload := []byte(`{"amount":"4000.00"}`)
    sig := signHMAC("secret", payload)

    if !verifyHMAC("secret", payload, sig) {
        t.Error("valid signature rejected")
    }
    if !verifyHMAC("secret", payload, "sha256="+sig) {
        t.Error("prefixed signature rejected")
    }
    if verifyHMAC("secret", payload, sig[:len(sig)-2]+"00") {
        t.Error("tampered signature accepted")
    }
    if verifyHMAC("other", payload, sig) {
        t.Error("wrong secret accepted")
    }
}
