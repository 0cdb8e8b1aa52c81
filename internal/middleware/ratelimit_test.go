package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"

    "github.com/habeshastay/booking-engine/internal/config"
)

func newRateKeyContext(t *testing.T) echo.Context {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/v1/bookings")
    return c
}

func rateCfg(strategy string) config.RateLimitConfig {
    return config.RateLimitConfig{
        Enabled:        true,
        Capacity:       10,
        RefillTokens:   1,
        RefillInterval: time.Second,
        TTL:            time.Minute,
        KeyStrategy:    strategy,
        Prefix:         "rl",
    }
}

func TestBuildRateKeyUsesIdentityUserID(t *testing.T) {
    c := newRateKeyContext(t)
    // OptionalIdentity stores the token subject as uint64
    c.Set("user_id", uint64(42))

    if got, want := buildRateKey(rateCfg("user"), c), "rl:user:42"; got != want {
        t.Errorf("buildRateKey = %q, want %q", got, want)
    }
}

func TestBuildRateKeyAnonymousWithoutToken(t *testing.T) {
    c := newRateKeyContext(t)

    if got, want := buildRateKey(rateCfg("user"), c), "rl:user:anon"; got != want {
        t.Errorf("buildRateKey = %q, want %q", got, want)
    }
}

func TestBuildRateKeyDefaultStrategy(t *testing.T) {
    c := newRateKeyContext(t)
    c.Set("user_id", uint64(7))

    want := "rl:ip:" + c.RealIP() + ":user:7:route:POST /v1/bookings"
    if got := buildRateKey(rateCfg("ip_user_route"), c); got != want {
        t.Errorf("buildRateKey = %q, want %q", got, want)
    }
}

// End to end through OptionalIdentity: a request carrying a valid bearer
// token must be bucketed under its user id, not under anon.
func TestRateKeySeesAuthenticatedUser(t *testing.T) {
    const secret = "test-secret"
    token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "42"}).SignedString([]byte(secret))
    if err != nil {
        t.Fatalf("sign token: %v", err)
    }

    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
    req.Header.Set("Authorization", "Bearer "+token)
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/v1/bookings")

    var key string
    h := OptionalIdentity(secret)(func(c echo.Context) error {
        key = buildRateKey(rateCfg("user"), c)
        return nil
    })
    if err := h(c); err != nil {
        t.Fatalf("handler: %v", err)
    }
    if want := "rl:user:42"; key != want {
        t.Errorf("rate key = %q, want %q", key, want)
    }
}
