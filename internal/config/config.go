package config // package config loads application configuration from environment variables

import (
    "log"  // log is used to report configuration errors and halt execution
    "os"   // os provides access to environment variables
    "time" // time for durations
)

// Config holds all runtime configuration values.  Each field corresponds
// to one or more environment variables.  Provider credential blocks are
// optional: an adapter with missing credentials degrades to rejecting
// initiation attempts rather than preventing startup.
type Config struct {
    Env       string // application environment (e.g. "dev", "prod")
    Port      string // HTTP port to listen on
    DBUser    string // database username
    DBPass    string // database password (optional)
    DBHost    string // database host address
    DBPort    string // database port number
    DBName    string // database name
    JWTSecret string // secret used to verify bearer tokens from the identity service

    Currency    string // settlement currency code (default ETB)
    CallbackURL string // public URL providers post payment callbacks to

    SweepInterval time.Duration // how often the expiration sweeper ticks
    GraceWindow   time.Duration // how long a booking may stay PENDING before expiry

    ProviderTimeout time.Duration // bound on provider network calls

    ChapaSecretKey     string // Chapa API secret key
    ChapaWebhookSecret string // Chapa webhook signing secret (falls back to the API key)
    TeleBirrAppID      string // TeleBirr application id
    TeleBirrAppKey     string // TeleBirr application key
    EBirrMerchantID    string // eBirr merchant identifier
    EBirrAPIKey        string // eBirr API key
    KaafiMerchantCode  string // Kaafi merchant code
    KaafiSecret        string // Kaafi signing secret
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    return Config{
        Env:       must("APP_ENV"),
        Port:      must("APP_PORT"),
        DBUser:    must("DB_USER"),
        DBPass:    os.Getenv("DB_PASS"),
        DBHost:    must("DB_HOST"),
        DBPort:    must("DB_PORT"),
        DBName:    must("DB_NAME"),
        JWTSecret: must("JWT_SECRET"),

        Currency:    getenvDefault("PAYMENT_CURRENCY", "ETB"),
        CallbackURL: must("PAYMENT_CALLBACK_URL"),

        SweepInterval:   durDefault("SWEEP_INTERVAL", time.Minute),
        GraceWindow:     durDefault("BOOKING_GRACE_WINDOW", 15*time.Minute),
        ProviderTimeout: durDefault("PROVIDER_TIMEOUT", 30*time.Second),

        ChapaSecretKey:     os.Getenv("CHAPA_SECRET_KEY"),
        ChapaWebhookSecret: os.Getenv("CHAPA_WEBHOOK_SECRET"),
        TeleBirrAppID:      os.Getenv("TELEBIRR_APP_ID"),
        TeleBirrAppKey:     os.Getenv("TELEBIRR_APP_KEY"),
        EBirrMerchantID:    os.Getenv("EBIRR_MERCHANT_ID"),
        EBirrAPIKey:        os.Getenv("EBIRR_API_KEY"),
        KaafiMerchantCode:  os.Getenv("KAAFI_MERCHANT_CODE"),
        KaafiSecret:        os.Getenv("KAAFI_SECRET"),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// getenvDefault returns the variable's value or the default when unset.
func getenvDefault(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

// durDefault parses the variable as a time.Duration, falling back to the
// default when unset or malformed.
func durDefault(key string, def time.Duration) time.Duration {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    d, err := time.ParseDuration(v)
    if err != nil {
        log.Printf("invalid duration for %s: %q, using %s", key, v, def)
        return def
    }
    return d
}
