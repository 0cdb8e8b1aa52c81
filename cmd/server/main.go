package main // Entry point package

import (
    "context"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"

    "github.com/habeshastay/booking-engine/internal/config"
    "github.com/habeshastay/booking-engine/internal/database"
    "github.com/habeshastay/booking-engine/internal/gateway"
    "github.com/habeshastay/booking-engine/internal/handler"
    "github.com/habeshastay/booking-engine/internal/middleware"
    "github.com/habeshastay/booking-engine/internal/queue"
    "github.com/habeshastay/booking-engine/internal/repository"
    "github.com/habeshastay/booking-engine/internal/router"
    "github.com/habeshastay/booking-engine/internal/sweeper"
)

func main() {
    // Load .env if present; real deployments set the environment directly.
    _ = godotenv.Load()

    cfg := config.Load() // Load environment config

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()

    bookingRepo := repository.NewBookingRepo(db)
    paymentRepo := repository.NewPaymentRepo(db)
    logRepo := repository.NewPaymentLogRepo(db)
    roomRepo := repository.NewRoomRepo(db)
    hotelRepo := repository.NewHotelRepo(db)
    guestRepo := repository.NewGuestRepo(db)

    // One adapter per supported provider.  Adapters with missing
    // credentials register anyway and decline initiation at runtime, so a
    // partially configured deployment still serves the other providers.
    registry := gateway.NewRegistry(
        gateway.NewChapaGateway(gateway.ChapaConfig{
            SecretKey:     cfg.ChapaSecretKey,
            WebhookSecret: cfg.ChapaWebhookSecret,
            Timeout:       cfg.ProviderTimeout,
        }),
        gateway.NewTeleBirrGateway(gateway.TeleBirrConfig{
            AppID:   cfg.TeleBirrAppID,
            AppKey:  cfg.TeleBirrAppKey,
            Timeout: cfg.ProviderTimeout,
        }),
        gateway.NewEBirrGateway(gateway.EBirrConfig{
            MerchantID: cfg.EBirrMerchantID,
            APIKey:     cfg.EBirrAPIKey,
            Timeout:    cfg.ProviderTimeout,
        }),
        gateway.NewKaafiGateway(gateway.KaafiConfig{
            MerchantCode: cfg.KaafiMerchantCode,
            Secret:       cfg.KaafiSecret,
            Timeout:      cfg.ProviderTimeout,
        }),
    )

    bookingHandler := handler.NewBookingHandler(bookingRepo, paymentRepo, logRepo, roomRepo, hotelRepo, guestRepo)
    paymentHandler := handler.NewPaymentHandler(bookingRepo, paymentRepo, logRepo, roomRepo, registry, cfg.Currency, cfg.CallbackURL)

    // Redis-backed token bucket shared by the mutating endpoints.
    rdb := config.NewRedisClient()
    rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

    e := echo.New() // Create Echo instance
    router.RegisterRoutes(e)
    router.RegisterBooking(e, bookingHandler, cfg.JWTSecret, rateLimit)
    router.RegisterPayment(e, paymentHandler, cfg.JWTSecret, rateLimit)

    // Background expiry of bookings whose payment never arrived.
    sw := sweeper.New(sweeper.NewMySQLStore(db, bookingRepo, roomRepo, logRepo), cfg.SweepInterval, cfg.GraceWindow)
    sw.Start()
    defer sw.Stop()

    // Notification consumer drains the booking/payment event queues.
    go func() {
        if err := queue.StartNotificationConsumer(); err != nil {
            log.Printf("notification consumer stopped: %v", err)
        }
    }()

    addr := ":" + cfg.Port                                // Address string with port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

    go func() {
        if err := e.Start(addr); err != nil {
            log.Printf("http server stopped: %v", err)
        }
    }()

    // Block until interrupted, then drain in-flight requests.
    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := e.Shutdown(shutdownCtx); err != nil {
        log.Printf("shutdown: %v", err)
    }
}
