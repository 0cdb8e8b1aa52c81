package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing

    "github.com/habeshastay/booking-engine/internal/handler"    // import the handlers that implement business logic
    "github.com/habeshastay/booking-engine/internal/middleware" // import middleware for identity extraction and rate limiting
)

// RegisterRoutes registers routes that do not belong to the versioned API
// surface.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    // Map the GET request at path "/healthz" to the Health handler.  This
    // endpoint can be used by load balancers or monitoring systems to verify
    // that the service is up and running.
    e.GET("/healthz", handler.Health)
}

// RegisterBooking registers the booking endpoints under /v1.  The group
// applies OptionalIdentity so that a valid bearer token attaches a user id
// to the booking while anonymous guests proceed untouched; rateLimit
// protects the mutating create endpoint against bursts.
func RegisterBooking(e *echo.Echo, b *handler.BookingHandler, jwtSecret string, rateLimit echo.MiddlewareFunc) {
    g := e.Group("/v1/bookings")
    g.Use(middleware.OptionalIdentity(jwtSecret))
    // Creating a booking holds a room, so it is rate limited per client.
    g.POST("", b.CreateBooking, rateLimit)
    // Reading a booking returns the full projection: guest, hotel, room,
    // payment attempts and audit trail.
    g.GET("/:id", b.GetBooking)
}

// RegisterPayment registers the payment endpoints under /v1/payments.
// The provider callback is exempt from both identity and rate limiting:
// the upstream gateways authenticate themselves through the webhook
// signature, which the handler verifies before acting.
func RegisterPayment(e *echo.Echo, p *handler.PaymentHandler, jwtSecret string, rateLimit echo.MiddlewareFunc) {
    g := e.Group("/v1/payments")
    // Initiation reaches out to an external provider and is the most
    // expensive route in the API, so it carries the rate limiter.
    g.POST("/initiate", p.InitiatePayment, middleware.OptionalIdentity(jwtSecret), rateLimit)
    // Provider-to-server webhook.  No identity middleware: the caller is a
    // payment gateway, not a user.
    g.POST("/callback", p.HandleCallback)
    // Payment detail with its audit trail.
    g.GET("/:id", p.GetPayment)
}
