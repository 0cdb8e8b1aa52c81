package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "strconv"
    "strings"

    "github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
    "github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// OptionalIdentity returns an Echo middleware that attaches the subject of
// a valid Bearer token to the request context under "user_id".  Tokens are
// issued by the identity service; this core only verifies them.  Requests
// without a token, or with an invalid one, proceed anonymously; bookings
// are keyed by guest contact, the authenticated user id is an extra
// attribution when present.
func OptionalIdentity(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return next(c)
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
                if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
                    return nil, echo.ErrUnauthorized
                }
                return []byte(secret), nil
            })
            if err != nil || !tok.Valid {
                return next(c)
            }
            claims, ok := tok.Claims.(jwt.MapClaims)
            if !ok {
                return next(c)
            }
            if sub, err := claims.GetSubject(); err == nil && sub != "" {
                if uid, err := strconv.ParseUint(sub, 10, 64); err == nil {
                    c.Set("user_id", uid)
                }
            }
            return next(c)
        }
    }
}

// UserID extracts the authenticated user id attached by OptionalIdentity.
// The second return value reports whether a valid token was present.
func UserID(c echo.Context) (uint64, bool) {
    v := c.Get("user_id")
    if v == nil {
        return 0, false
    }
    uid, ok := v.(uint64)
    return uid, ok
}
