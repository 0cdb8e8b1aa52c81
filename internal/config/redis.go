package config

import (
    "context"
    "log"
    "os"
    "strconv"
    "time"

    "github.com/redis/go-redis/v9"
)

// NewRedisClient builds the Redis client backing the distributed rate
// limiter.  It reads REDIS_ADDR (or REDIS_HOST/REDIS_PORT), and
// optionally REDIS_PASSWORD and REDIS_DB.  Redis is not required for
// correctness here: when the server cannot be reached at startup the
// function logs and returns nil, and the middleware degrades to a
// pass-through.  Bookings keep working, only burst protection is lost.
func NewRedisClient() *redis.Client {
    addr := os.Getenv("REDIS_ADDR")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    if addr == "" {
        addr = "localhost:6379"
    }
    db := 0
    if s := os.Getenv("REDIS_DB"); s != "" {
        if n, err := strconv.Atoi(s); err == nil {
            db = n
        }
    }
    client := redis.NewClient(&redis.Options{
        Addr:     addr,
        Password: os.Getenv("REDIS_PASSWORD"),
        DB:       db,
    })

    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        log.Printf("redis: ping %s failed, rate limiting disabled: %v", addr, err)
        return nil
    }
    return client
}
