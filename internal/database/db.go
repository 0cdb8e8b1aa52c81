// Package database opens the MySQL pool shared by every repository.
package database

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    _ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection with a ping.
// parseTime maps DATE/DATETIME columns onto time.Time and loc=UTC keeps
// the stored check-in/check-out and expiry timestamps unambiguous.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
    auth := user
    if pass != "" {
        auth = user + ":" + pass
    }
    dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
        auth, host, port, name)

    db, err := sql.Open("mysql", dsn)
    if err != nil {
        return nil, err
    }

    // The booking guard and the callback path both take FOR UPDATE row
    // locks, so transactions are short but cannot tolerate waiting on an
    // exhausted pool while holding a lock.  Keep open == idle so a burst
    // of bookings never churns connections mid-transaction.
    db.SetMaxOpenConns(32)
    db.SetMaxIdleConns(32)
    db.SetConnMaxLifetime(30 * time.Minute)

    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        return nil, err
    }
    return db, nil
}
