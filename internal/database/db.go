package database

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    _ "github.com/go-sql-driver/mysql"
)

// Params carries the connection settings for the MySQL pool.
type Params struct {
    User string
    Pass string
    Host string
    Port string
    Name string
}

// Open connects to MySQL, configures the pool and verifies the
// connection with a short ping.  parseTime=true makes DATE and
// DATETIME columns scan into time.Time; loc=UTC keeps the venue's
// naive calendar dates stable regardless of server timezone.
func Open(p Params) (*sql.DB, error) {
    auth := p.User
    if p.Pass != "" {
        auth = fmt.Sprintf("%s:%s", p.User, p.Pass)
    }
    dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
        auth, p.Host, p.Port, p.Name)

    db, err := sql.Open("mysql", dsn)
    if err != nil {
        return nil, err
    }

    db.SetMaxOpenConns(25)
    db.SetMaxIdleConns(25)
    db.SetConnMaxLifetime(30 * time.Minute)

    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        return nil, err
    }
    return db, nil
}
