package main // Entry point package

import (
    "log"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/facility-reservation/internal/config"
    "github.com/iliyamo/facility-reservation/internal/database"
    "github.com/iliyamo/facility-reservation/internal/handler"
    "github.com/iliyamo/facility-reservation/internal/lock"
    "github.com/iliyamo/facility-reservation/internal/middleware"
    "github.com/iliyamo/facility-reservation/internal/queue"
    "github.com/iliyamo/facility-reservation/internal/repository"
    "github.com/iliyamo/facility-reservation/internal/router"
    "github.com/iliyamo/facility-reservation/internal/schedule"
    "github.com/iliyamo/facility-reservation/internal/service"
)

func main() {
    // .env is optional; real deployments set the environment directly.
    _ = godotenv.Load()
    cfg := config.Load()

    db, err := database.Open(database.Params{
        User: cfg.DBUser,
        Pass: cfg.DBPass,
        Host: cfg.DBHost,
        Port: cfg.DBPort,
        Name: cfg.DBName,
    })
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()

    // Redis is optional: without it the limiter turns off and the room
    // lock falls back to in-process mutexes.
    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Println("redis unavailable; rate limiting disabled, using local room locks")
    }

    userRepo := repository.NewUserRepo(db)
    tokenRepo := repository.NewTokenRepo(db)
    roomRepo := repository.NewRoomRepo(db)
    reservationRepo := repository.NewReservationRepo(db)

    manager := schedule.NewManager(
        reservationRepo,
        lock.New(rdb),
        service.NewAMQPNotifier(""),
        schedule.Settings{
            OpenTime:       cfg.VenueOpen,
            CloseTime:      cfg.VenueClose,
            MaxOccurrences: cfg.MaxOccurrences,
        },
    )

    e := echo.New()
    router.RegisterRoutes(e)
    router.RegisterAuth(e, handler.NewAuthHandler(cfg, userRepo, tokenRepo), cfg.JWTSecret)
    router.RegisterBooking(e,
        handler.NewRoomHandler(roomRepo),
        handler.NewReservationHandler(manager, reservationRepo, roomRepo),
        cfg.JWTSecret,
        middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
    )

    // The consumer keeps its own reconnect loop; a dead broker only
    // costs the audit log, never a booking.
    go func() {
        if err := queue.StartEventConsumer(); err != nil {
            log.Printf("event consumer stopped: %v", err)
        }
    }()

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env)
    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}
