package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/facility-reservation/internal/handler"
    "github.com/iliyamo/facility-reservation/internal/middleware"
    "github.com/iliyamo/facility-reservation/internal/model"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the authentication routes.  Unauthenticated
// operations live under /v1/auth; /v1/me and /v1/auth/logout run the
// JWT middleware first.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
    g := e.Group("/v1/auth")
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    g.POST("/refresh", a.Refresh)
    // Unauthenticated logout: a refresh_token in the body revokes that
    // single session.
    g.POST("/logout", a.Logout)

    auth := e.Group("/v1")
    auth.Use(middleware.JWTAuth(jwtSecret))
    auth.Use(middleware.RequireRole(model.RoleOwner, model.RoleMember))
    auth.GET("/me", a.Me)
    // Authenticated logout without a body revokes every session of the
    // bearer's user.
    auth.POST("/logout", a.Logout)
}

// RegisterBooking registers the room and reservation surface.  Every
// route requires a valid access token; owner-only administration lives
// under /v1/owner.  The rate limiter, when enabled, throttles the
// write-heavy booking endpoints.
func RegisterBooking(e *echo.Echo, rooms *handler.RoomHandler, res *handler.ReservationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
    auth := e.Group("/v1")
    auth.Use(middleware.JWTAuth(jwtSecret))
    auth.Use(middleware.RequireRole(model.RoleOwner, model.RoleMember))

    // Browsing and availability.
    auth.GET("/rooms", rooms.ListRooms)
    auth.GET("/rooms/:id", rooms.GetRoom)
    auth.GET("/rooms/:id/reservations", res.Availability)
    auth.GET("/my-reservations", res.ListMine)
    auth.GET("/reservations/:id", res.Get)

    // Booking and series lifecycle.
    booking := auth.Group("", limiter)
    booking.POST("/rooms/:id/reservations", res.Create)
    booking.POST("/reservations/:id/convert", res.Convert)
    booking.POST("/series/:id/extend", res.Extend)
    booking.PATCH("/series/:id/pattern", res.EditPattern)
    booking.POST("/series/:id/dates", res.AddDate)
    booking.PATCH("/reservations/:id", res.Update)
    booking.DELETE("/reservations/:id", res.Cancel)

    // Owner administration.
    owner := e.Group("/v1/owner")
    owner.Use(middleware.JWTAuth(jwtSecret))
    owner.Use(middleware.RequireRole(model.RoleOwner))
    owner.POST("/rooms", rooms.CreateRoom)
    owner.GET("/rooms", rooms.ListMyRooms)
    owner.PATCH("/rooms/:id", rooms.UpdateRoom)
    owner.DELETE("/reservations/:id", res.Purge)
}
