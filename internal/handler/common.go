package handler // handler defines http handlers

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/facility-reservation/internal/schedule"
)

// getUserID extracts the user_id set by the JWT middleware and converts
// it to uint64.  JWT numeric claims arrive as float64.
func getUserID(c echo.Context) (uint64, error) {
    v := c.Get("user_id")
    switch t := v.(type) {
    case uint64:
        return t, nil
    case int:
        return uint64(t), nil
    case int64:
        return uint64(t), nil
    case float64:
        return uint64(t), nil
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil {
            return n, nil
        }
    }
    return 0, errors.New("invalid user_id in context")
}

// scheduleError maps the scheduler's error taxonomy onto HTTP
// responses.  Conflicts carry the complete set of offending dates so
// clients see every problem in one round trip.
func scheduleError(c echo.Context, err error) error {
    var (
        vErr *schedule.ValidationError
        sErr *schedule.StateError
        cErr *schedule.ConflictError
    )
    switch {
    case errors.Is(err, schedule.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
    case errors.As(err, &vErr):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": vErr.Reason})
    case errors.As(err, &sErr):
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": sErr.Reason})
    case errors.As(err, &cErr):
        return c.JSON(http.StatusConflict, echo.Map{
            "error":             cErr.Message,
            "conflicting_dates": cErr.Dates,
        })
    }
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
}
