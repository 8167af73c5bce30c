package handler

import (
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/facility-reservation/internal/model"
    "github.com/iliyamo/facility-reservation/internal/repository"
    "github.com/iliyamo/facility-reservation/internal/schedule"
)

// ReservationHandler exposes the booking surface: one-off and recurring
// reservations, series lifecycle operations and availability listings.
// All scheduling decisions live in the schedule.Manager; the handler
// binds requests, enforces ownership and maps errors to HTTP.
type ReservationHandler struct {
    Manager      *schedule.Manager
    Reservations *repository.ReservationRepo
    Rooms        *repository.RoomRepo
}

// NewReservationHandler constructs the handler; all dependencies must
// be non-nil.
func NewReservationHandler(mgr *schedule.Manager, res *repository.ReservationRepo, rooms *repository.RoomRepo) *ReservationHandler {
    if mgr == nil || res == nil || rooms == nil {
        panic("nil dependency passed to NewReservationHandler")
    }
    return &ReservationHandler{Manager: mgr, Reservations: res, Rooms: rooms}
}

// ----- DTOs -----

type recurrenceReq struct {
    Pattern     string `json:"pattern"`       // daily | weekly | monthly
    Weekdays    []int  `json:"weekdays"`      // weekly only, 0=Sunday
    WeekOfMonth int    `json:"week_of_month"` // monthly nth-weekday, 1..4 or 5=last
    Weekday     *int   `json:"weekday"`       // monthly nth-weekday target
    EndDate     string `json:"end_date"`      // inclusive, YYYY-MM-DD
}

type createReservationReq struct {
    Date       string         `json:"date"` // YYYY-MM-DD
    StartTime  string         `json:"start_time"`
    EndTime    string         `json:"end_time"`
    Purpose    string         `json:"purpose"`
    Visibility string         `json:"visibility"`
    Recurrence *recurrenceReq `json:"recurrence"`
}

type patchReservationReq struct {
    RoomID     *uint64 `json:"room_id"`
    Date       *string `json:"date"`
    StartTime  *string `json:"start_time"`
    EndTime    *string `json:"end_time"`
    Status     *string `json:"status"`
    Purpose    *string `json:"purpose"`
    Visibility *string `json:"visibility"`
}

// toRule converts the wire recurrence into a model rule.  Weekday
// numbers outside 0..6 are rejected here so the scheduler only ever
// sees well-formed rules.
func (r *recurrenceReq) toRule() (model.RecurrenceRule, error) {
    rule := model.RecurrenceRule{
        Pattern:     strings.ToLower(strings.TrimSpace(r.Pattern)),
        WeekOfMonth: r.WeekOfMonth,
    }
    end, err := time.Parse(schedule.DateLayout, r.EndDate)
    if err != nil {
        return rule, &schedule.ValidationError{Reason: "end_date must be YYYY-MM-DD"}
    }
    rule.EndDate = end
    for _, d := range r.Weekdays {
        if d < 0 || d > 6 {
            return rule, &schedule.ValidationError{Reason: "weekdays must be 0 (Sunday) .. 6 (Saturday)"}
        }
        rule.Weekdays = append(rule.Weekdays, time.Weekday(d))
    }
    if r.Weekday != nil {
        if *r.Weekday < 0 || *r.Weekday > 6 {
            return rule, &schedule.ValidationError{Reason: "weekday must be 0 (Sunday) .. 6 (Saturday)"}
        }
        wd := time.Weekday(*r.Weekday)
        rule.Weekday = &wd
    }
    return rule, nil
}

func parseScope(c echo.Context) schedule.Scope {
    if strings.ToLower(c.QueryParam("scope")) == string(schedule.ScopeGroup) {
        return schedule.ScopeGroup
    }
    return schedule.ScopeSingle
}

// Create handles POST /v1/rooms/:id/reservations.  Without a
// recurrence block it books a single slot; with one it expands the rule
// and commits every occurrence or none, returning the full conflict
// set on failure.
func (h *ReservationHandler) Create(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    roomID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || roomID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
    }
    var req createReservationReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    date, err := time.Parse(schedule.DateLayout, req.Date)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
    }

    ctx := c.Request().Context()
    room, err := h.Rooms.GetByID(ctx, roomID)
    if err != nil {
        if err == repository.ErrRoomNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if !room.IsActive {
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "room is not accepting reservations"})
    }

    booking := schedule.BookingRequest{
        RoomID:     roomID,
        UserID:     userID,
        Date:       date,
        StartTime:  strings.TrimSpace(req.StartTime),
        EndTime:    strings.TrimSpace(req.EndTime),
        Purpose:    strings.TrimSpace(req.Purpose),
        Visibility: strings.ToUpper(strings.TrimSpace(req.Visibility)),
    }

    if req.Recurrence == nil {
        res, err := h.Manager.CreateSingle(ctx, booking)
        if err != nil {
            return scheduleError(c, err)
        }
        return c.JSON(http.StatusCreated, echo.Map{"reservation": res})
    }

    rule, err := req.Recurrence.toRule()
    if err != nil {
        return scheduleError(c, err)
    }
    members, err := h.Manager.CreateSeries(ctx, booking, rule)
    if err != nil {
        return scheduleError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "series_id": members[0].SeriesID,
        "items":     members,
    })
}

// Availability handles GET /v1/rooms/:id/reservations?from=&to= and
// lists the room's reservations inside the date window.
func (h *ReservationHandler) Availability(c echo.Context) error {
    roomID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || roomID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
    }
    from, err := time.Parse(schedule.DateLayout, c.QueryParam("from"))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "from must be YYYY-MM-DD"})
    }
    to, err := time.Parse(schedule.DateLayout, c.QueryParam("to"))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "to must be YYYY-MM-DD"})
    }
    if to.Before(from) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "to must not precede from"})
    }
    items, err := h.Reservations.ListByRoomAndDateRange(c.Request().Context(), roomID, from, to)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ListMine handles GET /v1/my-reservations.
func (h *ReservationHandler) ListMine(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    items, err := h.Reservations.ListByUser(c.Request().Context(), userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    res, ok, err := h.loadOwned(c, userID)
    if !ok {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{
        "reservation": res,
        "membership":  res.Membership(),
    })
}

// Convert handles POST /v1/reservations/:id/convert, turning a
// singleton into the anchor of a new series.
func (h *ReservationHandler) Convert(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    res, ok, err := h.loadOwned(c, userID)
    if !ok {
        return err
    }
    var req recurrenceReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    rule, err := req.toRule()
    if err != nil {
        return scheduleError(c, err)
    }
    members, err := h.Manager.ConvertToSeries(c.Request().Context(), res.ID, rule)
    if err != nil {
        return scheduleError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "series_id": members[0].SeriesID,
        "items":     members,
    })
}

// Extend handles POST /v1/series/:id/extend with {"new_end_date": ...}.
func (h *ReservationHandler) Extend(c echo.Context) error {
    _, seriesID, _, ok, err := h.loadOwnedSeries(c)
    if !ok {
        return err
    }
    var req struct {
        NewEndDate string `json:"new_end_date"`
    }
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    newEnd, err := time.Parse(schedule.DateLayout, req.NewEndDate)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "new_end_date must be YYYY-MM-DD"})
    }
    added, err := h.Manager.ExtendSeries(c.Request().Context(), seriesID, newEnd)
    if err != nil {
        return scheduleError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"items": added})
}

// EditPattern handles PATCH /v1/series/:id/pattern, moving a monthly
// series onto a new (week_of_month, weekday) cadence.
func (h *ReservationHandler) EditPattern(c echo.Context) error {
    _, seriesID, _, ok, err := h.loadOwnedSeries(c)
    if !ok {
        return err
    }
    var req struct {
        WeekOfMonth int `json:"week_of_month"`
        Weekday     int `json:"weekday"`
    }
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if req.Weekday < 0 || req.Weekday > 6 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "weekday must be 0 (Sunday) .. 6 (Saturday)"})
    }
    members, err := h.Manager.EditMonthlyPattern(c.Request().Context(), seriesID, req.WeekOfMonth, time.Weekday(req.Weekday))
    if err != nil {
        return scheduleError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": members})
}

// AddDate handles POST /v1/series/:id/dates with {"date": ...},
// patching one extra occurrence into the series.
func (h *ReservationHandler) AddDate(c echo.Context) error {
    _, seriesID, _, ok, err := h.loadOwnedSeries(c)
    if !ok {
        return err
    }
    var req struct {
        Date string `json:"date"`
    }
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    date, err := time.Parse(schedule.DateLayout, req.Date)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
    }
    child, err := h.Manager.AddDate(c.Request().Context(), seriesID, date)
    if err != nil {
        return scheduleError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"reservation": child})
}

// Update handles PATCH /v1/reservations/:id?scope=single|group.  Group
// scope applies only the shared fields to every member of the series;
// dates and rooms stay per-occurrence.
func (h *ReservationHandler) Update(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    res, ok, err := h.loadOwned(c, userID)
    if !ok {
        return err
    }
    var req patchReservationReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    patch := schedule.FieldPatch{
        RoomID:     req.RoomID,
        StartTime:  req.StartTime,
        EndTime:    req.EndTime,
        Purpose:    req.Purpose,
        Visibility: req.Visibility,
    }
    if req.Status != nil {
        status := model.NormalizeStatus(*req.Status)
        patch.Status = &status
    }
    if req.Date != nil {
        d, err := time.Parse(schedule.DateLayout, *req.Date)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
        }
        patch.Date = &d
    }
    if err := h.Manager.Update(c.Request().Context(), res.ID, patch, parseScope(c)); err != nil {
        return scheduleError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// Cancel handles DELETE /v1/reservations/:id?scope=single|group.
// Cancellation is a status change; the rows stay in place and stop
// blocking the room immediately.
func (h *ReservationHandler) Cancel(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    res, ok, err := h.loadOwned(c, userID)
    if !ok {
        return err
    }
    if err := h.Manager.Cancel(c.Request().Context(), res.ID, parseScope(c)); err != nil {
        return scheduleError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// Purge handles DELETE /v1/owner/reservations/:id?scope=.  Room owners
// may physically remove reservations on rooms they manage.
func (h *ReservationHandler) Purge(c echo.Context) error {
    ownerID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    resID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || resID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    ctx := c.Request().Context()
    res, err := h.Reservations.GetByID(ctx, resID)
    if err != nil {
        return scheduleError(c, err)
    }
    room, err := h.Rooms.GetByID(ctx, res.RoomID)
    if err != nil {
        if err == repository.ErrRoomNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if room.OwnerID != ownerID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    if err := h.Manager.Purge(ctx, resID, parseScope(c)); err != nil {
        return scheduleError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// ----- helpers -----

// loadOwned fetches the path reservation and checks the caller owns it.
// On failure the second return is false and the first error return
// already carries the written response.
func (h *ReservationHandler) loadOwned(c echo.Context, userID uint64) (*model.Reservation, bool, error) {
    resID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || resID == 0 {
        return nil, false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    res, err := h.Reservations.GetByID(c.Request().Context(), resID)
    if err != nil {
        return nil, false, scheduleError(c, err)
    }
    if res.UserID != userID {
        return nil, false, c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    return res, true, nil
}

// loadOwnedSeries resolves the path series id, locates its anchor and
// checks ownership.
func (h *ReservationHandler) loadOwnedSeries(c echo.Context) (userID uint64, seriesID string, anchor *model.Reservation, ok bool, err error) {
    userID, err = getUserID(c)
    if err != nil {
        return 0, "", nil, false, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    seriesID = strings.TrimSpace(c.Param("id"))
    if seriesID == "" {
        return 0, "", nil, false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid series id"})
    }
    members, err := h.Reservations.ListBySeries(c.Request().Context(), seriesID)
    if err != nil {
        return 0, "", nil, false, c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if len(members) == 0 {
        return 0, "", nil, false, c.JSON(http.StatusNotFound, echo.Map{"error": "series not found"})
    }
    for _, m := range members {
        if m.Membership().Role == model.RoleAnchor {
            anchor = m
            break
        }
    }
    if anchor == nil {
        return 0, "", nil, false, c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "series has no anchor reservation"})
    }
    if anchor.UserID != userID {
        return 0, "", nil, false, c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    return userID, seriesID, anchor, true, nil
}
