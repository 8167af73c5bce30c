package schedule

import (
    "context"
    "log"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/facility-reservation/internal/model"
)

// Event kinds passed to the Notifier after successful operations.
const (
    EventCreated       = "reservation.created"
    EventStatusChanged = "reservation.status_changed"
    EventCancelled     = "reservation.cancelled"
)

// Notifier is the external notification collaborator.  Notify is
// fire-and-forget: the Manager logs failures and never lets them roll
// back or fail the scheduling operation itself.
type Notifier interface {
    Notify(ctx context.Context, kind string, res *model.Reservation) error
}

// Locker serializes check-then-insert per room.  Acquire blocks until
// the room's lock is held or ctx expires and returns the release
// function.  Together with the Store's transactional batch writes it
// closes the race the read-then-decide conflict check leaves open.
type Locker interface {
    Acquire(ctx context.Context, roomID uint64) (release func(), err error)
}

// Scope selects whether a mutation touches one occurrence or every
// member of its series.
type Scope string

const (
    ScopeSingle Scope = "single"
    ScopeGroup  Scope = "group"
)

// BookingRequest carries the caller-supplied parameters for creating a
// reservation.  The requesting user id comes from the request layer,
// which also enforces ownership on edits and cancellations.
type BookingRequest struct {
    RoomID     uint64
    UserID     uint64
    Date       time.Time
    StartTime  string
    EndTime    string
    Purpose    string
    Visibility string
}

// Manager orchestrates the expander, the detector and the store to
// implement the series lifecycle.  A booking request flows through
// Requested -> Expanded -> Validated -> Committed, or stops at
// Rejected with the full conflict set.  Conflicts are reported, never
// retried; retry policy belongs to the caller.
type Manager struct {
    store    Store
    detector *Detector
    locker   Locker
    notifier Notifier
    settings Settings
}

// NewManager wires a Manager.  store and locker must be non-nil;
// notifier may be nil to disable notifications.
func NewManager(store Store, locker Locker, notifier Notifier, settings Settings) *Manager {
    if store == nil || locker == nil {
        panic("nil dependency passed to NewManager")
    }
    if settings.MaxOccurrences <= 0 {
        settings.MaxOccurrences = DefaultMaxOccurrences
    }
    return &Manager{
        store:    store,
        detector: NewDetector(store),
        locker:   locker,
        notifier: notifier,
        settings: settings,
    }
}

// Detector exposes the manager's conflict detector for read-only
// availability queries in the request layer.
func (m *Manager) Detector() *Detector { return m.detector }

// CreateSingle books one non-recurring reservation.
func (m *Manager) CreateSingle(ctx context.Context, req BookingRequest) (*model.Reservation, error) {
    if err := m.validateRequest(req); err != nil {
        return nil, err
    }
    release, err := m.locker.Acquire(ctx, req.RoomID)
    if err != nil {
        return nil, err
    }
    defer release()

    conflict, err := m.detector.HasConflict(ctx, req.RoomID, req.Date, req.StartTime, req.EndTime, 0)
    if err != nil {
        return nil, err
    }
    if conflict {
        return nil, &ConflictError{
            Message: "requested slot is already booked",
            Dates:   []string{DateOnly(req.Date).Format(DateLayout)},
        }
    }
    res := m.buildReservation(req, DateOnly(req.Date))
    if err := m.store.Insert(ctx, res); err != nil {
        return nil, err
    }
    m.notify(ctx, EventCreated, res)
    return res, nil
}

// CreateSeries expands the rule from the anchor date, checks every
// occurrence and commits all rows or none.  The anchor row is inserted
// first; its generated id becomes the parent of every child and a
// fresh series id ties the group together.
func (m *Manager) CreateSeries(ctx context.Context, req BookingRequest, rule model.RecurrenceRule) ([]*model.Reservation, error) {
    if err := m.validateRequest(req); err != nil {
        return nil, err
    }
    dates, err := Expand(req.Date, rule, m.settings.MaxOccurrences)
    if err != nil {
        return nil, err
    }
    release, err := m.locker.Acquire(ctx, req.RoomID)
    if err != nil {
        return nil, err
    }
    defer release()

    conflicts, err := m.detector.ConflictingDates(ctx, req.RoomID, dates, req.StartTime, req.EndTime, "")
    if err != nil {
        return nil, err
    }
    if len(conflicts) > 0 {
        return nil, &ConflictError{Message: "series conflicts with existing reservations", Dates: conflicts}
    }

    seriesID := uuid.NewString()
    anchor := m.buildReservation(req, dates[0])
    anchor.SeriesID = &seriesID
    anchor.Rule = &rule
    children := make([]*model.Reservation, 0, len(dates)-1)
    for _, d := range dates[1:] {
        child := m.buildReservation(req, d)
        child.SeriesID = &seriesID
        children = append(children, child)
    }
    if err := m.store.InsertSeries(ctx, anchor, children); err != nil {
        return nil, err
    }
    m.notify(ctx, EventCreated, anchor)
    return append([]*model.Reservation{anchor}, children...), nil
}

// ConvertToSeries turns an existing singleton into the anchor of a new
// series.  The reservation's own date is the anchor date; only the new
// dates are conflict-checked, since the anchor slot is already
// occupied by the reservation itself.
func (m *Manager) ConvertToSeries(ctx context.Context, reservationID uint64, rule model.RecurrenceRule) ([]*model.Reservation, error) {
    res, err := m.store.GetByID(ctx, reservationID)
    if err != nil {
        return nil, err
    }
    if res.SeriesID != nil {
        return nil, &StateError{Reason: "reservation is already part of a series"}
    }
    dates, err := Expand(res.Date, rule, m.settings.MaxOccurrences)
    if err != nil {
        return nil, err
    }
    release, err := m.locker.Acquire(ctx, res.RoomID)
    if err != nil {
        return nil, err
    }
    defer release()

    conflicts, err := m.detector.ConflictingDates(ctx, res.RoomID, dates[1:], res.StartTime, res.EndTime, "")
    if err != nil {
        return nil, err
    }
    if len(conflicts) > 0 {
        return nil, &ConflictError{Message: "series conflicts with existing reservations", Dates: conflicts}
    }

    seriesID := uuid.NewString()
    res.SeriesID = &seriesID
    res.Rule = &rule
    children := make([]*model.Reservation, 0, len(dates)-1)
    for _, d := range dates[1:] {
        children = append(children, m.childOf(res, d))
    }
    if err := m.store.PromoteToSeries(ctx, res, children); err != nil {
        return nil, err
    }
    m.notify(ctx, EventCreated, res)
    return append([]*model.Reservation{res}, children...), nil
}

// ExtendSeries pushes a series' end date forward.  The latest
// occurrence is computed across every member — individual members may
// have been edited past the anchor's stored end — and only dates
// strictly after it are proposed and conflict-checked.  On success the
// new children are inserted and the stored end date moves on every
// member row in the same transaction; on conflict nothing changes.
func (m *Manager) ExtendSeries(ctx context.Context, seriesID string, newEndDate time.Time) ([]*model.Reservation, error) {
    members, anchor, err := m.loadSeries(ctx, seriesID)
    if err != nil {
        return nil, err
    }
    if anchor.Rule == nil {
        return nil, &StateError{Reason: "series anchor carries no recurrence rule"}
    }
    latest := DateOnly(anchor.Date)
    for _, mem := range members {
        if d := DateOnly(mem.Date); d.After(latest) {
            latest = d
        }
    }
    newEnd := DateOnly(newEndDate)
    if !newEnd.After(latest) {
        return nil, validationf("new end date %s is not after the latest occurrence %s",
            newEnd.Format(DateLayout), latest.Format(DateLayout))
    }

    rule := *anchor.Rule
    rule.EndDate = newEnd
    // Expansion restarts from the anchor so the cadence keeps its phase;
    // everything at or before the latest existing date is discarded.
    all, err := Expand(anchor.Date, rule, m.settings.MaxOccurrences)
    if err != nil {
        return nil, err
    }
    var dates []time.Time
    for _, d := range all {
        if d.After(latest) {
            dates = append(dates, d)
        }
    }
    if len(dates) == 0 {
        return nil, validationf("extension to %s adds no occurrences", newEnd.Format(DateLayout))
    }

    release, err := m.locker.Acquire(ctx, anchor.RoomID)
    if err != nil {
        return nil, err
    }
    defer release()

    conflicts, err := m.detector.ConflictingDates(ctx, anchor.RoomID, dates, anchor.StartTime, anchor.EndTime, seriesID)
    if err != nil {
        return nil, err
    }
    if len(conflicts) > 0 {
        return nil, &ConflictError{Message: "extension conflicts with existing reservations", Dates: conflicts}
    }

    children := make([]*model.Reservation, 0, len(dates))
    for _, d := range dates {
        children = append(children, m.childOf(anchor, d))
    }
    if err := m.store.AppendToSeries(ctx, seriesID, children, newEnd); err != nil {
        return nil, err
    }
    m.notify(ctx, EventCreated, anchor)
    return children, nil
}

// EditMonthlyPattern re-patterns a monthly series to a new
// (week-of-month, weekday) pair.  The whole series is re-expanded from
// the anchor's month, conflict-checked against everything outside the
// series itself, and — only if clean — the old children are deleted
// and recreated.  Destructive-and-recreate keeps no stale children
// around at the cost of extra writes.
func (m *Manager) EditMonthlyPattern(ctx context.Context, seriesID string, weekOfMonth int, weekday time.Weekday) ([]*model.Reservation, error) {
    _, anchor, err := m.loadSeries(ctx, seriesID)
    if err != nil {
        return nil, err
    }
    if anchor.Rule == nil || anchor.Rule.Pattern != model.PatternMonthly {
        return nil, &StateError{Reason: "nth-weekday pattern can only be edited on a monthly series"}
    }
    if weekOfMonth < 1 || weekOfMonth > model.WeekLast {
        return nil, validationf("week of month must be 1..4 or %d for last, got %d", model.WeekLast, weekOfMonth)
    }
    if weekday < time.Sunday || weekday > time.Saturday {
        return nil, validationf("invalid weekday %d", weekday)
    }

    rule := *anchor.Rule
    rule.WeekOfMonth = weekOfMonth
    rule.Weekday = &weekday
    dates := monthlyOccurrences(DateOnly(anchor.Date), DateOnly(rule.EndDate), weekOfMonth, weekday)
    if len(dates) == 0 {
        return nil, validationf("new pattern produces no occurrences before %s", rule.EndDate.Format(DateLayout))
    }

    release, err := m.locker.Acquire(ctx, anchor.RoomID)
    if err != nil {
        return nil, err
    }
    defer release()

    conflicts, err := m.detector.ConflictingDates(ctx, anchor.RoomID, dates, anchor.StartTime, anchor.EndTime, seriesID)
    if err != nil {
        return nil, err
    }
    if len(conflicts) > 0 {
        return nil, &ConflictError{Message: "new pattern conflicts with existing reservations", Dates: conflicts}
    }

    anchor.Rule = &rule
    anchor.Date = dates[0]
    children := make([]*model.Reservation, 0, len(dates)-1)
    for _, d := range dates[1:] {
        children = append(children, m.childOf(anchor, d))
    }
    if err := m.store.RebuildSeries(ctx, anchor, children); err != nil {
        return nil, err
    }
    m.notify(ctx, EventStatusChanged, anchor)
    return append([]*model.Reservation{anchor}, children...), nil
}

// AddDate patches one extra occurrence into a series without touching
// its recurrence rule.  Only the single date is conflict-checked.
func (m *Manager) AddDate(ctx context.Context, seriesID string, date time.Time) (*model.Reservation, error) {
    _, anchor, err := m.loadSeries(ctx, seriesID)
    if err != nil {
        return nil, err
    }
    if date.IsZero() {
        return nil, validationf("date is required")
    }
    release, err := m.locker.Acquire(ctx, anchor.RoomID)
    if err != nil {
        return nil, err
    }
    defer release()

    day := DateOnly(date)
    conflict, err := m.detector.HasConflict(ctx, anchor.RoomID, day, anchor.StartTime, anchor.EndTime, 0)
    if err != nil {
        return nil, err
    }
    if conflict {
        return nil, &ConflictError{Message: "date conflicts with an existing reservation", Dates: []string{day.Format(DateLayout)}}
    }
    child := m.childOf(anchor, day)
    if err := m.store.Insert(ctx, child); err != nil {
        return nil, err
    }
    m.notify(ctx, EventCreated, child)
    return child, nil
}

// Update applies a field patch to one reservation or, with group
// scope, the shared fields to every member of its series.  Dates stay
// per-occurrence and are never group-edited.  Moving a slot re-runs
// the conflict check with the row (or series) excluded.
func (m *Manager) Update(ctx context.Context, reservationID uint64, patch FieldPatch, scope Scope) error {
    res, err := m.store.GetByID(ctx, reservationID)
    if err != nil {
        return err
    }
    if scope == ScopeGroup {
        if res.SeriesID == nil {
            return &StateError{Reason: "group scope requires a recurring reservation"}
        }
        patch = patch.Shared()
    }
    if patch.IsZero() {
        return validationf("no fields to update")
    }
    if err := m.validatePatch(res, patch); err != nil {
        return err
    }

    if scope == ScopeGroup {
        seriesID := *res.SeriesID
        if patch.TouchesTimes() {
            start, end := mergedTimes(res, patch)
            members, _, err := m.loadSeries(ctx, seriesID)
            if err != nil {
                return err
            }
            release, err := m.locker.Acquire(ctx, res.RoomID)
            if err != nil {
                return err
            }
            defer release()

            var dates []time.Time
            for _, mem := range members {
                if mem.IsActive() {
                    dates = append(dates, DateOnly(mem.Date))
                }
            }
            conflicts, err := m.detector.ConflictingDates(ctx, res.RoomID, dates, start, end, seriesID)
            if err != nil {
                return err
            }
            if len(conflicts) > 0 {
                return &ConflictError{Message: "new times conflict with existing reservations", Dates: conflicts}
            }
        }
        if err := m.store.UpdateGroup(ctx, seriesID, patch); err != nil {
            return err
        }
        if patch.Status != nil {
            m.notify(ctx, EventStatusChanged, res)
        }
        return nil
    }

    if patch.TouchesSlot() {
        roomID := res.RoomID
        if patch.RoomID != nil {
            roomID = *patch.RoomID
        }
        date := DateOnly(res.Date)
        if patch.Date != nil {
            date = DateOnly(*patch.Date)
        }
        start, end := mergedTimes(res, patch)

        release, err := m.locker.Acquire(ctx, roomID)
        if err != nil {
            return err
        }
        defer release()

        conflict, err := m.detector.HasConflict(ctx, roomID, date, start, end, res.ID)
        if err != nil {
            return err
        }
        if conflict {
            return &ConflictError{Message: "updated slot conflicts with an existing reservation", Dates: []string{date.Format(DateLayout)}}
        }
    }
    if err := m.store.Update(ctx, res.ID, patch); err != nil {
        return err
    }
    if patch.Status != nil {
        m.notify(ctx, EventStatusChanged, res)
    }
    return nil
}

// Cancel flips the status to CANCELLED for one occurrence or the whole
// series.  It is never a physical delete; purge operations handle
// deletion separately.
func (m *Manager) Cancel(ctx context.Context, reservationID uint64, scope Scope) error {
    res, err := m.store.GetByID(ctx, reservationID)
    if err != nil {
        return err
    }
    cancelled := model.StatusCancelled
    patch := FieldPatch{Status: &cancelled}
    if scope == ScopeGroup {
        if res.SeriesID == nil {
            return &StateError{Reason: "group scope requires a recurring reservation"}
        }
        if err := m.store.UpdateGroup(ctx, *res.SeriesID, patch); err != nil {
            return err
        }
    } else {
        if err := m.store.Update(ctx, res.ID, patch); err != nil {
            return err
        }
    }
    m.notify(ctx, EventCancelled, res)
    return nil
}

// Purge physically deletes one reservation or a whole series.  This is
// the privileged cleanup path; normal cancellation never reaches it.
func (m *Manager) Purge(ctx context.Context, reservationID uint64, scope Scope) error {
    res, err := m.store.GetByID(ctx, reservationID)
    if err != nil {
        return err
    }
    if scope == ScopeGroup && res.SeriesID != nil {
        return m.store.DeleteSeries(ctx, *res.SeriesID)
    }
    return m.store.Delete(ctx, res.ID)
}

// ----- helpers -----

func (m *Manager) validateRequest(req BookingRequest) error {
    if req.RoomID == 0 {
        return validationf("room id is required")
    }
    if req.Date.IsZero() {
        return validationf("date is required")
    }
    if !ValidTimeOfDay(req.StartTime) || !ValidTimeOfDay(req.EndTime) {
        return validationf("start and end times must be HH:MM")
    }
    if req.EndTime <= req.StartTime {
        return validationf("end time %s must be after start time %s", req.EndTime, req.StartTime)
    }
    if !m.settings.withinHours(req.StartTime, req.EndTime) {
        return validationf("requested times fall outside venue hours %s-%s", m.settings.OpenTime, m.settings.CloseTime)
    }
    return nil
}

func (m *Manager) validatePatch(res *model.Reservation, patch FieldPatch) error {
    if patch.StartTime != nil && !ValidTimeOfDay(*patch.StartTime) {
        return validationf("start time must be HH:MM")
    }
    if patch.EndTime != nil && !ValidTimeOfDay(*patch.EndTime) {
        return validationf("end time must be HH:MM")
    }
    if patch.TouchesTimes() {
        start, end := mergedTimes(res, patch)
        if end <= start {
            return validationf("end time %s must be after start time %s", end, start)
        }
        if !m.settings.withinHours(start, end) {
            return validationf("updated times fall outside venue hours %s-%s", m.settings.OpenTime, m.settings.CloseTime)
        }
    }
    if patch.Status != nil {
        switch model.NormalizeStatus(*patch.Status) {
        case model.StatusPending, model.StatusConfirmed, model.StatusCancelled:
        default:
            return validationf("unknown status %q", *patch.Status)
        }
    }
    return nil
}

// loadSeries fetches the members of a series and locates its anchor.
// A series with no anchor would violate the data model; surfacing it
// as a state error keeps the corruption visible instead of guessing.
func (m *Manager) loadSeries(ctx context.Context, seriesID string) (members []*model.Reservation, anchor *model.Reservation, err error) {
    members, err = m.store.ListBySeries(ctx, seriesID)
    if err != nil {
        return nil, nil, err
    }
    if len(members) == 0 {
        return nil, nil, ErrNotFound
    }
    for _, mem := range members {
        if mem.Membership().Role == model.RoleAnchor {
            anchor = mem
            break
        }
    }
    if anchor == nil {
        return nil, nil, &StateError{Reason: "series has no anchor reservation"}
    }
    return members, anchor, nil
}

func (m *Manager) buildReservation(req BookingRequest, date time.Time) *model.Reservation {
    visibility := req.Visibility
    if visibility == "" {
        visibility = "PUBLIC"
    }
    return &model.Reservation{
        RoomID:     req.RoomID,
        UserID:     req.UserID,
        Date:       date,
        StartTime:  req.StartTime,
        EndTime:    req.EndTime,
        Status:     model.StatusPending,
        Purpose:    req.Purpose,
        Visibility: visibility,
    }
}

// childOf copies the anchor's payload onto a new child occurrence.
func (m *Manager) childOf(anchor *model.Reservation, date time.Time) *model.Reservation {
    parentID := anchor.ID
    return &model.Reservation{
        RoomID:     anchor.RoomID,
        UserID:     anchor.UserID,
        Date:       date,
        StartTime:  anchor.StartTime,
        EndTime:    anchor.EndTime,
        Status:     anchor.Status,
        Purpose:    anchor.Purpose,
        Visibility: anchor.Visibility,
        SeriesID:   anchor.SeriesID,
        ParentID:   &parentID,
    }
}

func (m *Manager) notify(ctx context.Context, kind string, res *model.Reservation) {
    if m.notifier == nil {
        return
    }
    if err := m.notifier.Notify(ctx, kind, res); err != nil {
        log.Printf("notify %s for reservation %d: %v", kind, res.ID, err)
    }
}

// mergedTimes overlays the patch times on the reservation's current ones.
func mergedTimes(res *model.Reservation, patch FieldPatch) (start, end string) {
    start, end = res.StartTime, res.EndTime
    if patch.StartTime != nil {
        start = *patch.StartTime
    }
    if patch.EndTime != nil {
        end = *patch.EndTime
    }
    return start, end
}

// monthlyOccurrences lists the nth-weekday occurrence of every month
// from the anchor's month through end, skipping months without one.
// Used by EditMonthlyPattern, where the anchor itself moves onto the
// new pattern.
func monthlyOccurrences(from, end time.Time, weekOfMonth int, weekday time.Weekday) []time.Time {
    var out []time.Time
    for i := 0; ; i++ {
        first := time.Date(from.Year(), from.Month()+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
        if first.After(end) {
            break
        }
        occ, ok := NthWeekdayOfMonth(first.Year(), first.Month(), weekOfMonth, weekday)
        if !ok || occ.After(end) {
            continue
        }
        out = append(out, occ)
    }
    return out
}
