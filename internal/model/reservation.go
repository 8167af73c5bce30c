package model

import (
    "strings"
    "time"
)

// Reservation statuses.  Cancelled reservations are kept as rows and
// never take part in conflict checks; physical deletion is reserved
// for administrative purge operations.
const (
    StatusPending   = "PENDING"
    StatusConfirmed = "CONFIRMED"
    StatusCancelled = "CANCELLED"
)

// Recurrence patterns supported by the scheduler.
const (
    PatternDaily   = "daily"
    PatternWeekly  = "weekly"
    PatternMonthly = "monthly"
)

// WeekLast is the week-of-month value meaning "the last occurrence of
// the weekday in the month" for monthly nth-weekday rules.
const WeekLast = 5

// RecurrenceRule describes how a series repeats.  It is stored only on
// the anchor reservation of a series.  Weekdays applies to weekly
// rules; WeekOfMonth/Weekday to monthly nth-weekday rules (WeekOfMonth
// zero means plain same-day-of-month).  EndDate is always required.
//
// Fields:
//  Pattern     – daily, weekly or monthly.
//  Weekdays    – explicit weekday set for weekly rules (may be empty).
//  WeekOfMonth – 1..4, or WeekLast for "last"; 0 when unused.
//  Weekday     – target weekday for monthly nth-weekday rules.
//  EndDate     – last calendar date the series may reach (inclusive).
type RecurrenceRule struct {
    Pattern     string         `json:"pattern"`
    Weekdays    []time.Weekday `json:"weekdays,omitempty"`
    WeekOfMonth int            `json:"week_of_month,omitempty"`
    Weekday     *time.Weekday  `json:"weekday,omitempty"`
    EndDate     time.Time      `json:"end_date"`
}

// HasWeekdaySet reports whether a weekly rule carries an explicit
// weekday set.
func (r RecurrenceRule) HasWeekdaySet() bool { return len(r.Weekdays) > 0 }

// IsNthWeekday reports whether a monthly rule targets the nth weekday
// of each month rather than the same day-of-month.
func (r RecurrenceRule) IsNthWeekday() bool { return r.WeekOfMonth != 0 && r.Weekday != nil }

// SeriesRole identifies a reservation's position inside a series.
type SeriesRole string

const (
    RoleNone   SeriesRole = "NONE"   // singleton, not part of any series
    RoleAnchor SeriesRole = "ANCHOR" // holds the authoritative recurrence rule
    RoleChild  SeriesRole = "CHILD"  // expanded occurrence parented to the anchor
)

// SeriesMembership makes the parent/child linkage explicit instead of
// leaving callers to infer it from nullable foreign keys.
type SeriesMembership struct {
    SeriesID string     `json:"series_id,omitempty"`
    Role     SeriesRole `json:"role"`
    ParentID uint64     `json:"parent_id,omitempty"`
}

// Reservation is the atomic bookable unit: one room, one calendar
// date, one half-open [StartTime, EndTime) interval.  Dates are
// time-zone naive and local to the venue; times are zero-padded HH:MM
// strings so that lexicographic order equals chronological order.
//
// Fields:
//  ID         – primary key identifier, immutable after insert.
//  RoomID     – the room this reservation occupies.
//  UserID     – user who requested the reservation.
//  Date       – the day of occupation (midnight UTC, date component only).
//  StartTime  – local start of occupation, "HH:MM".
//  EndTime    – local end of occupation, "HH:MM", strictly after StartTime.
//  Status     – PENDING, CONFIRMED or CANCELLED.
//  Purpose    – free-text reason shown in listings.
//  Visibility – PUBLIC or PRIVATE listing visibility.
//  SeriesID   – UUID shared by all members of a recurring series (nil for singletons).
//  ParentID   – anchor reservation ID for children (nil for anchors and singletons).
//  Rule       – recurrence rule, present only on the anchor.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Reservation struct {
    ID         uint64          `json:"id"`
    RoomID     uint64          `json:"room_id"`
    UserID     uint64          `json:"user_id"`
    Date       time.Time       `json:"date"`
    StartTime  string          `json:"start_time"`
    EndTime    string          `json:"end_time"`
    Status     string          `json:"status"`
    Purpose    string          `json:"purpose,omitempty"`
    Visibility string          `json:"visibility,omitempty"`
    SeriesID   *string         `json:"series_id,omitempty"`
    ParentID   *uint64         `json:"parent_id,omitempty"`
    Rule       *RecurrenceRule `json:"recurrence_rule,omitempty"`
    CreatedAt  time.Time       `json:"created_at"`
    UpdatedAt  time.Time       `json:"updated_at"`
}

// Membership returns the explicit series relationship of the
// reservation.  A row with a series ID and no parent is the anchor;
// with a parent it is a child; without a series ID it is a singleton.
func (r *Reservation) Membership() SeriesMembership {
    if r.SeriesID == nil {
        return SeriesMembership{Role: RoleNone}
    }
    if r.ParentID == nil {
        return SeriesMembership{SeriesID: *r.SeriesID, Role: RoleAnchor}
    }
    return SeriesMembership{SeriesID: *r.SeriesID, Role: RoleChild, ParentID: *r.ParentID}
}

// IsActive reports whether the reservation participates in conflict
// checks.  Cancelled rows are fully inert, including when the exact
// same slot is re-booked later.
func (r *Reservation) IsActive() bool {
    return r.Status == StatusPending || r.Status == StatusConfirmed
}

// DateKey formats the reservation date as an ISO calendar date.
func (r *Reservation) DateKey() string { return r.Date.Format("2006-01-02") }

// NormalizeStatus upper-cases and trims a client-supplied status value.
func NormalizeStatus(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
