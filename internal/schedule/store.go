// Package schedule implements the recurring-reservation core: the
// calendar expander, the conflict detector and the series manager.
// The package is stateless; all shared mutable state lives behind the
// Store interface so the logic can run on any number of concurrent
// workers and be exercised in tests with an in-memory fake.
package schedule

import (
    "context"
    "time"

    "github.com/iliyamo/facility-reservation/internal/model"
)

// Store is the persistence boundary consumed by the Detector and the
// Manager.  Multi-row methods (InsertSeries, PromoteToSeries,
// AppendToSeries, RebuildSeries) are atomic: the implementation must
// commit every row or none, so a lost race never leaves orphaned
// children behind.  Lookups return ErrNotFound when no row matches.
type Store interface {
    // Insert persists a single reservation and fills in its generated ID
    // and timestamps.
    Insert(ctx context.Context, res *model.Reservation) error

    // InsertSeries persists the anchor first, assigns its generated ID as
    // the parent of every child, then persists the children.
    InsertSeries(ctx context.Context, anchor *model.Reservation, children []*model.Reservation) error

    // PromoteToSeries updates an existing singleton row in place to become
    // a series anchor (series id + recurrence rule) and inserts the children.
    PromoteToSeries(ctx context.Context, anchor *model.Reservation, children []*model.Reservation) error

    // AppendToSeries inserts new children and moves the stored recurrence
    // end date of every member of the series to newEnd.
    AppendToSeries(ctx context.Context, seriesID string, children []*model.Reservation, newEnd time.Time) error

    // RebuildSeries deletes all existing children of the anchor's series,
    // rewrites the anchor (date and rule may change) and inserts the
    // recreated children.
    RebuildSeries(ctx context.Context, anchor *model.Reservation, children []*model.Reservation) error

    GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
    ListBySeries(ctx context.Context, seriesID string) ([]*model.Reservation, error)

    // ListActiveByRoomAndDate returns the PENDING and CONFIRMED
    // reservations occupying the room on the given date.  Cancelled rows
    // are filtered out at the storage layer.
    ListActiveByRoomAndDate(ctx context.Context, roomID uint64, date time.Time) ([]*model.Reservation, error)

    Update(ctx context.Context, id uint64, patch FieldPatch) error
    UpdateGroup(ctx context.Context, seriesID string, patch FieldPatch) error

    // Delete and DeleteSeries physically remove rows.  They back the
    // administrative purge surface only; cancellation is a status update.
    Delete(ctx context.Context, id uint64) error
    DeleteSeries(ctx context.Context, seriesID string) error
}

// FieldPatch carries the mutable reservation fields for partial
// updates.  Nil fields are left untouched.
type FieldPatch struct {
    RoomID     *uint64
    Date       *time.Time
    StartTime  *string
    EndTime    *string
    Status     *string
    Purpose    *string
    Visibility *string
}

// IsZero reports whether the patch changes nothing.
func (p FieldPatch) IsZero() bool {
    return p.RoomID == nil && p.Date == nil && p.StartTime == nil && p.EndTime == nil &&
        p.Status == nil && p.Purpose == nil && p.Visibility == nil
}

// Shared returns the patch restricted to fields a group-scoped update
// may touch.  Date and room are always per-occurrence, never shared.
func (p FieldPatch) Shared() FieldPatch {
    return FieldPatch{
        StartTime:  p.StartTime,
        EndTime:    p.EndTime,
        Status:     p.Status,
        Purpose:    p.Purpose,
        Visibility: p.Visibility,
    }
}

// TouchesTimes reports whether the patch changes the occupied interval.
func (p FieldPatch) TouchesTimes() bool { return p.StartTime != nil || p.EndTime != nil }

// TouchesSlot reports whether the patch moves the reservation to a
// different room, date or interval, requiring a fresh conflict check.
func (p FieldPatch) TouchesSlot() bool {
    return p.RoomID != nil || p.Date != nil || p.TouchesTimes()
}
