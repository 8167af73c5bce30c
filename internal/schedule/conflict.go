package schedule

import (
    "context"
    "time"
)

// Detector decides whether a proposed date and time interval collides
// with existing reservations on a room.  It holds no state of its own;
// every call reads the current rows through the Store.  The check is
// read-then-decide and does not by itself close the race between
// concurrent checks — the Manager combines it with the per-room lock
// and the Store's transactional batch inserts.
type Detector struct {
    store Store
}

// NewDetector returns a Detector reading through the given store.
func NewDetector(store Store) *Detector {
    if store == nil {
        panic("nil store passed to NewDetector")
    }
    return &Detector{store: store}
}

// Overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect.  Inputs are zero-padded HH:MM strings, so string order is
// time order.  Two meetings that touch back to back do not overlap.
func Overlaps(s1, e1, s2, e2 string) bool {
    return s1 < e2 && e1 > s2
}

// HasConflict reports whether any non-cancelled reservation on the
// room and date overlaps [startTime, endTime).  excludeID, when
// non-zero, skips that reservation so an update never conflicts with
// its own current row.
func (d *Detector) HasConflict(ctx context.Context, roomID uint64, date time.Time, startTime, endTime string, excludeID uint64) (bool, error) {
    rows, err := d.store.ListActiveByRoomAndDate(ctx, roomID, DateOnly(date))
    if err != nil {
        return false, err
    }
    for _, row := range rows {
        if excludeID != 0 && row.ID == excludeID {
            continue
        }
        if Overlaps(startTime, endTime, row.StartTime, row.EndTime) {
            return true, nil
        }
    }
    return false, nil
}

// ConflictingDates checks every proposed date and returns the complete
// set that collides, as ISO date strings in input order.  Batch
// operations call this so the caller learns about all problems in one
// round trip instead of just the first.  excludeSeriesID, when
// non-empty, ignores rows belonging to that series — used when a
// series is re-patterned against everything except itself.
func (d *Detector) ConflictingDates(ctx context.Context, roomID uint64, dates []time.Time, startTime, endTime string, excludeSeriesID string) ([]string, error) {
    var conflicts []string
    for _, date := range dates {
        rows, err := d.store.ListActiveByRoomAndDate(ctx, roomID, DateOnly(date))
        if err != nil {
            return nil, err
        }
        for _, row := range rows {
            if excludeSeriesID != "" && row.SeriesID != nil && *row.SeriesID == excludeSeriesID {
                continue
            }
            if Overlaps(startTime, endTime, row.StartTime, row.EndTime) {
                conflicts = append(conflicts, date.Format(DateLayout))
                break
            }
        }
    }
    return conflicts, nil
}
