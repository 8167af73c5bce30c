package schedule

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/facility-reservation/internal/model"
)

func newTestManager(store *memStore, notifier Notifier) *Manager {
    return NewManager(store, noopLocker{}, notifier, DefaultSettings())
}

func weeklyRule(t *testing.T, end string) model.RecurrenceRule {
    t.Helper()
    return model.RecurrenceRule{Pattern: model.PatternWeekly, EndDate: day(t, end)}
}

func booking(t *testing.T, date string) BookingRequest {
    t.Helper()
    return BookingRequest{
        RoomID:    1,
        UserID:    7,
        Date:      day(t, date),
        StartTime: "09:00",
        EndTime:   "10:00",
        Purpose:   "standup",
    }
}

func occupy(t *testing.T, store *memStore, roomID uint64, date, start, end string) {
    t.Helper()
    require.NoError(t, store.Insert(context.Background(), &model.Reservation{
        RoomID:    roomID,
        UserID:    99,
        Date:      day(t, date),
        StartTime: start,
        EndTime:   end,
        Status:    model.StatusConfirmed,
    }))
}

func TestCreateSingle(t *testing.T) {
    ctx := context.Background()

    t.Run("books a free slot", func(t *testing.T) {
        store := newMemStore()
        notifier := &recordingNotifier{}
        mgr := newTestManager(store, notifier)

        res, err := mgr.CreateSingle(ctx, booking(t, "2025-05-05"))
        require.NoError(t, err)
        assert.NotZero(t, res.ID)
        assert.Equal(t, model.StatusPending, res.Status)
        assert.Equal(t, model.RoleNone, res.Membership().Role)
        assert.Equal(t, []string{EventCreated}, notifier.recorded())
    })

    t.Run("rejects an occupied slot", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        occupy(t, store, 1, "2025-05-05", "09:30", "11:00")

        _, err := mgr.CreateSingle(ctx, booking(t, "2025-05-05"))
        var cErr *ConflictError
        require.ErrorAs(t, err, &cErr)
        assert.Equal(t, []string{"2025-05-05"}, cErr.Dates)
        assert.Equal(t, 1, store.count(), "no row may be created on conflict")
    })

    t.Run("back-to-back bookings coexist", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        occupy(t, store, 1, "2025-05-05", "08:00", "09:00")

        _, err := mgr.CreateSingle(ctx, booking(t, "2025-05-05"))
        require.NoError(t, err)
    })

    t.Run("validates input before touching the store", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)

        req := booking(t, "2025-05-05")
        req.EndTime = "09:00" // equal to start
        _, err := mgr.CreateSingle(ctx, req)
        var vErr *ValidationError
        require.ErrorAs(t, err, &vErr)
        assert.Zero(t, store.count())
    })

    t.Run("enforces venue hours", func(t *testing.T) {
        store := newMemStore()
        mgr := NewManager(store, noopLocker{}, nil, Settings{OpenTime: "08:00", CloseTime: "18:00", MaxOccurrences: 100})

        req := booking(t, "2025-05-05")
        req.StartTime, req.EndTime = "07:00", "08:30"
        _, err := mgr.CreateSingle(ctx, req)
        var vErr *ValidationError
        require.ErrorAs(t, err, &vErr)
    })
}

func TestCreateSeries(t *testing.T) {
    ctx := context.Background()

    t.Run("commits anchor and children together", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)

        members, err := mgr.CreateSeries(ctx, booking(t, "2025-05-05"), weeklyRule(t, "2025-05-26"))
        require.NoError(t, err)
        require.Len(t, members, 4)

        anchor := members[0]
        require.NotNil(t, anchor.SeriesID)
        require.NotNil(t, anchor.Rule)
        assert.Equal(t, model.RoleAnchor, anchor.Membership().Role)
        for _, child := range members[1:] {
            assert.Equal(t, model.RoleChild, child.Membership().Role)
            require.NotNil(t, child.ParentID)
            assert.Equal(t, anchor.ID, *child.ParentID)
            assert.Equal(t, *anchor.SeriesID, *child.SeriesID)
            assert.Nil(t, child.Rule, "only the anchor carries the rule")
        }
    })

    t.Run("all or nothing on conflict", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        occupy(t, store, 1, "2025-05-12", "09:00", "10:00")
        occupy(t, store, 1, "2025-05-26", "09:30", "09:45")

        _, err := mgr.CreateSeries(ctx, booking(t, "2025-05-05"), weeklyRule(t, "2025-05-26"))
        var cErr *ConflictError
        require.ErrorAs(t, err, &cErr)
        assert.Equal(t, []string{"2025-05-12", "2025-05-26"}, cErr.Dates, "conflict must name every offending date")
        assert.Equal(t, 2, store.count(), "no partial series may be created")
    })

    t.Run("notify failure does not fail the booking", func(t *testing.T) {
        store := newMemStore()
        notifier := &recordingNotifier{failWith: errors.New("broker down")}
        mgr := newTestManager(store, notifier)

        _, err := mgr.CreateSeries(ctx, booking(t, "2025-05-05"), weeklyRule(t, "2025-05-19"))
        require.NoError(t, err)
        assert.Equal(t, []string{EventCreated}, notifier.recorded())
    })
}

func TestConvertToSeries(t *testing.T) {
    ctx := context.Background()

    t.Run("promotes a singleton", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        single, err := mgr.CreateSingle(ctx, booking(t, "2025-05-05"))
        require.NoError(t, err)

        members, err := mgr.ConvertToSeries(ctx, single.ID, weeklyRule(t, "2025-05-19"))
        require.NoError(t, err)
        require.Len(t, members, 3)
        assert.Equal(t, single.ID, members[0].ID, "the singleton becomes the anchor")

        stored, err := store.GetByID(ctx, single.ID)
        require.NoError(t, err)
        assert.Equal(t, model.RoleAnchor, stored.Membership().Role)
        require.NotNil(t, stored.Rule)
    })

    t.Run("rejects a reservation already in a series", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        members, err := mgr.CreateSeries(ctx, booking(t, "2025-05-05"), weeklyRule(t, "2025-05-19"))
        require.NoError(t, err)

        _, err = mgr.ConvertToSeries(ctx, members[1].ID, weeklyRule(t, "2025-06-30"))
        var sErr *StateError
        require.ErrorAs(t, err, &sErr)
    })

    t.Run("unknown reservation", func(t *testing.T) {
        mgr := newTestManager(newMemStore(), nil)
        _, err := mgr.ConvertToSeries(ctx, 12345, weeklyRule(t, "2025-06-30"))
        assert.ErrorIs(t, err, ErrNotFound)
    })

    t.Run("conflict on a new date leaves the singleton untouched", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        single, err := mgr.CreateSingle(ctx, booking(t, "2025-05-05"))
        require.NoError(t, err)
        occupy(t, store, 1, "2025-05-12", "09:00", "10:00")

        _, err = mgr.ConvertToSeries(ctx, single.ID, weeklyRule(t, "2025-05-19"))
        var cErr *ConflictError
        require.ErrorAs(t, err, &cErr)
        assert.Equal(t, []string{"2025-05-12"}, cErr.Dates)

        stored, err := store.GetByID(ctx, single.ID)
        require.NoError(t, err)
        assert.Equal(t, model.RoleNone, stored.Membership().Role)
    })
}

func TestExtendSeries(t *testing.T) {
    ctx := context.Background()

    setup := func(t *testing.T) (*memStore, *Manager, string) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        members, err := mgr.CreateSeries(ctx, booking(t, "2025-05-05"), weeklyRule(t, "2025-05-19"))
        require.NoError(t, err)
        return store, mgr, *members[0].SeriesID
    }

    t.Run("appends occurrences in phase", func(t *testing.T) {
        store, mgr, seriesID := setup(t)

        added, err := mgr.ExtendSeries(ctx, seriesID, day(t, "2025-06-02"))
        require.NoError(t, err)
        assert.Equal(t, []string{"2025-05-26", "2025-06-02"}, dateStrings(memberDates(added)))

        members, err := store.ListBySeries(ctx, seriesID)
        require.NoError(t, err)
        assert.Len(t, members, 5)
    })

    t.Run("rejects an end date not after the latest occurrence", func(t *testing.T) {
        _, mgr, seriesID := setup(t)
        _, err := mgr.ExtendSeries(ctx, seriesID, day(t, "2025-05-19"))
        var vErr *ValidationError
        require.ErrorAs(t, err, &vErr)
    })

    t.Run("conflict leaves the stored end date unchanged", func(t *testing.T) {
        store, mgr, seriesID := setup(t)
        occupy(t, store, 1, "2025-06-02", "09:00", "10:00")

        _, err := mgr.ExtendSeries(ctx, seriesID, day(t, "2025-06-02"))
        var cErr *ConflictError
        require.ErrorAs(t, err, &cErr)
        assert.Equal(t, []string{"2025-06-02"}, cErr.Dates)

        members, err := store.ListBySeries(ctx, seriesID)
        require.NoError(t, err)
        assert.Len(t, members, 3, "no occurrence may be added on conflict")
        for _, m := range members {
            if m.Rule != nil {
                assert.Equal(t, "2025-05-19", m.Rule.EndDate.Format(DateLayout))
            }
        }
    })

    t.Run("latest occurrence is computed across all members", func(t *testing.T) {
        store, mgr, seriesID := setup(t)
        // Give the series an off-pattern member on the date the
        // extension will reach; it must not count as a conflict.
        _, err := mgr.AddDate(ctx, seriesID, day(t, "2025-05-21"))
        require.NoError(t, err)

        added, err := mgr.ExtendSeries(ctx, seriesID, day(t, "2025-05-26"))
        require.NoError(t, err)
        assert.Len(t, added, 1)

        members, err := store.ListBySeries(ctx, seriesID)
        require.NoError(t, err)
        assert.Len(t, members, 5)
    })

    t.Run("unknown series", func(t *testing.T) {
        mgr := newTestManager(newMemStore(), nil)
        _, err := mgr.ExtendSeries(ctx, "no-such-series", day(t, "2025-06-02"))
        assert.ErrorIs(t, err, ErrNotFound)
    })
}

func TestEditMonthlyPattern(t *testing.T) {
    ctx := context.Background()

    monthlySeries := func(t *testing.T) (*memStore, *Manager, string) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        sat := time.Saturday
        rule := model.RecurrenceRule{
            Pattern:     model.PatternMonthly,
            WeekOfMonth: 2,
            Weekday:     &sat,
            EndDate:     day(t, "2024-04-30"),
        }
        members, err := mgr.CreateSeries(ctx, booking(t, "2024-01-13"), rule)
        require.NoError(t, err)
        return store, mgr, *members[0].SeriesID
    }

    t.Run("recreates the series on the new cadence", func(t *testing.T) {
        store, mgr, seriesID := monthlySeries(t)

        members, err := mgr.EditMonthlyPattern(ctx, seriesID, 1, time.Monday)
        require.NoError(t, err)
        // First Mondays from January 2024 through the end date.
        assert.Equal(t, []string{"2024-01-01", "2024-02-05", "2024-03-04", "2024-04-01"},
            dateStrings(memberDates(members)))

        stored, err := store.ListBySeries(ctx, seriesID)
        require.NoError(t, err)
        assert.Len(t, stored, 4, "old children must be gone")
    })

    t.Run("anchor keeps its identity across the rebuild", func(t *testing.T) {
        store, mgr, seriesID := monthlySeries(t)
        before, err := store.ListBySeries(ctx, seriesID)
        require.NoError(t, err)
        var anchorID uint64
        for _, m := range before {
            if m.Membership().Role == model.RoleAnchor {
                anchorID = m.ID
            }
        }

        members, err := mgr.EditMonthlyPattern(ctx, seriesID, 1, time.Monday)
        require.NoError(t, err)
        assert.Equal(t, anchorID, members[0].ID)
        require.NotNil(t, members[0].Rule)
        assert.Equal(t, 1, members[0].Rule.WeekOfMonth)
    })

    t.Run("rejects non-monthly series", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        members, err := mgr.CreateSeries(ctx, booking(t, "2025-05-05"), weeklyRule(t, "2025-05-19"))
        require.NoError(t, err)

        _, err = mgr.EditMonthlyPattern(ctx, *members[0].SeriesID, 1, time.Monday)
        var sErr *StateError
        require.ErrorAs(t, err, &sErr)
    })

    t.Run("rejects an out-of-range week", func(t *testing.T) {
        _, mgr, seriesID := monthlySeries(t)
        _, err := mgr.EditMonthlyPattern(ctx, seriesID, 7, time.Monday)
        var vErr *ValidationError
        require.ErrorAs(t, err, &vErr)
    })

    t.Run("conflict keeps the old pattern", func(t *testing.T) {
        store, mgr, seriesID := monthlySeries(t)
        occupy(t, store, 1, "2024-02-05", "09:00", "10:00") // first Monday of February

        _, err := mgr.EditMonthlyPattern(ctx, seriesID, 1, time.Monday)
        var cErr *ConflictError
        require.ErrorAs(t, err, &cErr)

        stored, err := store.ListBySeries(ctx, seriesID)
        require.NoError(t, err)
        for _, m := range stored {
            if m.Rule != nil {
                assert.Equal(t, 2, m.Rule.WeekOfMonth, "pattern must be unchanged")
            }
        }
    })
}

func TestAddDate(t *testing.T) {
    ctx := context.Background()
    store := newMemStore()
    mgr := newTestManager(store, nil)
    members, err := mgr.CreateSeries(ctx, booking(t, "2025-05-05"), weeklyRule(t, "2025-05-19"))
    require.NoError(t, err)
    seriesID := *members[0].SeriesID

    t.Run("patches in an off-pattern occurrence", func(t *testing.T) {
        child, err := mgr.AddDate(ctx, seriesID, day(t, "2025-05-07"))
        require.NoError(t, err)
        assert.Equal(t, model.RoleChild, child.Membership().Role)
        assert.Equal(t, "2025-05-07", child.DateKey())
        assert.Nil(t, child.Rule, "the rule stays untouched")
    })

    t.Run("rejects a conflicting date", func(t *testing.T) {
        occupy(t, store, 1, "2025-05-08", "09:30", "10:30")
        _, err := mgr.AddDate(ctx, seriesID, day(t, "2025-05-08"))
        var cErr *ConflictError
        require.ErrorAs(t, err, &cErr)
        assert.Equal(t, []string{"2025-05-08"}, cErr.Dates)
    })
}

func TestUpdate(t *testing.T) {
    ctx := context.Background()

    t.Run("single scope slot move re-checks conflicts", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        res, err := mgr.CreateSingle(ctx, booking(t, "2025-05-05"))
        require.NoError(t, err)
        occupy(t, store, 1, "2025-05-06", "09:00", "10:00")

        moved := day(t, "2025-05-06")
        err = mgr.Update(ctx, res.ID, FieldPatch{Date: &moved}, ScopeSingle)
        var cErr *ConflictError
        require.ErrorAs(t, err, &cErr)

        free := day(t, "2025-05-07")
        require.NoError(t, mgr.Update(ctx, res.ID, FieldPatch{Date: &free}, ScopeSingle))
        stored, err := store.GetByID(ctx, res.ID)
        require.NoError(t, err)
        assert.Equal(t, "2025-05-07", stored.DateKey())
    })

    t.Run("updating times in place does not conflict with itself", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        res, err := mgr.CreateSingle(ctx, booking(t, "2025-05-05"))
        require.NoError(t, err)

        start, end := "09:30", "10:30"
        require.NoError(t, mgr.Update(ctx, res.ID, FieldPatch{StartTime: &start, EndTime: &end}, ScopeSingle))
    })

    t.Run("group scope keeps per-member dates", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        members, err := mgr.CreateSeries(ctx, booking(t, "2025-05-05"), weeklyRule(t, "2025-05-19"))
        require.NoError(t, err)

        purpose := "weekly sync"
        moved := day(t, "2025-07-01")
        // The date in a group patch must be ignored, not applied.
        require.NoError(t, mgr.Update(ctx, members[0].ID, FieldPatch{Purpose: &purpose, Date: &moved}, ScopeGroup))

        stored, err := store.ListBySeries(ctx, *members[0].SeriesID)
        require.NoError(t, err)
        got := dateStrings(memberDates(stored))
        assert.ElementsMatch(t, []string{"2025-05-05", "2025-05-12", "2025-05-19"}, got)
        for _, m := range stored {
            assert.Equal(t, "weekly sync", m.Purpose)
        }
    })

    t.Run("group scope on a singleton is a state error", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        res, err := mgr.CreateSingle(ctx, booking(t, "2025-05-05"))
        require.NoError(t, err)

        purpose := "x"
        err = mgr.Update(ctx, res.ID, FieldPatch{Purpose: &purpose}, ScopeGroup)
        var sErr *StateError
        require.ErrorAs(t, err, &sErr)
    })

    t.Run("group time change ignores the series' own rows", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        members, err := mgr.CreateSeries(ctx, booking(t, "2025-05-05"), weeklyRule(t, "2025-05-19"))
        require.NoError(t, err)

        // 09:30-10:30 overlaps every member's current 09:00-10:00 slot;
        // only rows outside the series may veto the change.
        start, end := "09:30", "10:30"
        require.NoError(t, mgr.Update(ctx, members[0].ID, FieldPatch{StartTime: &start, EndTime: &end}, ScopeGroup))

        stored, err := store.GetByID(ctx, members[1].ID)
        require.NoError(t, err)
        assert.Equal(t, "09:30", stored.StartTime)
    })

    t.Run("group time change checks every member date", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        members, err := mgr.CreateSeries(ctx, booking(t, "2025-05-05"), weeklyRule(t, "2025-05-19"))
        require.NoError(t, err)
        occupy(t, store, 1, "2025-05-12", "10:00", "11:00")

        start, end := "10:00", "11:00"
        err = mgr.Update(ctx, members[0].ID, FieldPatch{StartTime: &start, EndTime: &end}, ScopeGroup)
        var cErr *ConflictError
        require.ErrorAs(t, err, &cErr)
        assert.Equal(t, []string{"2025-05-12"}, cErr.Dates)

        stored, err := store.GetByID(ctx, members[0].ID)
        require.NoError(t, err)
        assert.Equal(t, "09:00", stored.StartTime, "times must be unchanged after a rejected group edit")
    })

    t.Run("empty patch is a validation error", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        res, err := mgr.CreateSingle(ctx, booking(t, "2025-05-05"))
        require.NoError(t, err)

        err = mgr.Update(ctx, res.ID, FieldPatch{}, ScopeSingle)
        var vErr *ValidationError
        require.ErrorAs(t, err, &vErr)
    })
}

func TestCancel(t *testing.T) {
    ctx := context.Background()

    t.Run("single cancellation frees the slot immediately", func(t *testing.T) {
        store := newMemStore()
        notifier := &recordingNotifier{}
        mgr := newTestManager(store, notifier)
        res, err := mgr.CreateSingle(ctx, booking(t, "2025-05-05"))
        require.NoError(t, err)

        require.NoError(t, mgr.Cancel(ctx, res.ID, ScopeSingle))

        stored, err := store.GetByID(ctx, res.ID)
        require.NoError(t, err)
        assert.Equal(t, model.StatusCancelled, stored.Status)
        assert.Contains(t, notifier.recorded(), EventCancelled)

        // The identical slot can be booked again right away.
        rebooked, err := mgr.CreateSingle(ctx, booking(t, "2025-05-05"))
        require.NoError(t, err)
        assert.NotEqual(t, res.ID, rebooked.ID)
    })

    t.Run("group cancellation flips every member, deletes none", func(t *testing.T) {
        store := newMemStore()
        mgr := newTestManager(store, nil)
        members, err := mgr.CreateSeries(ctx, booking(t, "2025-05-05"), weeklyRule(t, "2025-05-19"))
        require.NoError(t, err)

        require.NoError(t, mgr.Cancel(ctx, members[1].ID, ScopeGroup))

        stored, err := store.ListBySeries(ctx, *members[0].SeriesID)
        require.NoError(t, err)
        require.Len(t, stored, 3, "cancellation must not delete rows")
        for _, m := range stored {
            assert.Equal(t, model.StatusCancelled, m.Status)
        }
    })
}

func TestPurge(t *testing.T) {
    ctx := context.Background()
    store := newMemStore()
    mgr := newTestManager(store, nil)
    members, err := mgr.CreateSeries(ctx, booking(t, "2025-05-05"), weeklyRule(t, "2025-05-19"))
    require.NoError(t, err)

    require.NoError(t, mgr.Purge(ctx, members[0].ID, ScopeGroup))
    assert.Zero(t, store.count(), "purge physically removes the series")
}

func memberDates(members []*model.Reservation) []time.Time {
    out := make([]time.Time, 0, len(members))
    for _, m := range members {
        out = append(out, DateOnly(m.Date))
    }
    return out
}
