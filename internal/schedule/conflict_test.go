package schedule

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/facility-reservation/internal/model"
)

func TestOverlaps(t *testing.T) {
    cases := []struct {
        name           string
        s1, e1, s2, e2 string
        want           bool
    }{
        {"identical intervals", "09:00", "10:00", "09:00", "10:00", true},
        {"partial overlap", "09:00", "10:30", "10:00", "11:00", true},
        {"containment", "09:00", "12:00", "10:00", "11:00", true},
        {"back to back", "09:00", "10:00", "10:00", "11:00", false},
        {"disjoint", "08:00", "09:00", "10:00", "11:00", false},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            assert.Equal(t, tc.want, Overlaps(tc.s1, tc.e1, tc.s2, tc.e2))
            assert.Equal(t, tc.want, Overlaps(tc.s2, tc.e2, tc.s1, tc.e1), "overlap must be symmetric")
        })
    }
}

func TestHasConflict(t *testing.T) {
    ctx := context.Background()
    store := newMemStore()
    det := NewDetector(store)

    existing := &model.Reservation{
        RoomID:    1,
        UserID:    7,
        Date:      day(t, "2025-04-10"),
        StartTime: "09:00",
        EndTime:   "10:00",
        Status:    model.StatusConfirmed,
    }
    require.NoError(t, store.Insert(ctx, existing))

    t.Run("overlap detected", func(t *testing.T) {
        got, err := det.HasConflict(ctx, 1, day(t, "2025-04-10"), "09:30", "10:30", 0)
        require.NoError(t, err)
        assert.True(t, got)
    })

    t.Run("different room is free", func(t *testing.T) {
        got, err := det.HasConflict(ctx, 2, day(t, "2025-04-10"), "09:30", "10:30", 0)
        require.NoError(t, err)
        assert.False(t, got)
    })

    t.Run("excluded row never conflicts with itself", func(t *testing.T) {
        got, err := det.HasConflict(ctx, 1, day(t, "2025-04-10"), "09:00", "10:00", existing.ID)
        require.NoError(t, err)
        assert.False(t, got)
    })

    t.Run("cancelled rows are inert", func(t *testing.T) {
        cancelled := model.StatusCancelled
        require.NoError(t, store.Update(ctx, existing.ID, FieldPatch{Status: &cancelled}))
        got, err := det.HasConflict(ctx, 1, day(t, "2025-04-10"), "09:00", "10:00", 0)
        require.NoError(t, err)
        assert.False(t, got)
    })
}

func TestConflictingDatesReportsFullSet(t *testing.T) {
    ctx := context.Background()
    store := newMemStore()
    det := NewDetector(store)

    for _, d := range []string{"2025-04-07", "2025-04-21"} {
        require.NoError(t, store.Insert(ctx, &model.Reservation{
            RoomID:    1,
            UserID:    7,
            Date:      day(t, d),
            StartTime: "14:00",
            EndTime:   "15:00",
            Status:    model.StatusPending,
        }))
    }

    proposed := parseDays(t, "2025-04-07", "2025-04-14", "2025-04-21", "2025-04-28")
    got, err := det.ConflictingDates(ctx, 1, proposed, "14:30", "15:30", "")
    require.NoError(t, err)
    assert.Equal(t, []string{"2025-04-07", "2025-04-21"}, got, "every offending date must be reported")
}

func parseDays(t *testing.T, ss ...string) []time.Time {
    t.Helper()
    out := make([]time.Time, 0, len(ss))
    for _, s := range ss {
        out = append(out, day(t, s))
    }
    return out
}
