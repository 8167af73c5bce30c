package schedule

import (
    "time"

    "github.com/iliyamo/facility-reservation/internal/model"
)

// DateLayout is the ISO calendar date format used across the API.
const DateLayout = "2006-01-02"

// TimeLayout is the zero-padded time-of-day format for start and end
// times.  Keeping times as HH:MM strings makes lexicographic order
// equal chronological order, which the conflict detector relies on.
const TimeLayout = "15:04"

// DateOnly strips the clock from t, leaving midnight UTC of the same
// calendar day.  All expansion and conflict arithmetic operates on
// these normalized values.
func DateOnly(t time.Time) time.Time {
    return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ValidTimeOfDay reports whether s is a well-formed zero-padded HH:MM
// string.
func ValidTimeOfDay(s string) bool {
    if len(s) != 5 {
        return false
    }
    _, err := time.Parse(TimeLayout, s)
    return err == nil
}

// ValidateRule checks a recurrence rule against its anchor date before
// any expansion work happens.  An unbounded or malformed rule is a
// validation error, not a scheduler concern.
func ValidateRule(anchor time.Time, rule model.RecurrenceRule) error {
    if anchor.IsZero() {
        return validationf("anchor date is required")
    }
    if rule.EndDate.IsZero() {
        return validationf("recurrence end date is required")
    }
    if DateOnly(rule.EndDate).Before(DateOnly(anchor)) {
        return validationf("recurrence end date %s is before anchor date %s",
            rule.EndDate.Format(DateLayout), anchor.Format(DateLayout))
    }
    switch rule.Pattern {
    case model.PatternDaily:
        // no extra fields
    case model.PatternWeekly:
        for _, wd := range rule.Weekdays {
            if wd < time.Sunday || wd > time.Saturday {
                return validationf("invalid weekday %d in weekly rule", wd)
            }
        }
    case model.PatternMonthly:
        if rule.WeekOfMonth != 0 {
            if rule.WeekOfMonth < 1 || rule.WeekOfMonth > model.WeekLast {
                return validationf("week of month must be 1..4 or %d for last, got %d", model.WeekLast, rule.WeekOfMonth)
            }
            if rule.Weekday == nil {
                return validationf("monthly nth-weekday rule requires a weekday")
            }
        }
    default:
        return validationf("unknown recurrence pattern %q", rule.Pattern)
    }
    return nil
}

// Expand turns a recurrence rule and its anchor date into the ordered
// sequence of occurrence dates.  The anchor date is always the first
// element; every element is strictly after the previous one and at or
// before the rule's end date.  Expansion is deterministic and free of
// side effects.  maxOccurrences bounds the output (<= 0 selects
// DefaultMaxOccurrences); exceeding the bound is a validation error.
func Expand(anchor time.Time, rule model.RecurrenceRule, maxOccurrences int) ([]time.Time, error) {
    if err := ValidateRule(anchor, rule); err != nil {
        return nil, err
    }
    if maxOccurrences <= 0 {
        maxOccurrences = DefaultMaxOccurrences
    }
    start := DateOnly(anchor)
    end := DateOnly(rule.EndDate)
    out := []time.Time{start}

    switch rule.Pattern {
    case model.PatternDaily:
        for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
            out = append(out, d)
            if len(out) > maxOccurrences {
                return nil, validationf("rule expands beyond %d occurrences", maxOccurrences)
            }
        }

    case model.PatternWeekly:
        if rule.HasWeekdaySet() {
            set := make(map[time.Weekday]bool, len(rule.Weekdays))
            for _, wd := range rule.Weekdays {
                set[wd] = true
            }
            // Walk day by day from the day after the anchor; keep dates
            // whose weekday is in the set.  The anchor itself is always
            // included regardless of its weekday.
            for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
                if !set[d.Weekday()] {
                    continue
                }
                out = append(out, d)
                if len(out) > maxOccurrences {
                    return nil, validationf("rule expands beyond %d occurrences", maxOccurrences)
                }
            }
        } else {
            for d := start.AddDate(0, 0, 7); !d.After(end); d = d.AddDate(0, 0, 7) {
                out = append(out, d)
                if len(out) > maxOccurrences {
                    return nil, validationf("rule expands beyond %d occurrences", maxOccurrences)
                }
            }
        }

    case model.PatternMonthly:
        if rule.IsNthWeekday() {
            for i := 1; ; i++ {
                first := time.Date(start.Year(), start.Month()+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
                if first.After(end) {
                    break
                }
                // A month without the requested nth weekday contributes no
                // occurrence; expansion continues to the next month.
                occ, ok := NthWeekdayOfMonth(first.Year(), first.Month(), rule.WeekOfMonth, *rule.Weekday)
                if !ok || occ.After(end) {
                    continue
                }
                out = append(out, occ)
                if len(out) > maxOccurrences {
                    return nil, validationf("rule expands beyond %d occurrences", maxOccurrences)
                }
            }
        } else {
            // Same day-of-month each month.  Months shorter than the
            // anchor's day contribute no occurrence (no clamping), mirroring
            // the nth-weekday skip rule.
            day := start.Day()
            for i := 1; ; i++ {
                first := time.Date(start.Year(), start.Month()+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
                if first.After(end) {
                    break
                }
                if day > daysIn(first.Year(), first.Month()) {
                    continue
                }
                occ := time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
                if occ.After(end) {
                    continue
                }
                out = append(out, occ)
                if len(out) > maxOccurrences {
                    return nil, validationf("rule expands beyond %d occurrences", maxOccurrences)
                }
            }
        }
    }
    return out, nil
}

// NthWeekdayOfMonth computes the date of the nth occurrence of weekday
// wd in the given month.  week 1..4 counts from the month's first day;
// model.WeekLast counts backward from the month's last day.  ok is
// false when the month has no such occurrence (e.g. a 4th Tuesday
// requested in a month that runs out of Tuesdays).
func NthWeekdayOfMonth(year int, month time.Month, week int, wd time.Weekday) (occ time.Time, ok bool) {
    last := daysIn(year, month)
    if week == model.WeekLast {
        lastDay := time.Date(year, month, last, 0, 0, 0, 0, time.UTC)
        back := (int(lastDay.Weekday()) - int(wd) + 7) % 7
        return time.Date(year, month, last-back, 0, 0, 0, 0, time.UTC), true
    }
    first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
    offset := (int(wd) - int(first.Weekday()) + 7) % 7
    day := 1 + offset + (week-1)*7
    if day > last {
        return time.Time{}, false
    }
    return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
}

// daysIn returns the number of days in the month.  Day zero of the
// following month normalizes to the last day of this one.
func daysIn(year int, month time.Month) int {
    return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
