package schedule

// DefaultMaxOccurrences bounds how many occurrences a single rule may
// expand into when no explicit cap is configured.
const DefaultMaxOccurrences = 500

// Settings carries the venue-level configuration the Manager needs.
// It is passed in at construction time and never read from ambient
// global state, so the scheduler stays independently testable.
//
// OpenTime and CloseTime are "HH:MM" strings bounding the bookable
// window of a day; empty strings disable the check.  MaxOccurrences
// caps rule expansion.
type Settings struct {
    OpenTime       string
    CloseTime      string
    MaxOccurrences int
}

// DefaultSettings returns settings with no venue-hour restriction and
// the default expansion cap.
func DefaultSettings() Settings {
    return Settings{MaxOccurrences: DefaultMaxOccurrences}
}

// withinHours reports whether [start, end) lies inside the venue's
// bookable window.  Zero-padded HH:MM strings compare correctly as
// plain strings.
func (s Settings) withinHours(start, end string) bool {
    if s.OpenTime != "" && start < s.OpenTime {
        return false
    }
    if s.CloseTime != "" && end > s.CloseTime {
        return false
    }
    return true
}
