package plan

import (
	"fmt"
	"time"
)

// Period is the reset cadence of a quota window.
type Period string

const (
	Day   Period = "day"
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
)

// ParsePeriod converts a string into a Period.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown period %q", ErrInvalidDefinition, s)
	}
	return p, nil
}

func (p Period) String() string { return string(p) }

func (p Period) Valid() bool {
	switch p {
	case Day, Week, Month, Year:
		return true
	}
	return false
}

// Window returns the calendar-aligned window containing now.
// Windows are computed in UTC: days start at midnight, weeks on Monday,
// months on the first day and years on January 1st. The end is exclusive
// and equals the start of the next window. Unknown periods use monthly windows.
func (p Period) Window(now time.Time) (start, end time.Time) {
	n := now.UTC()
	midnight := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)

	switch p {
	case Day:
		return midnight, midnight.AddDate(0, 0, 1)
	case Week:
		offset := (int(midnight.Weekday()) + 6) % 7
		start = midnight.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case Year:
		start = time.Date(n.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	default:
		start = time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
}

// Unlimited marks a limit that is never enforced.
const Unlimited int64 = -1

// Limit is the quota of one action for one tier.
type Limit struct {
	Max    int64  `json:"max"`
	Period Period `json:"period"`
}

// IsUnlimited reports whether the limit skips quota bookkeeping.
func (l Limit) IsUnlimited() bool { return l.Max == Unlimited }

// Remaining returns how much of the limit is left after used.
// Unlimited limits always report Unlimited.
func (l Limit) Remaining(used int64) int64 {
	if l.IsUnlimited() {
		return Unlimited
	}
	return max(l.Max-used, 0)
}
