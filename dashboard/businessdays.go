package dashboard

import "time"

// BusinessDaysBetween counts the weekdays from one date to another,
// inclusive of both endpoints, so a weekday counts itself: Monday to the
// same Monday is 1 and Monday to Friday is 5. When to is before from the
// forward count is negated so overdue dates read as a deficit. Times of
// day are ignored.
func BusinessDaysBetween(from, to time.Time) int {
	start := truncateToDay(from)
	end := truncateToDay(to)

	if end.Before(start) {
		return -BusinessDaysBetween(to, from)
	}

	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
