package tasks

import "time"

func locationOrUTC(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func hourInTimeZone(now time.Time, tz string) int {
	return now.In(locationOrUTC(tz)).Hour()
}

// editionDateInTimeZone maps now to the user's local calendar day, expressed
// as a UTC midnight. Each pulse edition is keyed by this date.
func editionDateInTimeZone(now time.Time, tz string) time.Time {
	local := now.In(locationOrUTC(tz))
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateKey(editionDate time.Time) string {
	return editionDate.Format("2006-01-02")
}

// eligibleNow decides whether a user's local hour falls in the enqueue
// window. The soft variant stays eligible for the rest of the day once the
// window opens, so a worker outage during the window does not skip a whole
// day; strict confines enqueueing to the window itself.
func eligibleNow(hour, startHour, endHour int, strict bool) bool {
	start := ((startHour % 24) + 24) % 24
	end := ((endHour % 24) + 24) % 24

	if !strict {
		return hour >= start
	}
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	// Wrap-around window, e.g. 22 -> 2.
	return hour >= start || hour < end
}
