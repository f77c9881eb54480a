package util

import (
	"time"
)

// nyLoc is resolved once; falls back to fixed UTC-5 if the tz database is
// unavailable.
var nyLoc = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}()

// IsMarketOpen reports whether t falls inside US regular trading hours
// (NYSE 9:30-16:00 ET, Monday-Friday). Exchange holidays are not modelled;
// orders submitted on a holiday simply queue at the broker.
func IsMarketOpen(t time.Time) bool {
	et := t.In(nyLoc)
	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := et.Hour()*60 + et.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}

// NextOpen returns the next regular-session open at or after t.
func NextOpen(t time.Time) time.Time {
	et := t.In(nyLoc)
	for {
		open := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, nyLoc)
		if et.Before(open) && open.Weekday() != time.Saturday && open.Weekday() != time.Sunday {
			return open
		}
		et = time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, nyLoc).AddDate(0, 0, 1)
	}
}
