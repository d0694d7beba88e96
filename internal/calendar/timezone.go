package calendar

import "time"

// easternLocation loads America/New_York, the calendar source's fixed
// timezone. Loaded once at package init so callers never juggle tzdata
// lookup errors.
var easternLocation *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// time/tzdata isn't vendored everywhere; fall back to a fixed -5h
		// offset (standard time) rather than fail scrape construction.
		// DST transitions are lost in this fallback path.
		loc = time.FixedZone("EST", -5*60*60)
	}
	easternLocation = loc
}

// EasternToUTC converts a naive (year, month, day, hour, minute) reading in
// the source's Eastern-US timezone to UTC, honoring DST. Ambiguous
// fall-back hours (the repeated hour when clocks move back) resolve to the
// first, pre-shift occurrence per spec.
func EasternToUTC(year int, month time.Month, day, hour, minute int) time.Time {
	t := time.Date(year, month, day, hour, minute, 0, 0, easternLocation)
	return resolveAmbiguous(t, year, month, day, hour, minute).UTC()
}

// resolveAmbiguous re-derives t using the zone offset in effect just before
// the requested wall-clock time, so that a repeated fall-back hour is
// pinned to its first (pre-shift) occurrence rather than whatever the
// standard library's arbitrary tie-break picks.
func resolveAmbiguous(t time.Time, year int, month time.Month, day, hour, minute int) time.Time {
	before := time.Date(year, month, day, hour, minute, 0, 0, easternLocation).Add(-2 * time.Hour)
	_, beforeOffset := before.Zone()
	_, atOffset := t.Zone()
	if beforeOffset == atOffset {
		return t
	}
	// Offsets differ across this instant: rebuild using the earlier
	// (pre-shift) offset so the ambiguous hour resolves to its first pass.
	// If that reading does not show the requested wall clock in Eastern
	// time, the hour is not ambiguous and t already holds the answer.
	fixed := time.Date(year, month, day, hour, minute, 0, 0, time.FixedZone("", beforeOffset))
	if wall := fixed.In(easternLocation); wall.Hour() != hour || wall.Minute() != minute {
		return t
	}
	return fixed
}
