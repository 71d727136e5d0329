// Package market provides the trading session calendar and the market data
// stream feeding the pipeline.
package market

import "time"

// Regular US equity session, extended by SessionBuffer on both ends.
const (
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0

	// SessionBuffer widens the tradable window around the official session.
	SessionBuffer = 30 * time.Minute
)

// Eastern is the exchange timezone used for every session computation.
var Eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Containers without tzdata still get correct winter offsets; the
		// replay/stub paths never cross a DST boundary in one session.
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}()

// Full-day NYSE closures. Half days are traded as normal sessions here; the
// session-close exit fires at the official close either way.
var nyseHolidays = map[string]struct{}{
	"2025-01-01": {}, "2025-01-20": {}, "2025-02-17": {}, "2025-04-18": {},
	"2025-05-26": {}, "2025-06-19": {}, "2025-07-04": {}, "2025-09-01": {},
	"2025-11-27": {}, "2025-12-25": {},
	"2026-01-01": {}, "2026-01-19": {}, "2026-02-16": {}, "2026-04-03": {},
	"2026-05-25": {}, "2026-06-19": {}, "2026-07-03": {}, "2026-09-07": {},
	"2026-11-26": {}, "2026-12-25": {},
}

// NowEastern returns the current time in the exchange timezone.
func NowEastern() time.Time {
	return time.Now().In(Eastern)
}

// IsMarketHoliday reports whether the exchange is closed all day.
func IsMarketHoliday(moment time.Time) bool {
	day := moment.In(Eastern)
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return true
	}
	_, holiday := nyseHolidays[day.Format("2006-01-02")]
	return holiday
}

// WithinTradingWindow reports whether moment falls inside the buffered
// session of its own trading day.
func WithinTradingWindow(moment time.Time) bool {
	if IsMarketHoliday(moment) {
		return false
	}
	start, end := SessionBounds(moment)
	m := moment.In(Eastern)
	return !m.Before(start) && !m.After(end)
}

// SessionBounds returns the buffered open and close of the session on day.
func SessionBounds(day time.Time) (time.Time, time.Time) {
	d := day.In(Eastern)
	open := time.Date(d.Year(), d.Month(), d.Day(), openHour, openMinute, 0, 0, Eastern)
	close := time.Date(d.Year(), d.Month(), d.Day(), closeHour, closeMinute, 0, 0, Eastern)
	return open.Add(-SessionBuffer), close.Add(SessionBuffer)
}

// NextSessionOpen returns the buffered open of the first session strictly
// after the given time.
func NextSessionOpen(after time.Time) time.Time {
	probe := after.In(Eastern)
	for {
		probe = probe.AddDate(0, 0, 1)
		if IsMarketHoliday(probe) {
			continue
		}
		start, _ := SessionBounds(probe)
		if start.After(after) {
			return start
		}
	}
}
