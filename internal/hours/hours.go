// Package hours answers whether a campaign may send right now and, if
// not, when it next may. All hour comparisons happen in the window's own
// timezone; mixing host-local and UTC readings is exactly the bug class
// this package exists to avoid.
package hours

import (
	"log"
	"time"

	"github.com/unclebandit/dripsend-backend/internal/model"
)

// maxReasonableWait guards against timezone-offset mistakes producing a
// nonsensical multi-day wait. Longer results are still returned, but
// loudly.
const maxReasonableWait = 25 * time.Hour

// IsAllowedNow reports whether the window permits sending at now.
// A disabled or invalid window always allows: availability over
// strictness for a misconfigured non-critical feature.
func IsAllowedNow(cfg model.BusinessHours, now time.Time) bool {
	if !cfg.Enabled {
		return true
	}
	if !validWindow(cfg) {
		log.Printf("hours: invalid window config %+v, treating as always allowed", cfg)
		return true
	}

	t := now.In(location(cfg))
	if cfg.ExcludeWeekends && isWeekend(t) {
		return false
	}
	h := t.Hour()
	if h < cfg.StartHour || h >= cfg.EndHour {
		return false
	}
	if cfg.ExcludeLunchBreak && h >= cfg.LunchStart && h < cfg.LunchEnd {
		return false
	}
	return true
}

// NextAllowedInstant returns the earliest instant >= now at which the
// window allows sending. If sending is allowed now, it returns now.
func NextAllowedInstant(cfg model.BusinessHours, now time.Time) time.Time {
	if IsAllowedNow(cfg, now) {
		return now
	}

	loc := location(cfg)
	t := now.In(loc)

	var candidate time.Time
	h := t.Hour()
	switch {
	case cfg.ExcludeLunchBreak && h >= cfg.LunchStart && h < cfg.LunchEnd &&
		h >= cfg.StartHour && cfg.LunchEnd < cfg.EndHour &&
		!(cfg.ExcludeWeekends && isWeekend(t)):
		// Mid-lunch on a working day: resume when lunch ends.
		candidate = time.Date(t.Year(), t.Month(), t.Day(), cfg.LunchEnd, 0, 0, 0, loc)
	case h < cfg.StartHour:
		candidate = time.Date(t.Year(), t.Month(), t.Day(), cfg.StartHour, 0, 0, 0, loc)
	default:
		candidate = time.Date(t.Year(), t.Month(), t.Day(), cfg.StartHour, 0, 0, 0, loc).AddDate(0, 0, 1)
	}

	if cfg.ExcludeWeekends {
		for isWeekend(candidate) {
			candidate = candidate.AddDate(0, 0, 1)
		}
	}

	if wait := candidate.Sub(now); wait > maxReasonableWait {
		log.Printf("hours: next allowed instant is %s away (window %+v), check the window timezone", wait, cfg)
	}
	return candidate
}

func validWindow(cfg model.BusinessHours) bool {
	if cfg.StartHour < 0 || cfg.StartHour > 23 || cfg.EndHour < 1 || cfg.EndHour > 24 {
		return false
	}
	if cfg.StartHour >= cfg.EndHour {
		return false
	}
	if cfg.ExcludeLunchBreak {
		if cfg.LunchStart < 0 || cfg.LunchEnd > 24 || cfg.LunchStart >= cfg.LunchEnd {
			return false
		}
	}
	return true
}

func location(cfg model.BusinessHours) *time.Location {
	if cfg.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Printf("hours: unknown timezone %q, falling back to UTC", cfg.Timezone)
		return time.UTC
	}
	return loc
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
