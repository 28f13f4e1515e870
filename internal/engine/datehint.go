package engine

import (
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"lunes":     time.Monday,
	"martes":    time.Tuesday,
	"miercoles": time.Wednesday,
	"miércoles": time.Wednesday,
	"jueves":    time.Thursday,
	"viernes":   time.Friday,
	"sabado":    time.Saturday,
	"sábado":    time.Saturday,
	"domingo":   time.Sunday,
}

// ParseDateHint extracts a rough target date from free Spanish text. The
// scheduling authority receives this only as a search anchor, so a best
// effort is enough; unrecognized text anchors on now.
func ParseDateHint(text string, now time.Time) time.Time {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "pasado mañana") || strings.Contains(lower, "pasado manana") {
		return now.AddDate(0, 0, 2)
	}
	if strings.Contains(lower, "mañana") || strings.Contains(lower, "manana") {
		return now.AddDate(0, 0, 1)
	}
	if strings.Contains(lower, "hoy") {
		return now
	}

	for name, wd := range weekdayNames {
		if !strings.Contains(lower, name) {
			continue
		}
		days := int(wd - now.Weekday())
		if days <= 0 {
			days += 7
		}
		return now.AddDate(0, 0, days)
	}

	// Numeric forms: 15/09 or 15/09/2026.
	for _, field := range strings.Fields(lower) {
		if t, err := time.ParseInLocation("02/01/2006", field, now.Location()); err == nil {
			return t
		}
		if t, err := time.ParseInLocation("02/01", field, now.Location()); err == nil {
			return time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
		}
	}

	return now
}
