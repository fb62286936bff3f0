package tool

import (
	"fmt"
	"strings"
	"time"
)

// SlotLayout is the clinic's human date-time format.
const SlotLayout = "02-01-2006 15:04"

var (
	slotLayouts = []string{SlotLayout, "2006-01-02 15:04", "2006-01-02T15:04"}
	dateLayouts = []string{"02-01-2006", "2006-01-02"}
)

// FormatSlot renders t for tool arguments.
func FormatSlot(t time.Time) string {
	return t.Format(time.RFC3339)
}

// ParseSlot accepts RFC3339 or a clinic-local date-time.
func ParseSlot(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range slotLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("slot %q is not RFC3339 or %s", raw, SlotLayout)
}

// ParseDate accepts a clinic-local date or anything ParseSlot accepts and
// returns midnight of that day.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	t, err := ParseSlot(raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not DD-MM-YYYY or YYYY-MM-DD", raw)
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), nil
}
