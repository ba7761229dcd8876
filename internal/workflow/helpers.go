package workflow

import (
	"fmt"
	"strings"
	"time"

	"bookpilot/internal/logging"
)

// clampRoundIndex clamps a positional slot index into [0, count-1].
// count must be positive.
func clampRoundIndex(idx, count int) int {
	if idx < 0 {
		return 0
	}
	if idx >= count {
		return count - 1
	}
	return idx
}

// checkBookingWindow parses the open-date announcement and reports a
// precondition failure when the window already opened in the past. Text
// that carries no recognizable timestamp is not a failure; the page may
// render the announcement in an unknown shape.
func checkBookingWindow(text string, now time.Time) error {
	openAt, err := parseOpenDate(text)
	if err != nil {
		logging.Get(logging.CategoryWorkflow).Warnf("unparseable open date %q: %v", text, err)
		return nil
	}
	if openAt.Before(now) {
		return &PreconditionError{Reason: "not booking day"}
	}
	return nil
}

// buttonEnabled reports whether a slot button is clickable: no disabled
// attribute and, when the site styles disabled buttons with a class, no
// occurrence of that class.
func buttonEnabled(disabledAttr *string, class, disabledClass string) bool {
	if disabledAttr != nil {
		return false
	}
	if disabledClass != "" && strings.Contains(class, disabledClass) {
		return false
	}
	return true
}

// openDateLayouts lists the timestamp shapes the open-date announcement has
// been seen to carry, most specific first.
var openDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"02.01.2006 15:04",
	"02.01.2006",
}

// parseOpenDate extracts a timestamp from an announcement such as
// "Open: 2026-03-01 09:00:00". Leading label text before the first digit is
// ignored.
func parseOpenDate(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	start := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return time.Time{}, fmt.Errorf("no timestamp in %q", text)
	}
	s = strings.TrimSpace(s[start:])

	for _, layout := range openDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
		// The timestamp may have trailing text after it.
		if len(s) > len(layout) {
			if t, err := time.ParseInLocation(layout, strings.TrimSpace(s[:len(layout)]), time.Local); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
