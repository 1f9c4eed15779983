package availability

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	clock24 = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	clock12 = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
)

// endOfDay is accepted as a closing time meaning midnight at the end of the day.
const endOfDay = "24:00"

// NormalizeTime converts the time formats found in hours documents to
// "HH:MM". Input it cannot read is returned unchanged.
func NormalizeTime(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))

	if m := clock24.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h == 24 && min == 0 {
			return endOfDay
		}
		if h > 23 || min > 59 {
			return raw
		}
		return fmt.Sprintf("%02d:%02d", h, min)
	}

	m := clock12.FindStringSubmatch(s)
	if m == nil {
		return raw
	}
	h, _ := strconv.Atoi(m[1])
	min := 0
	if m[2] != "" {
		min, _ = strconv.Atoi(m[2])
	}
	if min > 59 {
		return raw
	}

	switch m[3] {
	case "am":
		if h < 1 || h > 12 {
			return raw
		}
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 1 || h > 12 {
			return raw
		}
		if h != 12 {
			h += 12
		}
	default:
		if h > 23 {
			return raw
		}
	}
	return fmt.Sprintf("%02d:%02d", h, min)
}

// minutesOf parses a normalized "HH:MM" into minutes since midnight.
func minutesOf(hhmm string) (int, bool) {
	m := clock24.FindStringSubmatch(hhmm)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if h == 24 && min == 0 {
		return 24 * 60, true
	}
	if h > 23 || min > 59 {
		return 0, false
	}
	return h*60 + min, true
}
