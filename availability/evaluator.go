// Package availability answers whether the restaurant is open at a given
// instant according to its weekly schedule.
//
// The evaluator compares local wall-clock values only: the schedule and the
// supplied time are assumed to share a timezone. Intervals that cross
// midnight (close earlier than open) never match; split them into two days.
// A close of "24:00" ends the interval at midnight.
package availability

import (
	"strings"
	"time"
)

// Verdict is the evaluator's answer. It is advisory: whether a closed verdict
// blocks checkout is decided by the caller.
type Verdict struct {
	Open                    bool   `json:"open"`
	ActiveWindowDescription string `json:"active_window_description"`
	// FailedOpen is set when no schedule was available and Open is true only
	// so commerce is not blocked. Enforcing callers must skip the check.
	FailedOpen bool `json:"failed_open,omitempty"`
}

// Evaluator renders verdicts with configurable labels.
type Evaluator struct {
	ClosedLabel string
	Separator   string
}

// DefaultEvaluator uses the storefront's French closed label.
var DefaultEvaluator = Evaluator{ClosedLabel: "Fermé", Separator: ", "}

// IsOpenNow evaluates schedule at now with DefaultEvaluator.
func IsOpenNow(schedule WeeklySchedule, now time.Time) Verdict {
	return DefaultEvaluator.IsOpenNow(schedule, now)
}

// IsOpenNow reports whether any of today's intervals contains now. A nil
// schedule means the hours source was unreachable or malformed and yields a
// FailedOpen verdict.
func (e Evaluator) IsOpenNow(schedule WeeklySchedule, now time.Time) Verdict {
	if schedule == nil {
		return Verdict{Open: true, FailedOpen: true}
	}

	day, ok := schedule[DayKeyFor(now)]
	if !ok {
		return Verdict{Open: false, ActiveWindowDescription: e.ClosedLabel}
	}
	windows := day.usableWindows()
	if len(windows) == 0 {
		return Verdict{Open: false, ActiveWindowDescription: e.ClosedLabel}
	}

	nowMin := now.Hour()*60 + now.Minute()
	open := false
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		if w.openMin <= nowMin && nowMin < w.closeMin {
			open = true
		}
		parts = append(parts, w.openAt+" - "+w.closeAt)
	}

	return Verdict{Open: open, ActiveWindowDescription: strings.Join(parts, e.Separator)}
}
