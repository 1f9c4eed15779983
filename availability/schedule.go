package availability

import (
	"encoding/json"
	"fmt"
	"time"
)

// DayKey names a weekday independently of locale and platform numbering.
type DayKey string

const (
	Monday    DayKey = "monday"
	Tuesday   DayKey = "tuesday"
	Wednesday DayKey = "wednesday"
	Thursday  DayKey = "thursday"
	Friday    DayKey = "friday"
	Saturday  DayKey = "saturday"
	Sunday    DayKey = "sunday"
)

// Week lists the day keys in business order; the week starts on Monday.
var Week = [7]DayKey{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// DayKeyFor maps t to its day key. time.Weekday counts from Sunday=0, so
// the index is rotated to put Monday first.
func DayKeyFor(t time.Time) DayKey {
	return Week[(int(t.Weekday())+6)%7]
}

// TimeInterval is one opening window of a day.
type TimeInterval struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// DaySchedule is the opening plan of one weekday.
type DaySchedule struct {
	Closed    bool           `json:"closed"`
	Intervals []TimeInterval `json:"intervals"`
}

// UnmarshalJSON accepts both the interval list and the legacy single
// {"open": ..., "close": ...} form.
func (d *DaySchedule) UnmarshalJSON(data []byte) error {
	var raw struct {
		Closed    bool           `json:"closed"`
		Intervals []TimeInterval `json:"intervals"`
		Open      string         `json:"open"`
		Close     string         `json:"close"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Closed = raw.Closed
	d.Intervals = raw.Intervals
	if len(d.Intervals) == 0 && (raw.Open != "" || raw.Close != "") {
		d.Intervals = []TimeInterval{{Open: raw.Open, Close: raw.Close}}
	}
	return nil
}

// WeeklySchedule maps each day key to its plan.
type WeeklySchedule map[DayKey]DaySchedule

// HoursDocument is the body served by the hours endpoint.
type HoursDocument struct {
	Hours WeeklySchedule `json:"hours"`
}

// ParseHoursDocument decodes an hours document. A document without an
// hours object or with an unknown day key is rejected.
func ParseHoursDocument(data []byte) (WeeklySchedule, error) {
	var doc HoursDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode hours document: %w", err)
	}
	if doc.Hours == nil {
		return nil, fmt.Errorf("hours document has no hours object")
	}
	for key := range doc.Hours {
		if !key.Valid() {
			return nil, fmt.Errorf("hours document has unknown day %q", key)
		}
	}
	return doc.Hours, nil
}

// Valid reports whether k is one of the seven day keys.
func (k DayKey) Valid() bool {
	for _, d := range Week {
		if d == k {
			return true
		}
	}
	return false
}

// window is an interval after normalization.
type window struct {
	openAt, closeAt   string
	openMin, closeMin int
}

// usableWindows normalizes the day's intervals and drops those whose ends
// cannot be read as times.
func (d DaySchedule) usableWindows() []window {
	if d.Closed {
		return nil
	}
	out := make([]window, 0, len(d.Intervals))
	for _, iv := range d.Intervals {
		openAt, closeAt := NormalizeTime(iv.Open), NormalizeTime(iv.Close)
		openMin, ok := minutesOf(openAt)
		if !ok {
			continue
		}
		closeMin, ok := minutesOf(closeAt)
		if !ok {
			continue
		}
		out = append(out, window{openAt: openAt, closeAt: closeAt, openMin: openMin, closeMin: closeMin})
	}
	return out
}
