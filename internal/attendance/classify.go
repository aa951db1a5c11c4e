package attendance

import (
	"fmt"
	"time"
)

// Kind distinguishes the two person populations with different daily
// attendance semantics.
type Kind string

const (
	KindStudent Kind = "student"
	KindStaff   Kind = "staff"
)

// Status is the daily attendance classification.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// ClockTime is a time of day in minutes since midnight. Shift thresholds and
// punch times are compared in this form so classification is independent of
// the date and zone the wall-clock time arrived in.
type ClockTime int

// At converts a wall-clock time to its minute of day.
func At(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

// ParseClockTime parses "HH:MM" or "HH:MM:SS".
func ParseClockTime(s string) (ClockTime, error) {
	layout := "15:04"
	if len(s) == len("15:04:05") {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("clock time %q: %w", s, err)
	}
	return At(t), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Shift carries the assigned schedule thresholds read from roster
// configuration. All three are times of day on the punch's date.
type Shift struct {
	Start       ClockTime // on-time boundary, inclusive
	LateAfter   ClockTime // late threshold, inclusive
	AbsentAfter ClockTime // absent cutoff, exclusive
}

// Classify maps a punch time of day to a status under the shift thresholds.
//
// Boundary policy: punching exactly at start is present, exactly at the late
// threshold is late, and exactly at the absent cutoff is still late; only a
// punch strictly after the cutoff is absent. Staff have no absent-by-time
// state, so the cutoff collapses to late for them. A person with no assigned
// shift is present regardless of time.
func Classify(shift *Shift, punch ClockTime, kind Kind) Status {
	if shift == nil {
		return StatusPresent
	}
	switch {
	case punch <= shift.Start:
		return StatusPresent
	case punch <= shift.LateAfter:
		return StatusLate
	case kind == KindStudent && punch > shift.AbsentAfter:
		return StatusAbsent
	default:
		return StatusLate
	}
}

// LateMinutes returns how many minutes past shift start a late punch landed.
// Zero for present or absent, and always zero without a shift.
func LateMinutes(shift *Shift, punch ClockTime, status Status) int {
	if shift == nil || status != StatusLate {
		return 0
	}
	return int(punch - shift.Start)
}
