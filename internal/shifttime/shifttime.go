package shifttime

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidShiftTime = errors.New("invalid shift time")

type Lateness struct {
	IsLate      bool `json:"is_late"`
	LateMinutes int  `json:"late_minutes"`
}

// ParseClock parses an "HH:MM" shift boundary.
func ParseClock(value string) (hour int, minute int, err error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidShiftTime, value)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

// ShiftStartOn anchors an "HH:MM" start to the calendar day of at, in at's location.
func ShiftStartOn(at time.Time, start string) (time.Time, error) {
	hour, minute, err := ParseClock(start)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(at.Year(), at.Month(), at.Day(), hour, minute, 0, 0, at.Location()), nil
}

// ComputeLateness reports lateness of clockIn against shiftStart on the same day.
// Any positive delay counts as at least one late minute.
func ComputeLateness(clockIn time.Time, shiftStart string) (Lateness, error) {
	start, err := ShiftStartOn(clockIn, shiftStart)
	if err != nil {
		return Lateness{}, err
	}
	if !clockIn.After(start) {
		return Lateness{}, nil
	}
	minutes := int(clockIn.Sub(start) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return Lateness{IsLate: true, LateMinutes: minutes}, nil
}

// WorkHours is the raw elapsed time in hours; ordering is the caller's concern.
func WorkHours(clockIn time.Time, clockOut time.Time) float64 {
	return clockOut.Sub(clockIn).Hours()
}

func RoundHours(hours float64) float64 {
	return math.Round(hours*100) / 100
}
