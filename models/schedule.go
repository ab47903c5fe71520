package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ScheduleTrigger selects how a Schedule repeats.
type ScheduleTrigger string

const (
	ScheduleDaily    ScheduleTrigger = "Daily"
	ScheduleWeekly   ScheduleTrigger = "Weekly"
	ScheduleInterval ScheduleTrigger = "Interval"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

// Schedule is a time-based refresh trigger for one list. Clock times are
// UTC.
type Schedule struct {
	Trigger ScheduleTrigger `json:"trigger"`
	// TimeOfDay is "HH:MM" for Daily and Weekly schedules.
	TimeOfDay       string `json:"timeOfDay,omitempty"`
	DayOfWeek       string `json:"dayOfWeek,omitempty"`
	IntervalMinutes int    `json:"intervalMinutes,omitempty"`
}

// Next returns the first fire time strictly after after.
func (s Schedule) Next(after time.Time) (time.Time, error) {
	after = after.UTC()
	switch s.Trigger {
	case ScheduleInterval:
		if s.IntervalMinutes <= 0 {
			return time.Time{}, fmt.Errorf("%w: intervalMinutes must be positive", ErrInvalidSchedule)
		}
		return after.Add(time.Duration(s.IntervalMinutes) * time.Minute), nil

	case ScheduleDaily, ScheduleWeekly:
		clock, err := time.Parse("15:04", strings.TrimSpace(s.TimeOfDay))
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timeOfDay %q is not HH:MM", ErrInvalidSchedule, s.TimeOfDay)
		}
		next := time.Date(after.Year(), after.Month(), after.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)
		if s.Trigger == ScheduleDaily {
			if !next.After(after) {
				next = next.AddDate(0, 0, 1)
			}
			return next, nil
		}

		day, ok := parseWeekday(s.DayOfWeek)
		if !ok {
			return time.Time{}, fmt.Errorf("%w: unknown dayOfWeek %q", ErrInvalidSchedule, s.DayOfWeek)
		}
		next = next.AddDate(0, 0, (int(day)-int(next.Weekday())+7)%7)
		if !next.After(after) {
			next = next.AddDate(0, 0, 7)
		}
		return next, nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown trigger %q", ErrInvalidSchedule, s.Trigger)
}

func parseWeekday(v string) (time.Weekday, bool) {
	v = strings.TrimSpace(v)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), v) {
			return d, true
		}
	}
	return time.Sunday, false
}

// NextScheduledRun returns the earliest fire time of the list's valid
// schedules after after.
func (l SmartList) NextScheduledRun(after time.Time) (time.Time, bool) {
	var earliest time.Time
	for _, s := range l.Schedules {
		next, err := s.Next(after)
		if err != nil {
			continue
		}
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest, !earliest.IsZero()
}
