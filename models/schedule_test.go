package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleNext(t *testing.T) {
	// Wednesday.
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		s    Schedule
		want time.Time
	}{
		{name: "interval", s: Schedule{Trigger: ScheduleInterval, IntervalMinutes: 90}, want: now.Add(90 * time.Minute)},
		{name: "daily later today", s: Schedule{Trigger: ScheduleDaily, TimeOfDay: "18:30"}, want: time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC)},
		{name: "daily already passed", s: Schedule{Trigger: ScheduleDaily, TimeOfDay: "03:00"}, want: time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC)},
		{name: "daily exactly now", s: Schedule{Trigger: ScheduleDaily, TimeOfDay: "12:00"}, want: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)},
		{name: "weekly later this week", s: Schedule{Trigger: ScheduleWeekly, DayOfWeek: "friday", TimeOfDay: "08:00"}, want: time.Date(2024, 5, 3, 8, 0, 0, 0, time.UTC)},
		{name: "weekly same day later", s: Schedule{Trigger: ScheduleWeekly, DayOfWeek: "Wednesday", TimeOfDay: "20:00"}, want: time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)},
		{name: "weekly same day passed", s: Schedule{Trigger: ScheduleWeekly, DayOfWeek: "Wednesday", TimeOfDay: "06:00"}, want: time.Date(2024, 5, 8, 6, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.s.Next(now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScheduleNextRejectsBadDefinitions(t *testing.T) {
	for _, s := range []Schedule{
		{Trigger: ScheduleInterval},
		{Trigger: ScheduleDaily, TimeOfDay: "25:00"},
		{Trigger: ScheduleWeekly, TimeOfDay: "08:00", DayOfWeek: "someday"},
		{Trigger: "Hourly"},
	} {
		_, err := s.Next(time.Now())
		assert.ErrorIs(t, err, ErrInvalidSchedule, s)
	}
}

func TestNextScheduledRunPicksEarliestValid(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := SmartList{Schedules: []Schedule{
		{Trigger: ScheduleDaily, TimeOfDay: "bad"},
		{Trigger: ScheduleDaily, TimeOfDay: "20:00"},
		{Trigger: ScheduleInterval, IntervalMinutes: 30},
	}}
	next, ok := l.NextScheduledRun(now)
	require.True(t, ok)
	assert.Equal(t, now.Add(30*time.Minute), next)

	_, ok = SmartList{}.NextScheduledRun(now)
	assert.False(t, ok)
}

func TestOrderingDefaults(t *testing.T) {
	by, order := SmartList{}.Ordering()
	assert.Equal(t, SortByName, by)
	assert.Equal(t, SortAscending, order)

	by, order = SmartList{SortBy: SortByCommunityRating, SortOrder: SortDescending}.Ordering()
	assert.Equal(t, SortByCommunityRating, by)
	assert.Equal(t, SortDescending, order)
}
