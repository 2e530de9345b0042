package progress

import (
	"fmt"
	"time"

	"github.com/habithive/habithive/models"
)

// WindowSize is the number of days shown in the rolling history strip,
// including today.
const WindowSize = 7

// DayKey formats t as the canonical YYYY-MM-DD date key using the local
// calendar date of t. Two records belong to the same day iff their keys
// are equal.
func DayKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02d", t.Year(), int(t.Month()), t.Day())
}

// ParseDayKey parses a canonical date key back into its calendar day.
// The returned time is midnight local time of that day.
func ParseDayKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", key, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return t, nil
}

// LastNDatesFrom returns exactly n date keys starting at the calendar day of
// base, today first, each step one calendar day earlier.
func LastNDatesFrom(base time.Time, n int) []string {
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		d := time.Date(base.Year(), base.Month(), base.Day()-i, 0, 0, 0, 0, base.Location())
		keys = append(keys, DayKey(d))
	}
	return keys
}

// LastNDates is LastNDatesFrom anchored at the current wall-clock date.
// Callers must not cache the result across a day boundary.
func LastNDates(n int) []string {
	return LastNDatesFrom(time.Now(), n)
}

// WeekSummary describes one habit's completions inside the current window.
type WeekSummary struct {
	Count int             `json:"count"`
	Days  map[string]bool `json:"days"`
}

// DaySummary describes one calendar day in the month view: how many habits
// were completed and which, in first-seen order.
type DaySummary struct {
	Count    int      `json:"count"`
	HabitIDs []string `json:"habit_ids"`
}

// activeOnly filters out archived habits. Inactive habits are invisible to
// every aggregation map.
func activeOnly(habits []models.Habit) []models.Habit {
	out := make([]models.Habit, 0, len(habits))
	for _, h := range habits {
		if h.IsActive {
			out = append(out, h)
		}
	}
	return out
}

// TodayMap reports, per active habit key, whether a completion record exists
// for the calendar day of now. Habits without a record are absent from the
// map; callers treat absence as false.
func TodayMap(habits []models.Habit, records []models.CompletionRecord, now time.Time) map[string]bool {
	today := DayKey(now)
	done := make(map[string]bool)
	for _, r := range records {
		if r.Date == today {
			done[r.HabitID] = true
		}
	}

	out := make(map[string]bool)
	for _, h := range activeOnly(habits) {
		if done[h.ID] || done[h.Key()] {
			out[h.Key()] = true
		}
	}
	return out
}

// WeekMap buckets completion records into the 7-day window anchored at now,
// per active habit. Duplicate records for the same (habit, date) count once.
// A habit with no records in the window yields {Count: 0, Days: {}}.
func WeekMap(habits []models.Habit, records []models.CompletionRecord, now time.Time) map[string]WeekSummary {
	window := make(map[string]bool, WindowSize)
	for _, k := range LastNDatesFrom(now, WindowSize) {
		window[k] = true
	}

	byHabit := make(map[string]map[string]bool)
	for _, r := range records {
		if !window[r.Date] {
			continue
		}
		if byHabit[r.HabitID] == nil {
			byHabit[r.HabitID] = make(map[string]bool)
		}
		byHabit[r.HabitID][r.Date] = true
	}

	out := make(map[string]WeekSummary)
	for _, h := range activeOnly(habits) {
		days := byHabit[h.ID]
		if days == nil {
			days = byHabit[h.Key()]
		}
		if days == nil {
			days = map[string]bool{}
		}
		out[h.Key()] = WeekSummary{Count: len(days), Days: days}
	}
	return out
}

// MonthMap buckets every completion record falling in the given month of the
// given year, regardless of window membership. Records of archived habits
// are dropped like in every other map. HabitIDs are listed in first-seen
// order and deduplicated per day.
func MonthMap(habits []models.Habit, records []models.CompletionRecord, year int, month time.Month) map[string]DaySummary {
	prefix := fmt.Sprintf("%04d-%02d-", year, int(month))

	allowed := make(map[string]bool)
	for _, h := range activeOnly(habits) {
		allowed[h.ID] = true
		allowed[h.Key()] = true
	}

	out := make(map[string]DaySummary)
	seen := make(map[string]map[string]bool)
	for _, r := range records {
		if !allowed[r.HabitID] {
			continue
		}
		if len(r.Date) != 10 || r.Date[:8] != prefix {
			continue
		}
		if seen[r.Date] == nil {
			seen[r.Date] = make(map[string]bool)
		}
		if seen[r.Date][r.HabitID] {
			continue
		}
		seen[r.Date][r.HabitID] = true

		day := out[r.Date]
		day.Count++
		day.HabitIDs = append(day.HabitIDs, r.HabitID)
		out[r.Date] = day
	}
	return out
}
