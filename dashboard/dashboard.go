// Package dashboard holds the page controller for the habit dashboard: one
// ViewState per session, re-aggregated from storage on every refresh.
//
// ViewState is client-side state. It sits in front of any HabitStore, so a
// frontend pointed at the REST backend gets the same aggregation and display
// rules the server applies; the server itself keeps serving the raw progress
// endpoints and does not hold ViewStates.
package dashboard

import (
	"context"
	"time"

	"github.com/habithive/habithive/models"
	"github.com/habithive/habithive/progress"
	storage "github.com/habithive/habithive/storage/persistent"
)

// ViewState is the rendered state of one user's dashboard. All view fields
// are derived; Refresh recomputes them wholesale from the backend, which is
// the only source of truth after any edit.
type ViewState struct {
	store storage.HabitStore
	owner string
	now   func() time.Time

	Habits []models.Habit
	Today  map[string]bool
	Week   map[string]progress.WeekSummary

	CalendarYear  int
	CalendarMonth time.Month
	Calendar      map[string]progress.DaySummary
}

// NewViewState builds a dashboard controller for one user. The calendar
// starts on the current month.
func NewViewState(store storage.HabitStore, owner string) *ViewState {
	now := time.Now()
	return &ViewState{
		store:         store,
		owner:         owner,
		now:           time.Now,
		CalendarYear:  now.Year(),
		CalendarMonth: now.Month(),
	}
}

// Refresh re-pulls habits and completions and rebuilds every view map.
func (v *ViewState) Refresh(ctx context.Context) error {
	habits, err := v.store.ListActiveHabits(ctx, v.owner)
	if err != nil {
		return err
	}

	// One full pull serves the week maps and the calendar both.
	records, err := v.store.ListCompletions(ctx, v.owner, nil)
	if err != nil {
		return err
	}

	now := v.now()
	v.Habits = habits
	v.Today = progress.TodayMap(habits, records, now)
	v.Week = progress.WeekMap(habits, records, now)
	v.Calendar = progress.MonthMap(habits, records, v.CalendarYear, v.CalendarMonth)
	return nil
}

// VisibleHabits returns the habits shown in the primary list: habits that
// completed all 7 window days are hidden. Display-only; the full set stays
// in Habits and in every aggregation map.
func (v *ViewState) VisibleHabits() []models.Habit {
	out := make([]models.Habit, 0, len(v.Habits))
	for _, h := range v.Habits {
		if summary, ok := v.Week[h.Key()]; ok && summary.Count == progress.WindowSize {
			continue
		}
		out = append(out, h)
	}
	return out
}

// CompletedTodayPercent returns the share of active habits completed today,
// 0-100. An empty dashboard reads as 0.
func (v *ViewState) CompletedTodayPercent() int {
	if len(v.Habits) == 0 {
		return 0
	}
	done := 0
	for _, h := range v.Habits {
		if v.Today[h.Key()] {
			done++
		}
	}
	return done * 100 / len(v.Habits)
}

// Window returns the date keys of the current 7-day strip, today first.
func (v *ViewState) Window() []string {
	return progress.LastNDatesFrom(v.now(), progress.WindowSize)
}

// SetMonth points the calendar at a month and recomputes only the month map.
// Habits are re-pulled too so a habit archived since the last Refresh drops
// out of the calendar immediately.
func (v *ViewState) SetMonth(ctx context.Context, year int, month time.Month) error {
	v.CalendarYear = year
	v.CalendarMonth = month

	habits, err := v.store.ListActiveHabits(ctx, v.owner)
	if err != nil {
		return err
	}
	records, err := v.store.ListCompletions(ctx, v.owner, nil)
	if err != nil {
		return err
	}
	v.Calendar = progress.MonthMap(habits, records, year, month)
	return nil
}

// NextMonth advances the calendar one month.
func (v *ViewState) NextMonth(ctx context.Context) error {
	year, month := v.CalendarYear, v.CalendarMonth+1
	if month > time.December {
		year, month = year+1, time.January
	}
	return v.SetMonth(ctx, year, month)
}

// PrevMonth moves the calendar one month back.
func (v *ViewState) PrevMonth(ctx context.Context) error {
	year, month := v.CalendarYear, v.CalendarMonth-1
	if month < time.January {
		year, month = year-1, time.December
	}
	return v.SetMonth(ctx, year, month)
}
