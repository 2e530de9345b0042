package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habithive/habithive/models"
)

func newStoreWithHabit(t *testing.T) (*MemoryStore, *models.Habit) {
	t.Helper()
	s := NewMemoryStore()
	h, err := s.CreateHabit(context.Background(), "u1", &models.Habit{Name: "Read"})
	require.NoError(t, err)
	return s, h
}

func TestCreateHabitAssignsDefaults(t *testing.T) {
	_, h := newStoreWithHabit(t)

	assert.NotEmpty(t, h.ID)
	assert.Equal(t, "u1", h.UserID)
	assert.True(t, h.IsActive)
	assert.Equal(t, "General", h.Category)
	assert.Equal(t, models.PrivacyPublic, h.Privacy)
	assert.False(t, h.CreatedAt.IsZero())
}

func TestCreateHabitRejectsBlankName(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.CreateHabit(context.Background(), "u1", &models.Habit{Name: "   "})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	habits, err := s.ListActiveHabits(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, habits, "nothing stored for rejected input")
}

func TestCreateHabitRejectsDuplicateName(t *testing.T) {
	s, _ := newStoreWithHabit(t)

	_, err := s.CreateHabit(context.Background(), "u1", &models.Habit{Name: "Read"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// Same name under a different owner is fine.
	_, err = s.CreateHabit(context.Background(), "u2", &models.Habit{Name: "Read"})
	require.NoError(t, err)
}

func TestListActiveHabitsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	older := &models.Habit{Name: "Older", CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	newer := &models.Habit{Name: "Newer", CreatedAt: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	_, err := s.CreateHabit(context.Background(), "u1", older)
	require.NoError(t, err)
	_, err = s.CreateHabit(context.Background(), "u1", newer)
	require.NoError(t, err)

	habits, err := s.ListActiveHabits(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, habits, 2)
	assert.Equal(t, "Newer", habits[0].Name)
	assert.Equal(t, "Older", habits[1].Name)
}

func TestGetHabitByIDOrName(t *testing.T) {
	s, h := newStoreWithHabit(t)

	byID, err := s.GetHabit(context.Background(), "u1", h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.ID, byID.ID)

	byName, err := s.GetHabit(context.Background(), "u1", "Read")
	require.NoError(t, err)
	assert.Equal(t, h.ID, byName.ID)

	_, err = s.GetHabit(context.Background(), "u2", h.ID)
	assert.ErrorIs(t, err, ErrNotFound, "habits are scoped to their owner")
}

func TestUpdateHabitLeavesNilFieldsUntouched(t *testing.T) {
	s, h := newStoreWithHabit(t)

	desc := "20 pages a day"
	err := s.UpdateHabit(context.Background(), "u1", h.ID, models.HabitUpdate{Description: &desc})
	require.NoError(t, err)

	got, err := s.GetHabit(context.Background(), "u1", h.ID)
	require.NoError(t, err)
	assert.Equal(t, desc, got.Description)
	assert.Equal(t, "General", got.Category)
	assert.Equal(t, "Read", got.Name)

	err = s.UpdateHabit(context.Background(), "u1", "missing", models.HabitUpdate{Description: &desc})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveHabitKeepsRecords(t *testing.T) {
	s, h := newStoreWithHabit(t)
	ctx := context.Background()

	require.NoError(t, s.SetCompletion(ctx, "u1", h.ID, "2024-03-15", true))

	archived := false
	require.NoError(t, s.UpdateHabit(ctx, "u1", h.ID, models.HabitUpdate{IsActive: &archived}))

	habits, err := s.ListActiveHabits(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, habits)

	// Unlike delete, archiving does not cascade.
	records, err := s.ListCompletions(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	got, err := s.GetHabit(ctx, "u1", h.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestSetCompletionIsIdempotent(t *testing.T) {
	s, h := newStoreWithHabit(t)
	ctx := context.Background()

	// Committing the same true twice leaves exactly one record.
	require.NoError(t, s.SetCompletion(ctx, "u1", h.ID, "2024-03-15", true))
	require.NoError(t, s.SetCompletion(ctx, "u1", h.ID, "2024-03-15", true))

	records, err := s.ListCompletions(ctx, "u1", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-03-15", records[0].Date)

	// Unmarking twice is equally safe.
	require.NoError(t, s.SetCompletion(ctx, "u1", h.ID, "2024-03-15", false))
	require.NoError(t, s.SetCompletion(ctx, "u1", h.ID, "2024-03-15", false))

	records, err = s.ListCompletions(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSetCompletionUnknownHabit(t *testing.T) {
	s := NewMemoryStore()
	err := s.SetCompletion(context.Background(), "u1", "missing", "2024-03-15", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCompletionsDateFilter(t *testing.T) {
	s, h := newStoreWithHabit(t)
	ctx := context.Background()

	for _, date := range []string{"2024-03-15", "2024-03-14", "2024-02-01"} {
		require.NoError(t, s.SetCompletion(ctx, "u1", h.ID, date, true))
	}

	records, err := s.ListCompletions(ctx, "u1", []string{"2024-03-15", "2024-03-14"})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	all, err := s.ListCompletions(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3, "nil filter means a full pull")
}

func TestDeleteHabitCascadesCompletions(t *testing.T) {
	s, h := newStoreWithHabit(t)
	ctx := context.Background()

	require.NoError(t, s.SetCompletion(ctx, "u1", h.ID, "2024-03-15", true))
	require.NoError(t, s.DeleteHabit(ctx, "u1", "Read"))

	_, err := s.GetHabit(ctx, "u1", h.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	records, err := s.ListCompletions(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.ErrorIs(t, s.DeleteHabit(ctx, "u1", "Read"), ErrNotFound)
}

func TestUserAccounts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	u, err := s.AddUser(ctx, &models.User{Username: "ana", Email: "ana@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)

	_, err = s.AddUser(ctx, &models.User{Username: "ana2", Email: "ana@example.com"})
	require.Error(t, err, "duplicate email rejected")

	byEmail, err := s.FindUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = s.FindUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	byID, err := s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana", byID.Username)
}

func TestJournalEntriesNewestFirstWithLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second", "third"} {
		_, err := s.AddJournalEntry(ctx, "u1", &models.JournalEntry{
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	_, err := s.AddJournalEntry(ctx, "u1", &models.JournalEntry{Content: "  "})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	entries, err := s.ListJournalEntries(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0].Content)
	assert.Equal(t, "second", entries[1].Content)

	all, err := s.ListJournalEntries(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestInstrumentationObservesOps(t *testing.T) {
	var ops []string
	store := WithInstrumentation(NewMemoryStore(), "memory", func(backend, op string, d time.Duration) {
		assert.Equal(t, "memory", backend)
		ops = append(ops, op)
	})

	_, err := store.CreateHabit(context.Background(), "u1", &models.Habit{Name: "Read"})
	require.NoError(t, err)
	_, err = store.ListActiveHabits(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, []string{"create_habit", "list_active_habits"}, ops)
}

func TestFactoryRejectsUnknownBackend(t *testing.T) {
	_, err := NewHabitStore("postgres", "", "")
	assert.Error(t, err)

	_, err = NewStore("rest", "", "")
	assert.Error(t, err, "the REST client cannot serve as a server store")
}
