package storage

import (
	"context"
	"time"

	"github.com/habithive/habithive/models"
)

// ObserveFunc receives the duration of one storage operation.
type ObserveFunc func(backend, op string, d time.Duration)

// instrumentedStore wraps a Store and reports per-operation durations.
type instrumentedStore struct {
	inner   Store
	backend string
	observe ObserveFunc
}

// WithInstrumentation decorates a Store so every operation's duration is
// reported through observe.
func WithInstrumentation(inner Store, backend string, observe ObserveFunc) Store {
	return &instrumentedStore{inner: inner, backend: backend, observe: observe}
}

func (s *instrumentedStore) timed(op string) func() {
	start := time.Now()
	return func() { s.observe(s.backend, op, time.Since(start)) }
}

func (s *instrumentedStore) Connect(dbName, uri string) error { return s.inner.Connect(dbName, uri) }
func (s *instrumentedStore) Disconnect() error                { return s.inner.Disconnect() }

func (s *instrumentedStore) ListActiveHabits(ctx context.Context, ownerID string) ([]models.Habit, error) {
	defer s.timed("list_active_habits")()
	return s.inner.ListActiveHabits(ctx, ownerID)
}

func (s *instrumentedStore) GetHabit(ctx context.Context, ownerID, habitRef string) (*models.Habit, error) {
	defer s.timed("get_habit")()
	return s.inner.GetHabit(ctx, ownerID, habitRef)
}

func (s *instrumentedStore) CreateHabit(ctx context.Context, ownerID string, habit *models.Habit) (*models.Habit, error) {
	defer s.timed("create_habit")()
	return s.inner.CreateHabit(ctx, ownerID, habit)
}

func (s *instrumentedStore) UpdateHabit(ctx context.Context, ownerID, habitRef string, update models.HabitUpdate) error {
	defer s.timed("update_habit")()
	return s.inner.UpdateHabit(ctx, ownerID, habitRef, update)
}

func (s *instrumentedStore) DeleteHabit(ctx context.Context, ownerID, habitRef string) error {
	defer s.timed("delete_habit")()
	return s.inner.DeleteHabit(ctx, ownerID, habitRef)
}

func (s *instrumentedStore) ListCompletions(ctx context.Context, ownerID string, dateKeys []string) ([]models.CompletionRecord, error) {
	defer s.timed("list_completions")()
	return s.inner.ListCompletions(ctx, ownerID, dateKeys)
}

func (s *instrumentedStore) SetCompletion(ctx context.Context, ownerID, habitRef, dateKey string, done bool) error {
	defer s.timed("set_completion")()
	return s.inner.SetCompletion(ctx, ownerID, habitRef, dateKey, done)
}

func (s *instrumentedStore) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	defer s.timed("add_user")()
	return s.inner.AddUser(ctx, user)
}

func (s *instrumentedStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer s.timed("find_user_by_email")()
	return s.inner.FindUserByEmail(ctx, email)
}

func (s *instrumentedStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	defer s.timed("find_user_by_id")()
	return s.inner.FindUserByID(ctx, id)
}

func (s *instrumentedStore) ListUsers(ctx context.Context) ([]models.User, error) {
	defer s.timed("list_users")()
	return s.inner.ListUsers(ctx)
}

func (s *instrumentedStore) AddJournalEntry(ctx context.Context, ownerID string, entry *models.JournalEntry) (*models.JournalEntry, error) {
	defer s.timed("add_journal_entry")()
	return s.inner.AddJournalEntry(ctx, ownerID, entry)
}

func (s *instrumentedStore) ListJournalEntries(ctx context.Context, ownerID string, limit int) ([]models.JournalEntry, error) {
	defer s.timed("list_journal_entries")()
	return s.inner.ListJournalEntries(ctx, ownerID, limit)
}
