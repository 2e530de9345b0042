package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/habithive/habithive/models"
)

// MemoryStore is an in-process HabitStore used by tests and the dev backend.
// It mirrors the semantics of the persistent backends: idempotent
// upsert-by-date completions, newest-first habit listing, hard deletes.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]models.User             // user id -> user
	habits  map[string]models.Habit            // habit id -> habit
	done    map[string]models.CompletionRecord // user|habit|date -> record
	journal []models.JournalEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]models.User),
		habits: make(map[string]models.Habit),
		done:   make(map[string]models.CompletionRecord),
	}
}

// Connect is a no-op; the memory store needs no backing service.
func (s *MemoryStore) Connect(dbName, uri string) error { return nil }

// Disconnect is a no-op.
func (s *MemoryStore) Disconnect() error { return nil }

func completionKey(ownerID, habitID, dateKey string) string {
	return ownerID + "|" + habitID + "|" + dateKey
}

// resolve finds a habit by id or name for the owner. Callers must hold mu.
func (s *MemoryStore) resolve(ownerID, habitRef string) (models.Habit, bool) {
	if h, ok := s.habits[habitRef]; ok && h.UserID == ownerID {
		return h, true
	}
	for _, h := range s.habits {
		if h.UserID == ownerID && h.Name == habitRef {
			return h, true
		}
	}
	return models.Habit{}, false
}

func (s *MemoryStore) ListActiveHabits(ctx context.Context, ownerID string) ([]models.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var habits []models.Habit
	for _, h := range s.habits {
		if h.UserID == ownerID && h.IsActive {
			habits = append(habits, h)
		}
	}
	sort.Slice(habits, func(i, j int) bool {
		return habits[i].CreatedAt.After(habits[j].CreatedAt)
	})
	return habits, nil
}

func (s *MemoryStore) GetHabit(ctx context.Context, ownerID, habitRef string) (*models.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.resolve(ownerID, habitRef)
	if !ok {
		return nil, ErrNotFound
	}
	return &h, nil
}

func (s *MemoryStore) CreateHabit(ctx context.Context, ownerID string, habit *models.Habit) (*models.Habit, error) {
	habit.Name = strings.TrimSpace(habit.Name)
	if habit.Privacy == "" {
		habit.Privacy = models.PrivacyPublic
	}
	if err := validateNewHabit(habit); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range s.habits {
		if h.UserID == ownerID && h.Name == habit.Name {
			return nil, fmt.Errorf("a habit with the name '%s' already exists", habit.Name)
		}
	}

	habit.ID = uuid.NewString()
	habit.UserID = ownerID
	habit.IsActive = true
	if habit.CreatedAt.IsZero() {
		habit.CreatedAt = time.Now()
	}
	if habit.Category == "" {
		habit.Category = "General"
	}

	s.habits[habit.ID] = *habit
	return habit, nil
}

func (s *MemoryStore) UpdateHabit(ctx context.Context, ownerID, habitRef string, update models.HabitUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.resolve(ownerID, habitRef)
	if !ok {
		return ErrNotFound
	}

	if update.Description != nil {
		h.Description = *update.Description
	}
	if update.Category != nil {
		h.Category = *update.Category
	}
	if update.Privacy != nil {
		h.Privacy = *update.Privacy
	}
	if update.ReminderEnabled != nil {
		h.ReminderEnabled = *update.ReminderEnabled
	}
	if update.ReminderTime != nil {
		h.ReminderTime = *update.ReminderTime
	}
	if update.IsActive != nil {
		h.IsActive = *update.IsActive
	}

	s.habits[h.ID] = h
	return nil
}

func (s *MemoryStore) DeleteHabit(ctx context.Context, ownerID, habitRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.resolve(ownerID, habitRef)
	if !ok {
		return ErrNotFound
	}

	delete(s.habits, h.ID)
	for key, record := range s.done {
		if record.HabitID == h.ID {
			delete(s.done, key)
		}
	}
	return nil
}

func (s *MemoryStore) ListCompletions(ctx context.Context, ownerID string, dateKeys []string) ([]models.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wanted map[string]bool
	if dateKeys != nil {
		wanted = make(map[string]bool, len(dateKeys))
		for _, k := range dateKeys {
			wanted[k] = true
		}
	}

	var records []models.CompletionRecord
	for _, record := range s.done {
		if record.UserID != ownerID {
			continue
		}
		if wanted != nil && !wanted[record.Date] {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *MemoryStore) SetCompletion(ctx context.Context, ownerID, habitRef, dateKey string, done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.resolve(ownerID, habitRef)
	if !ok {
		return ErrNotFound
	}

	key := completionKey(ownerID, h.ID, dateKey)
	if done {
		if _, exists := s.done[key]; !exists {
			s.done[key] = models.CompletionRecord{
				ID:      uuid.NewString(),
				UserID:  ownerID,
				HabitID: h.ID,
				Date:    dateKey,
			}
		}
		return nil
	}

	delete(s.done, key)
	return nil
}

func (s *MemoryStore) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email || u.Username == user.Username {
			return nil, fmt.Errorf("an account with this email or username already exists")
		}
	}

	user.ID = uuid.NewString()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	s.users[user.ID] = *user
	return user, nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	found := u
	return &found, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *MemoryStore) AddJournalEntry(ctx context.Context, ownerID string, entry *models.JournalEntry) (*models.JournalEntry, error) {
	if strings.TrimSpace(entry.Content) == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.NewString()
	entry.UserID = ownerID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.journal = append(s.journal, *entry)
	return entry, nil
}

func (s *MemoryStore) ListJournalEntries(ctx context.Context, ownerID string, limit int) ([]models.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []models.JournalEntry
	for _, e := range s.journal {
		if e.UserID == ownerID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
