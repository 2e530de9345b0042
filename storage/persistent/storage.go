package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/habithive/habithive/models"
)

// ErrNotFound is returned when the target of a lookup, update or delete does
// not exist in the storage backend.
var ErrNotFound = errors.New("not found")

// ValidationError reports input rejected before any backend call was made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// HabitStore defines the set of methods that any habit storage backend needs
// to implement. Habit references are backend ids for the document store and
// habit names for the REST variant; both are accepted wherever a habitRef is
// taken.
type HabitStore interface {
	// Establishes a connection to the storage backend.
	Connect(dbName, uri string) error
	// Disconnects from the storage backend.
	Disconnect() error

	// ListActiveHabits returns the owner's non-archived habits,
	// newest-created-first.
	ListActiveHabits(ctx context.Context, ownerID string) ([]models.Habit, error)
	// GetHabit resolves a habit reference for the owner.
	GetHabit(ctx context.Context, ownerID, habitRef string) (*models.Habit, error)
	// CreateHabit stores a new habit and returns it with its assigned id.
	CreateHabit(ctx context.Context, ownerID string, habit *models.Habit) (*models.Habit, error)
	// UpdateHabit applies the mutable fields to an existing habit.
	UpdateHabit(ctx context.Context, ownerID, habitRef string, update models.HabitUpdate) error
	// DeleteHabit removes a habit and its completion records.
	DeleteHabit(ctx context.Context, ownerID, habitRef string) error

	// ListCompletions returns the owner's completion records, optionally
	// restricted to the given date keys. A nil filter means a full pull.
	ListCompletions(ctx context.Context, ownerID string, dateKeys []string) ([]models.CompletionRecord, error)
	// SetCompletion ensures a completion record exists (done=true) or does
	// not exist (done=false) for the given habit and date key. Idempotent:
	// repeating a call with the same arguments is a no-op.
	SetCompletion(ctx context.Context, ownerID, habitRef, dateKey string, done bool) error
}

// UserStore holds user accounts. Only the server-side backends implement it;
// the REST client authenticates with a bearer token instead.
type UserStore interface {
	// AddUser stores a new user account.
	AddUser(ctx context.Context, user *models.User) (*models.User, error)
	// FindUserByEmail looks a user up by email; ErrNotFound when missing.
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	// FindUserByID looks a user up by id; ErrNotFound when missing.
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	// ListUsers returns all user accounts. Used by the reminder dispatcher.
	ListUsers(ctx context.Context) ([]models.User, error)
}

// JournalStore holds per-user journal entries.
type JournalStore interface {
	// AddJournalEntry stores a journal entry for the owner.
	AddJournalEntry(ctx context.Context, ownerID string, entry *models.JournalEntry) (*models.JournalEntry, error)
	// ListJournalEntries returns the owner's entries, newest first, at most
	// limit of them (limit <= 0 means all).
	ListJournalEntries(ctx context.Context, ownerID string, limit int) ([]models.JournalEntry, error)
}

// Store is the full server-side storage backend.
type Store interface {
	HabitStore
	UserStore
	JournalStore
}

// NewHabitStore creates a HabitStore for the named backend and connects it.
// Supported backends: "mongo", "rest" (uri is the API base URL) and
// "memory" (dbName and uri are ignored).
func NewHabitStore(backend, dbName, uri string) (HabitStore, error) {
	var store HabitStore
	switch backend {
	case "mongo":
		store = NewMongoStore()
	case "rest":
		store = NewRESTStore()
	case "memory":
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}

	if err := store.Connect(dbName, uri); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// NewStore creates a full server-side Store ("mongo" or "memory") and
// connects it. The REST backend is a client and cannot serve users.
func NewStore(backend, dbName, uri string) (Store, error) {
	var store Store
	switch backend {
	case "mongo":
		store = NewMongoStore()
	case "memory":
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown server storage backend %q", backend)
	}

	if err := store.Connect(dbName, uri); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// validateNewHabit applies the shared pre-insert checks. The title must be
// non-empty after trimming and the privacy level must be one of the known
// values (empty defaults to public at the caller).
func validateNewHabit(habit *models.Habit) error {
	if habit.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	switch habit.Privacy {
	case models.PrivacyPublic, models.PrivacyFriends, models.PrivacyPrivate:
	default:
		return &ValidationError{Field: "privacy", Reason: "must be public, friends or private"}
	}
	return nil
}
