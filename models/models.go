package models

import (
	"time"
)

// Habit represents a user-defined recurring activity tracked for daily
// completion. The ID is assigned by the storage backend; the REST variant
// keys habits by name, so ID may be empty there.
type Habit struct {
	ID              string    `bson:"_id,omitempty" json:"id,omitempty"`
	UserID          string    `bson:"user_id" json:"user_id,omitempty"`
	Name            string    `bson:"name" json:"name"`
	Description     string    `bson:"description" json:"description"`
	Category        string    `bson:"category" json:"category"`
	Privacy         string    `bson:"privacy" json:"privacy"`
	IsActive        bool      `bson:"is_active" json:"is_active"`
	ReminderEnabled bool      `bson:"reminder_enabled" json:"reminder_enabled"`
	ReminderTime    string    `bson:"reminder_time,omitempty" json:"reminder_time,omitempty"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`

	// CompletionHistory is only populated on the REST wire, where the API
	// returns each habit together with its completed date keys.
	CompletionHistory []string `bson:"-" json:"completion_history,omitempty"`
}

// Key returns the identifier aggregation maps are keyed on: the backend
// id when present, otherwise the habit name (REST variant).
func (h *Habit) Key() string {
	if h.ID != "" {
		return h.ID
	}
	return h.Name
}

// HabitUpdate holds the mutable habit fields. Name and CreatedAt are
// immutable post-creation. Nil fields are left untouched. Setting IsActive
// false archives the habit: its completion records survive but the habit
// drops out of listings and every aggregation map.
type HabitUpdate struct {
	Description     *string `json:"description,omitempty"`
	Category        *string `json:"category,omitempty"`
	Privacy         *string `json:"privacy,omitempty"`
	ReminderEnabled *bool   `json:"reminder_enabled,omitempty"`
	ReminderTime    *string `json:"reminder_time,omitempty"`
	IsActive        *bool   `json:"is_active,omitempty"`
}

// CompletionRecord is evidence that a habit was completed on a calendar day.
// Existence of the record is "completed"; there is no completed=false record.
type CompletionRecord struct {
	ID      string `bson:"_id,omitempty" json:"id,omitempty"`
	UserID  string `bson:"user_id" json:"user_id"`
	HabitID string `bson:"habit_id" json:"habit_id"`
	Date    string `bson:"date" json:"date"` // canonical YYYY-MM-DD local date key
}

type User struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	Username     string    `bson:"username" json:"username"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

type JournalEntry struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Content   string    `bson:"content" json:"content"`
	Mood      string    `bson:"mood,omitempty" json:"mood,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Profile is the derived per-user summary shown on the profile page.
type Profile struct {
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	ActiveHabits   int    `json:"active_habits"`
	JournalEntries int    `json:"journal_entries"`
}

// Privacy levels accepted for a habit.
const (
	PrivacyPublic  = "public"
	PrivacyFriends = "friends"
	PrivacyPrivate = "private"
)
