package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/habithive/habithive/models"
)

// RESTStore is a HabitStore backed by the habit-tracking JSON API. Habits are
// keyed by name on the wire and each habit carries its completion history, so
// completion queries are served from a single full pull. The ownerID
// arguments are accepted for interface compatibility but the server derives
// the owner from the bearer token.
type RESTStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRESTStore creates a new instance of RESTStore. This function doesn't
// verify connectivity; use the Connect method for that.
func NewRESTStore() *RESTStore {
	return &RESTStore{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken sets the bearer token sent on every request.
func (r *RESTStore) SetToken(token string) {
	r.token = token
}

// Connect validates and stores the API base URL. dbName is unused for this
// backend.
func (r *RESTStore) Connect(dbName, uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid API base URL: %v", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API base URL %q", uri)
	}
	r.baseURL = strings.TrimRight(uri, "/")
	return nil
}

// Disconnect is a no-op; the underlying HTTP client keeps no open state
// worth tearing down.
func (r *RESTStore) Disconnect() error { return nil }

// apiEnvelope is the wire envelope every endpoint responds with.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Habits  []models.Habit  `json:"habits,omitempty"`
	Habit   *models.Habit   `json:"habit,omitempty"`
	Entries json.RawMessage `json:"entries,omitempty"`
	Entry   json.RawMessage `json:"entry,omitempty"`
}

// call performs a JSON request against the API and decodes the envelope.
// Non-success statuses become errors; 404 maps to ErrNotFound.
func (r *RESTStore) call(ctx context.Context, method, path string, payload interface{}) (*apiEnvelope, error) {
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	envelope := &apiEnvelope{}
	if err := json.NewDecoder(resp.Body).Decode(envelope); err != nil {
		return nil, fmt.Errorf("malformed response from %s: %w", path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("%s %s: %s", method, path, msg)
	}
	return envelope, nil
}

// ListActiveHabits fetches the owner's habits and filters to active ones.
// The server already orders them newest-created-first.
func (r *RESTStore) ListActiveHabits(ctx context.Context, ownerID string) ([]models.Habit, error) {
	envelope, err := r.call(ctx, http.MethodGet, "/habits", nil)
	if err != nil {
		return nil, err
	}

	var active []models.Habit
	for _, h := range envelope.Habits {
		if h.IsActive {
			active = append(active, h)
		}
	}
	return active, nil
}

// GetHabit resolves a habit by name from the full listing.
func (r *RESTStore) GetHabit(ctx context.Context, ownerID, habitRef string) (*models.Habit, error) {
	envelope, err := r.call(ctx, http.MethodGet, "/habits", nil)
	if err != nil {
		return nil, err
	}
	for i := range envelope.Habits {
		h := &envelope.Habits[i]
		if h.Name == habitRef || h.ID == habitRef {
			return h, nil
		}
	}
	return nil, ErrNotFound
}

// CreateHabit posts a new habit. The empty-name check runs locally so no
// request is made for input the server would reject anyway.
func (r *RESTStore) CreateHabit(ctx context.Context, ownerID string, habit *models.Habit) (*models.Habit, error) {
	habit.Name = strings.TrimSpace(habit.Name)
	if habit.Privacy == "" {
		habit.Privacy = models.PrivacyPublic
	}
	if err := validateNewHabit(habit); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"name":             habit.Name,
		"description":      habit.Description,
		"category":         habit.Category,
		"privacy":          habit.Privacy,
		"reminder_enabled": habit.ReminderEnabled,
		"reminder_time":    habit.ReminderTime,
	}
	envelope, err := r.call(ctx, http.MethodPost, "/habits/create", payload)
	if err != nil {
		return nil, err
	}
	if envelope.Habit != nil {
		return envelope.Habit, nil
	}

	created := *habit
	created.IsActive = true
	return &created, nil
}

// UpdateHabit posts the mutable fields for the named habit.
func (r *RESTStore) UpdateHabit(ctx context.Context, ownerID, habitRef string, update models.HabitUpdate) error {
	_, err := r.call(ctx, http.MethodPost, "/habits/"+url.PathEscape(habitRef)+"/update", update)
	return err
}

// DeleteHabit removes the named habit.
func (r *RESTStore) DeleteHabit(ctx context.Context, ownerID, habitRef string) error {
	_, err := r.call(ctx, http.MethodPost, "/habits/"+url.PathEscape(habitRef)+"/delete", nil)
	return err
}

// ListCompletions flattens the completion histories carried on the habit
// listing into records, optionally restricted to the given date keys.
func (r *RESTStore) ListCompletions(ctx context.Context, ownerID string, dateKeys []string) ([]models.CompletionRecord, error) {
	envelope, err := r.call(ctx, http.MethodGet, "/habits", nil)
	if err != nil {
		return nil, err
	}

	var wanted map[string]bool
	if dateKeys != nil {
		wanted = make(map[string]bool, len(dateKeys))
		for _, k := range dateKeys {
			wanted[k] = true
		}
	}

	var records []models.CompletionRecord
	for _, h := range envelope.Habits {
		for _, date := range h.CompletionHistory {
			if wanted != nil && !wanted[date] {
				continue
			}
			records = append(records, models.CompletionRecord{
				UserID:  ownerID,
				HabitID: h.Key(),
				Date:    date,
			})
		}
	}
	return records, nil
}

// SetCompletion posts the desired completion state for one date.
func (r *RESTStore) SetCompletion(ctx context.Context, ownerID, habitRef, dateKey string, done bool) error {
	payload := map[string]interface{}{
		"date":      dateKey,
		"completed": done,
	}
	_, err := r.call(ctx, http.MethodPost, "/habits/"+url.PathEscape(habitRef)+"/progress", payload)
	return err
}

// AddJournalEntry posts a new journal entry.
func (r *RESTStore) AddJournalEntry(ctx context.Context, ownerID string, entry *models.JournalEntry) (*models.JournalEntry, error) {
	if strings.TrimSpace(entry.Content) == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	envelope, err := r.call(ctx, http.MethodPost, "/api/journal", entry)
	if err != nil {
		return nil, err
	}
	if envelope.Entry != nil {
		created := &models.JournalEntry{}
		if err := json.Unmarshal(envelope.Entry, created); err != nil {
			return nil, fmt.Errorf("malformed journal entry in response: %w", err)
		}
		return created, nil
	}
	return entry, nil
}

// ListJournalEntries fetches the owner's journal entries.
func (r *RESTStore) ListJournalEntries(ctx context.Context, ownerID string, limit int) ([]models.JournalEntry, error) {
	path := "/api/journal"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	envelope, err := r.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var entries []models.JournalEntry
	if envelope.Entries != nil {
		if err := json.Unmarshal(envelope.Entries, &entries); err != nil {
			return nil, fmt.Errorf("malformed journal entries in response: %w", err)
		}
	}
	return entries, nil
}
