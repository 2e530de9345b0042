package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habithive/habithive/auth"
	"github.com/habithive/habithive/metrics"
	"github.com/habithive/habithive/models"
	"github.com/habithive/habithive/progress"
	storage "github.com/habithive/habithive/storage/persistent"
)

const testSigningKey = "server-test-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := storage.NewMemoryStore()
	authSvc := auth.NewService(store, testSigningKey)
	s := New(store, authSvc, testSigningKey).WithMetrics(metrics.New())

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// doJSON performs a request and decodes the response envelope.
func doJSON(t *testing.T, method, url, token string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	envelope := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, envelope
}

func signUp(t *testing.T, srv *httptest.Server, username, email string) string {
	t.Helper()
	status, envelope := doJSON(t, http.MethodPost, srv.URL+"/auth/signup", "", map[string]string{
		"username": username,
		"email":    email,
		"password": "password1",
	})
	require.Equal(t, http.StatusCreated, status)
	token, _ := envelope["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)

	status, envelope := doJSON(t, http.MethodPost, srv.URL+"/auth/signup", "", map[string]string{
		"username": "ana",
		"email":    "ana@example.com",
		"password": "password1",
	})
	require.Equal(t, http.StatusCreated, status)
	refreshToken, _ := envelope["refresh_token"].(string)
	require.NotEmpty(t, refreshToken)

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/auth/signin", "", map[string]string{
		"email":    "ana@example.com",
		"password": "password1",
	})
	assert.Equal(t, http.StatusOK, status)

	status, envelope = doJSON(t, http.MethodPost, srv.URL+"/auth/signin", "", map[string]string{
		"email":    "ana@example.com",
		"password": "wrongpass1",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, envelope["success"])

	status, envelope = doJSON(t, http.MethodPost, srv.URL+"/auth/refresh", "", map[string]string{
		"refresh_token": refreshToken,
	})
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, envelope["token"])
}

func TestHabitsRequireAuth(t *testing.T) {
	srv := newTestServer(t)

	status, envelope := doJSON(t, http.MethodGet, srv.URL+"/habits", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, envelope["success"])

	status, _ = doJSON(t, http.MethodGet, srv.URL+"/habits", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHabitLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := signUp(t, srv, "ana", "ana@example.com")

	status, envelope := doJSON(t, http.MethodPost, srv.URL+"/habits/create", token, map[string]string{
		"name": "Read",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, envelope["success"])

	// Empty title is rejected before anything is stored.
	status, envelope = doJSON(t, http.MethodPost, srv.URL+"/habits/create", token, map[string]string{
		"name": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, envelope["error"], "name")

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/habits/Read/update", token, map[string]string{
		"description": "20 pages",
	})
	assert.Equal(t, http.StatusOK, status)

	status, envelope = doJSON(t, http.MethodGet, srv.URL+"/habits", token, nil)
	require.Equal(t, http.StatusOK, status)
	habits := envelope["habits"].([]interface{})
	require.Len(t, habits, 1)
	habit := habits[0].(map[string]interface{})
	assert.Equal(t, "Read", habit["name"])
	assert.Equal(t, "20 pages", habit["description"])

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/habits/Read/delete", token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/habits/Read/delete", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateHabitMarkToday(t *testing.T) {
	srv := newTestServer(t)
	token := signUp(t, srv, "ana", "ana@example.com")

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/habits/create", token, map[string]interface{}{
		"name":       "Read",
		"mark_today": true,
	})
	require.Equal(t, http.StatusCreated, status)

	status, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/progress/today", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, envelope["today"].(map[string]interface{}), 1)
}

func TestCompletionEndpoints(t *testing.T) {
	srv := newTestServer(t)
	token := signUp(t, srv, "ana", "ana@example.com")

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/habits/create", token, map[string]string{"name": "Read"})
	require.Equal(t, http.StatusCreated, status)

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/habits/Read/complete", token, nil)
	require.Equal(t, http.StatusOK, status)

	today := progress.DayKey(time.Now())
	status, envelope := doJSON(t, http.MethodGet, srv.URL+"/habits", token, nil)
	require.Equal(t, http.StatusOK, status)
	habit := envelope["habits"].([]interface{})[0].(map[string]interface{})
	history := habit["completion_history"].([]interface{})
	require.Len(t, history, 1)
	assert.Equal(t, today, history[0])

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/habits/Read/uncomplete", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, envelope = doJSON(t, http.MethodGet, srv.URL+"/habits", token, nil)
	require.Equal(t, http.StatusOK, status)
	habit = envelope["habits"].([]interface{})[0].(map[string]interface{})
	assert.Nil(t, habit["completion_history"])

	// Arbitrary-date progress with a malformed date key is rejected.
	status, envelope = doJSON(t, http.MethodPost, srv.URL+"/habits/Read/progress", token, map[string]interface{}{
		"date":      "15-03-2024",
		"completed": true,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, envelope["error"], "invalid date key")

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/habits/Missing/progress", token, map[string]interface{}{
		"date":      today,
		"completed": true,
	})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBatchProgressSkipsOutOfWindow(t *testing.T) {
	srv := newTestServer(t)
	token := signUp(t, srv, "ana", "ana@example.com")

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/habits/create", token, map[string]string{"name": "Read"})
	require.Equal(t, http.StatusCreated, status)

	window := progress.LastNDates(progress.WindowSize)
	status, _ = doJSON(t, http.MethodPost, srv.URL+"/habits/Read/progress/batch", token, map[string]interface{}{
		"dates": map[string]bool{
			window[0]:    true,
			window[2]:    true,
			"1999-01-01": true, // outside the window: silently skipped
		},
	})
	require.Equal(t, http.StatusOK, status)

	status, envelope := doJSON(t, http.MethodGet, srv.URL+"/habits", token, nil)
	require.Equal(t, http.StatusOK, status)
	habit := envelope["habits"].([]interface{})[0].(map[string]interface{})
	history := habit["completion_history"].([]interface{})
	assert.Len(t, history, 2)
}

func TestProgressViews(t *testing.T) {
	srv := newTestServer(t)
	token := signUp(t, srv, "ana", "ana@example.com")

	for _, name := range []string{"Read", "Run"} {
		status, _ := doJSON(t, http.MethodPost, srv.URL+"/habits/create", token, map[string]string{"name": name})
		require.Equal(t, http.StatusCreated, status)
	}
	status, _ := doJSON(t, http.MethodPost, srv.URL+"/habits/Read/complete", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/progress/today", token, nil)
	require.Equal(t, http.StatusOK, status)
	today := envelope["today"].(map[string]interface{})
	assert.Len(t, today, 1, "only completed habits appear in the today map")

	status, envelope = doJSON(t, http.MethodGet, srv.URL+"/api/progress/week", token, nil)
	require.Equal(t, http.StatusOK, status)
	week := envelope["week"].(map[string]interface{})
	assert.Len(t, week, 2, "every active habit has a week summary")

	now := time.Now()
	url := fmt.Sprintf("%s/api/progress/calendar?year=%d&month=%d", srv.URL, now.Year(), int(now.Month()))
	status, envelope = doJSON(t, http.MethodGet, url, token, nil)
	require.Equal(t, http.StatusOK, status)
	calendar := envelope["calendar"].(map[string]interface{})
	day := calendar[progress.DayKey(now)].(map[string]interface{})
	assert.Equal(t, float64(1), day["count"])

	status, _ = doJSON(t, http.MethodGet, srv.URL+"/api/progress/calendar?month=13", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCalendarExcludesArchivedHabits(t *testing.T) {
	srv := newTestServer(t)
	token := signUp(t, srv, "ana", "ana@example.com")

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/habits/create", token, map[string]string{"name": "Read"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, http.MethodPost, srv.URL+"/habits/Read/complete", token, nil)
	require.Equal(t, http.StatusOK, status)

	now := time.Now()
	url := fmt.Sprintf("%s/api/progress/calendar?year=%d&month=%d", srv.URL, now.Year(), int(now.Month()))
	status, envelope := doJSON(t, http.MethodGet, url, token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, envelope["calendar"].(map[string]interface{}), 1)

	// Archive the habit; its surviving records must leave the month view.
	status, _ = doJSON(t, http.MethodPost, srv.URL+"/habits/Read/update", token, map[string]interface{}{
		"is_active": false,
	})
	require.Equal(t, http.StatusOK, status)

	status, envelope = doJSON(t, http.MethodGet, url, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, envelope["calendar"])

	status, envelope = doJSON(t, http.MethodGet, srv.URL+"/habits", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, envelope["habits"])
}

func TestJournalAndProfile(t *testing.T) {
	srv := newTestServer(t)
	token := signUp(t, srv, "ana", "ana@example.com")

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/api/journal", token, map[string]string{
		"content": "slept well, good focus",
		"mood":    "good",
	})
	require.Equal(t, http.StatusCreated, status)

	status, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/journal", token, map[string]string{
		"content": "  ",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, envelope["error"], "content")

	status, envelope = doJSON(t, http.MethodGet, srv.URL+"/api/journal", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, envelope["entries"].([]interface{}), 1)

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/habits/create", token, map[string]string{"name": "Read"})
	require.Equal(t, http.StatusCreated, status)

	status, envelope = doJSON(t, http.MethodGet, srv.URL+"/api/profile", token, nil)
	require.Equal(t, http.StatusOK, status)
	profile := envelope["profile"].(map[string]interface{})
	assert.Equal(t, "ana", profile["username"])
	assert.Equal(t, float64(1), profile["active_habits"])
	assert.Equal(t, float64(1), profile["journal_entries"])
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	status, envelope := doJSON(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", envelope["status"])
}

// The REST storage client is a first-class consumer of this API; drive the
// full habit flow through it.
func TestRESTClientAgainstServer(t *testing.T) {
	srv := newTestServer(t)
	token := signUp(t, srv, "ana", "ana@example.com")

	client := storage.NewRESTStore()
	require.NoError(t, client.Connect("", srv.URL))
	client.SetToken(token)
	ctx := context.Background()

	created, err := client.CreateHabit(ctx, "me", &models.Habit{Name: "Read"})
	require.NoError(t, err)
	assert.Equal(t, "Read", created.Name)

	today := progress.DayKey(time.Now())
	require.NoError(t, client.SetCompletion(ctx, "me", "Read", today, true))

	records, err := client.ListCompletions(ctx, "me", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, today, records[0].Date)

	habits, err := client.ListActiveHabits(ctx, "me")
	require.NoError(t, err)
	require.Len(t, habits, 1)

	require.NoError(t, client.DeleteHabit(ctx, "me", "Read"))
	err = client.DeleteHabit(ctx, "me", "Read")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
