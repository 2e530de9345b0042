package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/habithive/habithive/auth"
	"github.com/habithive/habithive/editor"
	"github.com/habithive/habithive/models"
	"github.com/habithive/habithive/progress"
	"github.com/habithive/habithive/storage/cache"
	storage "github.com/habithive/habithive/storage/persistent"
)

// writeJSON writes an envelope with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("error encoding response: %v", err)
	}
}

// fail writes a failure envelope.
func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}

// failErr maps an error to its HTTP status and writes a failure envelope.
// Validation failures are the client's fault; missing targets are 404;
// everything else surfaces as a backend error.
func failErr(w http.ResponseWriter, err error) {
	switch {
	case storage.IsValidation(err):
		fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		fail(w, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrAuthenticationFailed):
		fail(w, http.StatusUnauthorized, err.Error())
	default:
		fail(w, http.StatusInternalServerError, err.Error())
	}
}

// userID extracts the authenticated user id injected by the JWT middleware.
// Writes a 401 envelope and returns false when the request is anonymous.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := r.Context().Value(userIDKey).(string)
	if !ok || id == "" {
		fail(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return id, true
}

// decodeBody decodes a JSON request body. An empty body decodes into the
// zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		fail(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

const (
	todayViewPrefix = "view_today_"
	weekViewPrefix  = "view_week_"
)

// invalidateViews drops the cached aggregation views for a user after any
// completion or habit mutation. Cache trouble is logged, never surfaced; the
// views rebuild on the next read.
func (s *Server) invalidateViews(r *http.Request, owner string) {
	if s.cache == nil {
		return
	}
	for _, key := range []string{todayViewPrefix + owner, weekViewPrefix + owner} {
		if err := s.cache.Delete(r.Context(), key); err != nil {
			log.Printf("failed to invalidate cached view %s: %v", key, err)
		}
	}
}

// --- auth ---

type credentialsRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

func tokenResponse(authToken, refreshToken string) map[string]interface{} {
	return map[string]interface{}{
		"success":       true,
		"token":         authToken,
		"refresh_token": refreshToken,
	}
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	authToken, refreshToken, err := s.auth.SignUp(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse(authToken, refreshToken))
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	authToken, refreshToken, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(authToken, refreshToken))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	authToken, refreshToken, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		fail(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(authToken, refreshToken))
}

// --- habits ---

// handleListHabits returns the owner's active habits, each carrying its full
// completion history. The REST storage client derives every completion view
// from this single pull.
func (s *Server) handleListHabits(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	habits, err := s.store.ListActiveHabits(r.Context(), owner)
	if err != nil {
		failErr(w, err)
		return
	}

	records, err := s.store.ListCompletions(r.Context(), owner, nil)
	if err != nil {
		failErr(w, err)
		return
	}

	history := make(map[string][]string)
	for _, rec := range records {
		history[rec.HabitID] = append(history[rec.HabitID], rec.Date)
	}
	for i := range habits {
		h := &habits[i]
		dates := history[h.ID]
		if dates == nil {
			dates = history[h.Key()]
		}
		sort.Sort(sort.Reverse(sort.StringSlice(dates)))
		h.CompletionHistory = dates
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"habits":  habits,
	})
}

type createHabitRequest struct {
	models.Habit
	// MarkToday completes the habit for the current day as part of creation,
	// mirroring the create-form checkbox.
	MarkToday bool `json:"mark_today"`
}

func (s *Server) handleCreateHabit(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	var req createHabitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := s.store.CreateHabit(r.Context(), owner, &req.Habit)
	if err != nil {
		failErr(w, err)
		return
	}

	if req.MarkToday {
		today := progress.DayKey(time.Now())
		if err := s.store.SetCompletion(r.Context(), owner, created.Key(), today, true); err != nil {
			failErr(w, err)
			return
		}
	}

	s.invalidateViews(r, owner)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"habit":   created,
	})
}

func (s *Server) setCompletion(w http.ResponseWriter, r *http.Request, dateKey string, done bool) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}
	habitRef := mux.Vars(r)["name"]

	if err := s.store.SetCompletion(r.Context(), owner, habitRef, dateKey, done); err != nil {
		failErr(w, err)
		return
	}

	s.invalidateViews(r, owner)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleCompleteToday(w http.ResponseWriter, r *http.Request) {
	s.setCompletion(w, r, progress.DayKey(time.Now()), true)
}

func (s *Server) handleUncompleteToday(w http.ResponseWriter, r *http.Request) {
	s.setCompletion(w, r, progress.DayKey(time.Now()), false)
}

type progressRequest struct {
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}

func (s *Server) handleSetProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := progress.ParseDayKey(req.Date); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	s.setCompletion(w, r, req.Date, req.Completed)
}

type batchProgressRequest struct {
	Dates map[string]bool `json:"dates"`
}

// handleBatchProgress applies one gesture's worth of completion changes.
// Dates outside the rolling window are skipped without touching the store. A
// partial failure reports how far application got.
func (s *Server) handleBatchProgress(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}
	habitRef := mux.Vars(r)["name"]

	var req batchProgressRequest
	if !decodeBody(w, r, &req) {
		return
	}

	window := progress.LastNDates(progress.WindowSize)
	if err := editor.ApplyBatch(r.Context(), s.store, owner, habitRef, req.Dates, window); err != nil {
		s.invalidateViews(r, owner)
		failErr(w, err)
		return
	}

	s.invalidateViews(r, owner)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleUpdateHabit(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}
	habitRef := mux.Vars(r)["name"]

	var update models.HabitUpdate
	if !decodeBody(w, r, &update) {
		return
	}

	if err := s.store.UpdateHabit(r.Context(), owner, habitRef, update); err != nil {
		failErr(w, err)
		return
	}

	s.invalidateViews(r, owner)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleDeleteHabit(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}
	habitRef := mux.Vars(r)["name"]

	if err := s.store.DeleteHabit(r.Context(), owner, habitRef); err != nil {
		failErr(w, err)
		return
	}

	s.invalidateViews(r, owner)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// --- progress views ---

// loadWindowData pulls the active habits and the completion records for the
// current 7-day window.
func (s *Server) loadWindowData(r *http.Request, owner string) ([]models.Habit, []models.CompletionRecord, error) {
	habits, err := s.store.ListActiveHabits(r.Context(), owner)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.store.ListCompletions(r.Context(), owner, progress.LastNDates(progress.WindowSize))
	if err != nil {
		return nil, nil, err
	}
	return habits, records, nil
}

func (s *Server) handleProgressToday(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	if s.cache != nil {
		var cached map[string]bool
		if err := s.cache.Get(r.Context(), todayViewPrefix+owner, &cached); err == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "today": cached})
			return
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache read failed for today view: %v", err)
		}
	}

	habits, records, err := s.loadWindowData(r, owner)
	if err != nil {
		failErr(w, err)
		return
	}

	today := progress.TodayMap(habits, records, time.Now())
	if s.cache != nil {
		if err := s.cache.Set(r.Context(), todayViewPrefix+owner, today); err != nil {
			log.Printf("cache write failed for today view: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "today": today})
}

func (s *Server) handleProgressWeek(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	if s.cache != nil {
		var cached map[string]progress.WeekSummary
		if err := s.cache.Get(r.Context(), weekViewPrefix+owner, &cached); err == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "week": cached})
			return
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache read failed for week view: %v", err)
		}
	}

	habits, records, err := s.loadWindowData(r, owner)
	if err != nil {
		failErr(w, err)
		return
	}

	week := progress.WeekMap(habits, records, time.Now())
	if s.cache != nil {
		if err := s.cache.Set(r.Context(), weekViewPrefix+owner, week); err != nil {
			log.Printf("cache write failed for week view: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "week": week})
}

// handleProgressCalendar serves the month view. Defaults to the current
// month; always recomputed, month navigation is too sparse to cache.
func (s *Server) handleProgressCalendar(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	now := time.Now()
	year, month := now.Year(), int(now.Month())
	if v := r.URL.Query().Get("year"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			fail(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = parsed
	}
	if v := r.URL.Query().Get("month"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 12 {
			fail(w, http.StatusBadRequest, "invalid month")
			return
		}
		month = parsed
	}

	habits, err := s.store.ListActiveHabits(r.Context(), owner)
	if err != nil {
		failErr(w, err)
		return
	}
	records, err := s.store.ListCompletions(r.Context(), owner, nil)
	if err != nil {
		failErr(w, err)
		return
	}

	calendar := progress.MonthMap(habits, records, year, time.Month(month))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"year":     year,
		"month":    month,
		"calendar": calendar,
	})
}

// --- journal and profile ---

func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			fail(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := s.store.ListJournalEntries(r.Context(), owner, limit)
	if err != nil {
		failErr(w, err)
		return
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"entries": entries,
	})
}

func (s *Server) handleAddJournal(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	var entry models.JournalEntry
	if !decodeBody(w, r, &entry) {
		return
	}

	created, err := s.store.AddJournalEntry(r.Context(), owner, &entry)
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"entry":   created,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	user, err := s.store.FindUserByID(r.Context(), owner)
	if err != nil {
		failErr(w, err)
		return
	}
	habits, err := s.store.ListActiveHabits(r.Context(), owner)
	if err != nil {
		failErr(w, err)
		return
	}
	entries, err := s.store.ListJournalEntries(r.Context(), owner, 0)
	if err != nil {
		failErr(w, err)
		return
	}

	profile := models.Profile{
		UserID:         user.ID,
		Username:       user.Username,
		Email:          user.Email,
		ActiveHabits:   len(habits),
		JournalEntries: len(entries),
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"profile": profile,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  "ok",
	})
}
