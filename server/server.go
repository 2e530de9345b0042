// Package server exposes the dashboard's HTTP API: account auth, habit CRUD,
// completion editing and the aggregated progress views.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/habithive/habithive/auth"
	"github.com/habithive/habithive/metrics"
	"github.com/habithive/habithive/storage/cache"
	storage "github.com/habithive/habithive/storage/persistent"
)

type contextKey string

// userIDKey carries the authenticated user's id through the request context.
const userIDKey contextKey = "user_id"

// Server wires the HTTP surface to the storage backend and auth service. The
// cache and collector are optional; a nil cache disables view caching and a
// nil collector disables instrumentation.
type Server struct {
	store      storage.Store
	auth       *auth.Service
	cache      cache.CacheInterface
	collector  *metrics.Collector
	signingKey string
}

// New builds a server over the given store and auth service.
func New(store storage.Store, authSvc *auth.Service, signingKey string) *Server {
	return &Server{
		store:      store,
		auth:       authSvc,
		signingKey: signingKey,
	}
}

// WithCache enables per-user view caching.
func (s *Server) WithCache(c cache.CacheInterface) *Server {
	s.cache = c
	return s
}

// WithMetrics enables request and store instrumentation.
func (s *Server) WithMetrics(c *metrics.Collector) *Server {
	s.collector = c
	return s
}

// jwtMiddleware reads the bearer token from the Authorization header and, if
// it verifies, injects the user id claim into the request context. Requests
// without a usable token pass through anonymous; the handlers decide whether
// auth is required.
func jwtMiddleware(signingKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			splitToken := strings.Split(authHeader, "Bearer ")
			if len(splitToken) == 2 {
				token, err := jwt.Parse(splitToken[1], func(token *jwt.Token) (interface{}, error) {
					if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
					}
					return []byte(signingKey), nil
				})
				if err == nil && token.Valid {
					if claims, ok := token.Claims.(jwt.MapClaims); ok {
						if id, ok := claims["id"].(string); ok && id != "" {
							ctx := context.WithValue(r.Context(), userIDKey, id)
							r = r.WithContext(ctx)
						}
					}
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from handler panics and returns a generic
// error to the client.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %s\n", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts and durations per route template.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.collector == nil {
			next.ServeHTTP(w, r)
			return
		}

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		s.collector.HTTPRequest(route, strconv.Itoa(recorder.status), time.Since(start))
	})
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/auth/signup", s.handleSignUp).Methods(http.MethodPost)
	r.HandleFunc("/auth/signin", s.handleSignIn).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)

	r.HandleFunc("/habits", s.handleListHabits).Methods(http.MethodGet)
	r.HandleFunc("/habits/create", s.handleCreateHabit).Methods(http.MethodPost)
	r.HandleFunc("/habits/{name}/complete", s.handleCompleteToday).Methods(http.MethodPost)
	r.HandleFunc("/habits/{name}/uncomplete", s.handleUncompleteToday).Methods(http.MethodPost)
	r.HandleFunc("/habits/{name}/progress", s.handleSetProgress).Methods(http.MethodPost)
	r.HandleFunc("/habits/{name}/progress/batch", s.handleBatchProgress).Methods(http.MethodPost)
	r.HandleFunc("/habits/{name}/update", s.handleUpdateHabit).Methods(http.MethodPost)
	r.HandleFunc("/habits/{name}/delete", s.handleDeleteHabit).Methods(http.MethodPost)

	r.HandleFunc("/api/progress/today", s.handleProgressToday).Methods(http.MethodGet)
	r.HandleFunc("/api/progress/week", s.handleProgressWeek).Methods(http.MethodGet)
	r.HandleFunc("/api/progress/calendar", s.handleProgressCalendar).Methods(http.MethodGet)

	r.HandleFunc("/api/journal", s.handleListJournal).Methods(http.MethodGet)
	r.HandleFunc("/api/journal", s.handleAddJournal).Methods(http.MethodPost)
	r.HandleFunc("/api/profile", s.handleProfile).Methods(http.MethodGet)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.collector != nil {
		r.Handle("/metrics", s.collector.Handler()).Methods(http.MethodGet)
	}

	return r
}

// Handler wraps the router in the recovery, JWT and CORS middleware stack.
func (s *Server) Handler() http.Handler {
	handler := recoveryMiddleware(jwtMiddleware(s.signingKey, s.Router()))

	corsOrigins := handlers.AllowedOrigins([]string{"*"})
	corsMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"})
	corsHeaders := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"})

	return handlers.CORS(corsOrigins, corsMethods, corsHeaders)(handler)
}

// Start runs the server on addr until it fails. The handler stack is wrapped
// in the access-logging middleware.
func (s *Server) Start(addr string, readTimeout, writeTimeout time.Duration) error {
	loggingRouter := handlers.LoggingHandler(os.Stdout, s.Handler())

	server := &http.Server{
		Handler:      loggingRouter,
		Addr:         addr,
		WriteTimeout: writeTimeout,
		ReadTimeout:  readTimeout,
	}

	log.Printf("listening on %s", addr)
	return server.ListenAndServe()
}
