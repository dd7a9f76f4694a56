// Package web serves the planner API, the rendered day page and the PNG
// preview over net/http.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"dayplan/internal/config"
	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Deps are the collaborators a Server needs.
type Deps struct {
	Config *config.Config
	Store  store.Store
	// Verifier enables Firebase ID-token auth when non-nil.
	Verifier TokenVerifier
	// PreviewPath is the PNG served at /preview.png.
	PreviewPath string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server provides the HTTP API.
type Server struct {
	cfg      *config.Config
	store    store.Store
	verifier TokenVerifier
	preview  string
	now      func() time.Time
	loc      *time.Location
	mux      *http.ServeMux

	// Per owner and date cache of /api/timeline responses.
	timelineMu    sync.RWMutex
	timelineCache map[cacheKey]timelineEntry
	// timelineGen counts invalidations per owner; a build started under an
	// older generation is not cached.
	timelineGen map[string]uint64
	flight      singleflight.Group
}

// NewServer constructs a Server and registers its routes.
func NewServer(d Deps) *Server {
	s := &Server{
		cfg:           d.Config,
		store:         d.Store,
		verifier:      d.Verifier,
		preview:       d.PreviewPath,
		now:           d.Now,
		loc:           resolveLocationOrLocal(d.Config.Timezone),
		mux:           http.NewServeMux(),
		timelineCache: make(map[cacheKey]timelineEntry),
		timelineGen:   make(map[string]uint64),
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.registerRoutes()
	return s
}

// Handler returns the routes wrapped in authentication.
func (s *Server) Handler() http.Handler {
	switch {
	case s.verifier != nil && s.basicAuthEnabled():
		appLog.Info("HTTP auth enabled", "modes", "firebase,basic")
	case s.verifier != nil:
		appLog.Info("HTTP auth enabled", "modes", "firebase")
	case s.basicAuthEnabled():
		appLog.Info("HTTP auth enabled", "modes", "basic")
	default:
		appLog.Warn("HTTP auth disabled; all requests act as the configured owner", "owner", s.cfg.OwnerID)
	}
	return s.authMiddleware(s.mux)
}

// OwnerHandler returns the routes without authentication, acting as owner
// on every request. It is meant for loopback listeners only.
func (s *Server) OwnerHandler(owner string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mux.ServeHTTP(w, r.WithContext(withOwner(r.Context(), owner)))
	})
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	s.mux.HandleFunc("GET /api/tap", s.handleTap)

	s.mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("PUT /api/tasks/{id}", s.handleUpdateTask)
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)

	s.mux.HandleFunc("GET /api/clients", s.handleListClients)
	s.mux.HandleFunc("POST /api/clients", s.handleCreateClient)
	s.mux.HandleFunc("GET /api/clients/{id}", s.handleGetClient)
	s.mux.HandleFunc("PUT /api/clients/{id}", s.handleUpdateClient)
	s.mux.HandleFunc("DELETE /api/clients/{id}", s.handleDeleteClient)

	s.mux.HandleFunc("GET /day", s.handleDayPage)
	s.mux.HandleFunc("GET /day.svg", s.handleDaySVG)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last captured PNG from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.preview == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.preview)
}

// today is the current date in the configured timezone.
func (s *Server) today() string {
	return s.now().In(s.loc).Format(model.DateLayout)
}

// dateParam returns ?date=, defaulting to today. ok is false (and a 400 has
// been written) for a malformed date.
func (s *Server) dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return s.today(), true
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; want YYYY-MM-DD")
		return "", false
	}
	return date, true
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeStoreError maps repository and validation errors onto statuses.
func writeStoreError(w http.ResponseWriter, err error, op string) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		type validationResp struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		writeJSON(w, http.StatusUnprocessableEntity, validationResp{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	default:
		appLog.Error("store operation failed", err, "op", op)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
