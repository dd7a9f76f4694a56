package web

import (
	"net/http"
	"time"

	"dayplan/internal/model"
)

// handleListTasks lists by ?client_id= when given, else by ?date=
// (default today).
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())

	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		tasks, err := s.store.Tasks().ListByClient(r.Context(), owner, clientID)
		if err != nil {
			writeStoreError(w, err, "list tasks by client")
			return
		}
		writeJSON(w, http.StatusOK, tasks)
		return
	}

	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	tasks, err := s.store.Tasks().ListByDate(r.Context(), owner, date)
	if err != nil {
		writeStoreError(w, err, "list tasks by date")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var t model.Task
	if !decodeJSON(w, r, &t) {
		return
	}
	// Store-assigned fields are never taken from the client.
	t.ID, t.OwnerID, t.Source = "", "", ""
	t.CreatedAt, t.UpdatedAt = time.Time{}, time.Time{}

	if err := model.ValidateTask(t); err != nil {
		writeStoreError(w, err, "create task")
		return
	}
	owner := ownerFrom(r.Context())
	created, err := s.store.Tasks().Create(r.Context(), owner, t)
	if err != nil {
		writeStoreError(w, err, "create task")
		return
	}
	s.invalidateTimeline(owner)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.Tasks().Get(r.Context(), ownerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err, "get task")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	id := r.PathValue("id")

	existing, err := s.store.Tasks().Get(r.Context(), owner, id)
	if err != nil {
		writeStoreError(w, err, "update task")
		return
	}
	if existing.ReadOnly() {
		writeError(w, http.StatusConflict, "task is imported from a calendar and read-only")
		return
	}

	var t model.Task
	if !decodeJSON(w, r, &t) {
		return
	}
	t.ID, t.OwnerID, t.Source = id, owner, ""
	t.CreatedAt = existing.CreatedAt

	if err := model.ValidateTask(t); err != nil {
		writeStoreError(w, err, "update task")
		return
	}
	updated, err := s.store.Tasks().Update(r.Context(), owner, t)
	if err != nil {
		writeStoreError(w, err, "update task")
		return
	}
	s.invalidateTimeline(owner)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	id := r.PathValue("id")

	existing, err := s.store.Tasks().Get(r.Context(), owner, id)
	if err != nil {
		writeStoreError(w, err, "delete task")
		return
	}
	if existing.ReadOnly() {
		writeError(w, http.StatusConflict, "task is imported from a calendar and read-only")
		return
	}
	if err := s.store.Tasks().Delete(r.Context(), owner, id); err != nil {
		writeStoreError(w, err, "delete task")
		return
	}
	s.invalidateTimeline(owner)
	w.WriteHeader(http.StatusNoContent)
}
