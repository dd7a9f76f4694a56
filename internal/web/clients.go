package web

import (
	"net/http"
	"time"

	"dayplan/internal/model"
)

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.store.Clients().ListByOwner(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		writeStoreError(w, err, "list clients")
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var c model.Client
	if !decodeJSON(w, r, &c) {
		return
	}
	c.ID, c.OwnerID = "", ""
	c.CreatedAt, c.UpdatedAt = time.Time{}, time.Time{}

	if err := model.ValidateClient(c); err != nil {
		writeStoreError(w, err, "create client")
		return
	}
	created, err := s.store.Clients().Create(r.Context(), ownerFrom(r.Context()), c)
	if err != nil {
		writeStoreError(w, err, "create client")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.Clients().Get(r.Context(), ownerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err, "get client")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	id := r.PathValue("id")

	existing, err := s.store.Clients().Get(r.Context(), owner, id)
	if err != nil {
		writeStoreError(w, err, "update client")
		return
	}

	var c model.Client
	if !decodeJSON(w, r, &c) {
		return
	}
	c.ID, c.OwnerID, c.CreatedAt = id, owner, existing.CreatedAt

	if err := model.ValidateClient(c); err != nil {
		writeStoreError(w, err, "update client")
		return
	}
	updated, err := s.store.Clients().Update(r.Context(), owner, c)
	if err != nil {
		writeStoreError(w, err, "update client")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clients().Delete(r.Context(), ownerFrom(r.Context()), r.PathValue("id")); err != nil {
		writeStoreError(w, err, "delete client")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
