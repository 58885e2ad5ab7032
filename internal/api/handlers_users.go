package api

import (
	"net/http"
	"subscriber/internal/models"

	"github.com/gorilla/mux"
)

// CreateUser registers a user
// POST /api/v1/users
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	user, err := h.users.Register(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, user.ToResponse())
}

// Login exchanges credentials for a bearer token
// POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	resp, err := h.users.Login(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, resp)
}

// ListUsers returns every user, newest first
// GET /api/v1/users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := models.ListUsersResponse{
		Users:      make([]models.UserResponse, 0, len(users)),
		TotalCount: len(users),
	}
	for _, u := range users {
		resp.Users = append(resp.Users, u.ToResponse())
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// GetUser returns one user
// GET /api/v1/users/{id}
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, user.ToResponse())
}

// UpdateUser applies a partial update
// PUT /api/v1/users/{id}
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	user, err := h.users.Update(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, user.ToResponse())
}

// DeleteUser removes a user
// DELETE /api/v1/users/{id}
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
