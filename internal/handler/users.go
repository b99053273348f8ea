package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/model"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// UserHandler serves profiles, apply lists and the leaderboard.
type UserHandler struct {
	users    *service.UserService
	rankings *service.RankingService
	log      *zap.Logger
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users *service.UserService, rankings *service.RankingService, log *zap.Logger) *UserHandler {
	return &UserHandler{users: users, rankings: rankings, log: log}
}

// Rankings handles GET /users/rankings?page=&limit=
// An identified caller also gets their own entry as myRanking.
func (h *UserHandler) Rankings(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", defaultPage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, _ := CallerFrom(r.Context())
	out, err := h.rankings.Rankings(r.Context(), page, limit, caller.UserID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// ApplyList handles GET /users/applylist
func (h *UserHandler) ApplyList(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	apps, err := h.users.ApplyList(r.Context(), caller.UserID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, apps)
}

// GetUser handles GET /users/{id}
// The email is only included when callers look up themselves.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	view, err := h.users.GetUser(r.Context(), chi.URLParam(r, "id"), caller.UserID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// UpdateProfile handles PATCH /users
// Callers may only edit their own nickname and profile picture.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	var req model.ProfileUpdate
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	view, err := h.users.UpdateProfile(r.Context(), caller.UserID, req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s must be an integer, got %q", key, v)
	}
	return n, nil
}
