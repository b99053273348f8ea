// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/model"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/repository"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// GameHandler holds the HTTP handlers for game scheduling and play.
type GameHandler struct {
	svc *service.GameService
	log *zap.Logger
}

// NewGameHandler constructs a GameHandler.
func NewGameHandler(svc *service.GameService, log *zap.Logger) *GameHandler {
	return &GameHandler{svc: svc, log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

// decodeJSON reads a JSON body of at most 1 MB. An empty body leaves dst
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeServiceError maps a service or repository error to its HTTP status.
// Anything unrecognised is logged and reported as a 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrInvalidState),
		errors.Is(err, repository.ErrGameFull),
		errors.Is(err, repository.ErrAlreadyApplied),
		errors.Is(err, repository.ErrUserConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrInsufficientTickets),
		errors.Is(err, repository.ErrInvalidRankings),
		errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateGame handles POST /games
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req model.CreateGameRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	game, err := h.svc.CreateGame(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, game)
}

// ListGames handles GET /games
// Returns every game newest first with its participant count and winner.
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.svc.ListGames(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if games == nil {
		games = []model.GameSummary{}
	}

	writeJSON(w, http.StatusOK, games)
}

// GetGame handles GET /games/{id}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.svc.GetGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, game)
}

// Apply handles POST /games/{id}/apply
// The body is optional; {"useTicket": true} spends a ticket for a confirmed seat.
func (h *GameHandler) Apply(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	var req model.ApplyRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	p, err := h.svc.Apply(r.Context(), chi.URLParam(r, "id"), caller.UserID, req.UseTicket)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// StartGame handles POST /games/{id}/start
func (h *GameHandler) StartGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.svc.StartGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, game)
}

// FinishGame handles POST /games/{id}/finish
// Closes a running game with final placements and applies rating changes.
func (h *GameHandler) FinishGame(w http.ResponseWriter, r *http.Request) {
	var req model.FinishGameRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.svc.FinishGame(r.Context(), chi.URLParam(r, "id"), req.Rankings)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
