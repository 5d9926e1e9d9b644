package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// RoundService defines the methods that the round handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type RoundService interface {
	Create(ctx context.Context, startPrice float64, mode int) (domain.Round, error)
	Get(ctx context.Context, id string) (domain.Round, error)
	Resolve(ctx context.Context, id string, finalPrice float64) (domain.Round, error)
	Active(ctx context.Context) (domain.Round, error)
}

// RoundHandler serves round-related HTTP endpoints.
type RoundHandler struct {
	rounds RoundService
	logger *slog.Logger
}

// NewRoundHandler creates a RoundHandler with the given service and logger.
func NewRoundHandler(rounds RoundService, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{
		rounds: rounds,
		logger: logger,
	}
}

type createRoundRequest struct {
	StartPrice float64 `json:"start_price"`
	Mode       int     `json:"mode"`
}

// CreateRound opens a new round.
// POST /api/rounds
func (h *RoundHandler) CreateRound(w http.ResponseWriter, r *http.Request) {
	var req createRoundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	round, err := h.rounds.Create(r.Context(), req.StartPrice, req.Mode)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMode):
			writeError(w, http.StatusBadRequest, "invalid round mode")
		case errors.Is(err, domain.ErrActiveRound):
			writeError(w, http.StatusConflict, "a round is already active")
		default:
			h.logger.ErrorContext(r.Context(), "handler: create round failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create round")
		}
		return
	}

	writeJSON(w, http.StatusCreated, round)
}

// GetRound returns a single round by its ID.
// GET /api/rounds/{id}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing round id")
		return
	}

	round, err := h.rounds.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "round not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get round failed",
			slog.String("round_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get round")
		return
	}

	writeJSON(w, http.StatusOK, round)
}

// GetActiveRound returns the current ACTIVE round.
// GET /api/rounds/active
func (h *RoundHandler) GetActiveRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.rounds.Active(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no active round")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get active round failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get active round")
		return
	}

	writeJSON(w, http.StatusOK, round)
}

type resolveRoundRequest struct {
	FinalPrice float64 `json:"final_price"`
}

// ResolveRound closes a round at the given final price.
// POST /api/rounds/{id}/resolve
func (h *RoundHandler) ResolveRound(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing round id")
		return
	}

	var req resolveRoundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	round, err := h.rounds.Resolve(r.Context(), id, req.FinalPrice)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "round not found")
		case errors.Is(err, domain.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, "round already resolved")
		default:
			h.logger.ErrorContext(r.Context(), "handler: resolve round failed",
				slog.String("round_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to resolve round")
		}
		return
	}

	writeJSON(w, http.StatusOK, round)
}
