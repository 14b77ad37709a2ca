package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/target/sarbatch/internal/domain/cost"
	"github.com/target/sarbatch/internal/domain/model"
)

// UserLedger is the part of the credit ledger exposed to callers.
type UserLedger interface {
	GetOrCreate(ctx context.Context, userID string) (*model.User, error)
	SubmitApplication(ctx context.Context, userID, useCase string) (*model.User, error)
}

// CostSource exposes the configured cost table.
type CostSource interface {
	Costs() cost.Table
}

// UserHandlers serves the caller's ledger record and the public cost table.
type UserHandlers struct {
	Ledger UserLedger
	Costs  CostSource
	Logger *slog.Logger
}

type applicationRequest struct {
	UseCase string `json:"use_case"`
}

// GetUser returns the caller's record, creating it on first contact and applying a due
// monthly reset.
func (h *UserHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "unauthenticated", Err: errMissingUser})
		return
	}

	user, err := h.Ledger.GetOrCreate(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

// SubmitApplication records the caller's request for access.
func (h *UserHandlers) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "unauthenticated", Err: errMissingUser})
		return
	}

	var req applicationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	user, err := h.Ledger.SubmitApplication(r.Context(), userID, req.UseCase)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

// GetCosts returns the cost rule of every job type.
func (h *UserHandlers) GetCosts(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.Costs.Costs())
}
