package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/maauso/smartdub-api/internal/account"
)

// CreateAccount handles POST /accounts. The body is optional.
func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	a, err := h.accounts.Register(r.Context(), account.Plan(req.Plan))
	if err != nil {
		if errors.Is(err, account.ErrInvalidPlan) {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PLAN")
			return
		}
		h.logger.Error("failed to register account", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create account", "ACCOUNT_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, CreateAccountResponse{Code: a.Code})
}

// GetAccount handles GET /accounts/{code}.
func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	state, err := h.accounts.State(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse(state))
}

// BindAccount handles POST /accounts/{code}/bind.
func (h *Handlers) BindAccount(w http.ResponseWriter, r *http.Request) {
	var req BindAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	a, err := h.accounts.Bind(r.Context(), r.PathValue("code"), req.ExternalID)
	if err != nil {
		h.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BindAccountResponse{
		Success:            true,
		UsageTimeRemaining: a.UsageRemaining,
	})
}

// TopUp handles POST /accounts/{code}/top-up. It is wrapped by
// AdminAuthMiddleware.
func (h *Handlers) TopUp(w http.ResponseWriter, r *http.Request) {
	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if req.Credits == 0 && req.UsageTime == 0 {
		writeError(w, http.StatusBadRequest, "credits or usage_time must be positive", "INVALID_AMOUNT")
		return
	}

	code := r.PathValue("code")
	var (
		state account.State
		err   error
	)
	if req.Credits > 0 {
		if state, err = h.accounts.TopUp(r.Context(), code, req.Credits); err != nil {
			h.writeAccountError(w, err)
			return
		}
	}
	if req.UsageTime > 0 {
		if state, err = h.accounts.GrantUsage(r.Context(), code, req.UsageTime); err != nil {
			h.writeAccountError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, accountResponse(state))
}

func (h *Handlers) writeAccountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account not found", "ACCOUNT_NOT_FOUND")
	case errors.Is(err, account.ErrAlreadyBound):
		writeError(w, http.StatusConflict, "account already bound", "ALREADY_BOUND")
	case errors.Is(err, account.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_AMOUNT")
	default:
		h.logger.Error("account operation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

func accountResponse(s account.State) AccountResponse {
	return AccountResponse{
		Authorized:                 s.Authorized,
		UsageTimeRemaining:         s.UsageRemaining,
		SubmissionCreditsRemaining: s.CreditsRemaining,
		Plan:                       string(s.Plan),
	}
}
