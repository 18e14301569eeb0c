package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"settlement-engine/internal/account"
	dErrors "settlement-engine/pkg/domain-errors"
	"settlement-engine/pkg/platform/httputil"
	"settlement-engine/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

type accountCtxKey struct{}

type createAccountRequest struct {
	ID string `json:"id"`
}

func (r *createAccountRequest) Validate() error {
	r.ID = strings.TrimSpace(r.ID)
	if strings.ContainsAny(r.ID, "/:") {
		return dErrors.New(dErrors.CodeValidation, "account id must not contain '/' or ':'")
	}
	return nil
}

// handleCreateAccount creates an account or returns the existing one. The
// body is optional; without an id one is generated.
func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	var req createAccountRequest
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			h.logger.WarnContext(ctx, "invalid create account request",
				"request_id", requestID,
				"error", err,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	acct, created, err := h.accounts.Create(ctx, req.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create account",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if !created {
		h.logger.InfoContext(ctx, "account already exists",
			"request_id", requestID,
			"account_id", acct.ID,
		)
	}
	httputil.WriteJSON(w, http.StatusCreated, acct)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Find(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acct)
}

func (h *Handler) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.accounts.Remove(ctx, chi.URLParam(r, "id")); err != nil {
		h.logger.ErrorContext(ctx, "failed to delete account",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireAccount rejects requests for unknown accounts with 404 and makes
// the account available to the next handler.
func (h *Handler) requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, err := h.accounts.Find(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.writeLookupError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), accountCtxKey{}, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountFrom(ctx context.Context) *account.Account {
	acct, _ := ctx.Value(accountCtxKey{}).(*account.Account)
	return acct
}

func (h *Handler) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if !dErrors.Is(err, dErrors.CodeNotFound) {
		ctx := r.Context()
		h.logger.ErrorContext(ctx, "failed to load account",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
