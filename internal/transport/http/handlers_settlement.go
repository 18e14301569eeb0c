package httptransport

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"settlement-engine/internal/plugin"
	dErrors "settlement-engine/pkg/domain-errors"
	"settlement-engine/pkg/platform/httputil"
	"settlement-engine/pkg/requestcontext"
)

type settlementRequest struct {
	Amount string `json:"amount"`
	Scale  *int   `json:"scale"`
}

func (r *settlementRequest) Validate() error {
	r.Amount = strings.TrimSpace(r.Amount)
	if r.Amount == "" {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	if r.Scale == nil {
		return dErrors.New(dErrors.CodeValidation, "scale is required")
	}
	return nil
}

// handleMessage relays a peer's raw handshake message and returns the raw reply.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	acct := accountFrom(ctx)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	reply, err := h.messages.Respond(ctx, acct.ID, raw)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to handle message",
			"request_id", requestID,
			"account_id", acct.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}

func (h *Handler) handleSettlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	acct := accountFrom(ctx)

	req, ok := httputil.DecodeAndPrepare[settlementRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	receipt, err := h.settler.Settle(ctx, acct.ID, req.Amount, *req.Scale)
	if err != nil {
		h.logger.WarnContext(ctx, "settlement refused",
			"request_id", requestID,
			"account_id", acct.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, receipt)
}

// handleWebhook hands a rail event to the inbound handler. Rejected and
// unresolvable transactions answer 404.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	err = h.incoming(ctx, plugin.Event{
		AccountRef: chi.URLParam(r, "id"),
		Header:     r.Header.Clone(),
		Body:       body,
	})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case dErrors.Is(err, dErrors.CodeBadRequest), dErrors.Is(err, dErrors.CodeNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{
			"error":             string(dErrors.CodeNotFound),
			"error_description": "transaction not accepted",
		})
	default:
		h.logger.ErrorContext(ctx, "failed to handle webhook",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
	}
}
