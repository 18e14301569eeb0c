// Package httptransport exposes the engine over HTTP: the account API used by
// the connector, the peer message endpoint and, for rails that do not
// subscribe on their own, the webhook endpoint.
package httptransport

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"settlement-engine/internal/account"
	"settlement-engine/internal/plugin"
	"settlement-engine/internal/settlement"
)

// AccountService manages accounts.
type AccountService interface {
	Create(ctx context.Context, id string) (*account.Account, bool, error)
	Find(ctx context.Context, id string) (*account.Account, error)
	Remove(ctx context.Context, id string) error
}

// MessageResponder answers peer handshake messages.
type MessageResponder interface {
	Respond(ctx context.Context, accountID string, raw []byte) ([]byte, error)
}

// Settler accepts settlement instructions from the connector.
type Settler interface {
	Settle(ctx context.Context, accountID, amount string, scale int) (settlement.Receipt, error)
}

// Handler serves the account-scoped routes.
type Handler struct {
	accounts AccountService
	messages MessageResponder
	settler  Settler
	incoming plugin.Handler
	logger   *slog.Logger
}

type Option func(*Handler)

// WithWebhooks exposes POST /accounts/{id}/webhooks, delivering rail events
// to incoming. Without it the route does not exist.
func WithWebhooks(incoming plugin.Handler) Option {
	return func(h *Handler) {
		h.incoming = incoming
	}
}

func New(accounts AccountService, messages MessageResponder, settler Settler, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		accounts: accounts,
		messages: messages,
		settler:  settler,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the account routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/accounts", h.handleCreateAccount)
	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Get("/", h.handleGetAccount)
		r.Delete("/", h.handleDeleteAccount)

		r.With(h.requireAccount).Post("/messages", h.handleMessage)
		r.With(h.requireAccount).Post("/settlement", h.handleSettlement)
		if h.incoming != nil {
			r.Post("/webhooks", h.handleWebhook)
		}
	})
}
