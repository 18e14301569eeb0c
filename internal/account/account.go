// Package account owns account identity. Accounts are immutable once written;
// balances live in the connector, not here.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"settlement-engine/internal/platform/metrics"
	"settlement-engine/internal/storage"
	dErrors "settlement-engine/pkg/domain-errors"
)

// Account is the engine's view of a peer relationship.
type Account struct {
	ID string `json:"id"`
}

// Registry creates, finds and removes accounts in the key-value store.
type Registry struct {
	store   storage.Store
	keys    storage.Keyspace
	newID   func() string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithIDGenerator replaces uuid.NewString for generated account ids.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

func NewRegistry(store storage.Store, keys storage.Keyspace, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		keys:   keys,
		newID:  uuid.NewString,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a new account, generating an id when id is empty. If the id
// is already taken the stored record is returned untouched and created is
// false. The existence check and the write are separate store calls.
func (r *Registry) Create(ctx context.Context, id string) (acct *Account, created bool, err error) {
	if id == "" {
		id = r.newID()
	}

	existing, err := r.Find(ctx, id)
	if err == nil {
		return existing, false, nil
	}
	if !dErrors.Is(err, dErrors.CodeNotFound) {
		return nil, false, err
	}

	acct = &Account{ID: id}
	raw, err := json.Marshal(acct)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode account")
	}
	if err := r.store.Set(ctx, r.keys.Account(id), string(raw)); err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save account")
	}

	r.logger.InfoContext(ctx, "account created", "account_id", id)
	r.metrics.IncrementAccountsCreated()
	return acct, true, nil
}

// Find loads an account. Absent accounts yield a CodeNotFound error.
func (r *Registry) Find(ctx context.Context, id string) (*Account, error) {
	raw, err := r.store.Get(ctx, r.keys.Account(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	var acct Account
	if err := json.Unmarshal([]byte(raw), &acct); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored account is corrupt")
	}
	return &acct, nil
}

// Remove deletes an account unconditionally. Removing an unknown id succeeds.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, r.keys.Account(id)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete account")
	}
	r.logger.InfoContext(ctx, "account removed", "account_id", id)
	return nil
}
