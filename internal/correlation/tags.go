// Package correlation maps accounts to short numeric tags so that rail events
// which cannot carry an account id can still be matched to one.
//
// TagFor is check-then-set over two independent store calls. Two concurrent
// first calls for one account can each mint a tag; the last writer wins the
// account->tag entry. Tags are drawn from the full uint32 space and
// collisions are not detected.
package correlation

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"settlement-engine/internal/storage"
	dErrors "settlement-engine/pkg/domain-errors"
)

// Registry maintains the tag<->account mapping.
type Registry struct {
	store  storage.Store
	keys   storage.Keyspace
	random func() uint32
	logger *slog.Logger
}

type Option func(*Registry)

// WithRandom replaces the tag source. Tests use it for deterministic tags.
func WithRandom(fn func() uint32) Option {
	return func(r *Registry) {
		if fn != nil {
			r.random = fn
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func New(store storage.Store, keys storage.Keyspace, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		keys:   keys,
		random: rand.Uint32,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TagFor returns the account's tag, minting and persisting one on first use.
func (r *Registry) TagFor(ctx context.Context, accountID string) (uint32, error) {
	raw, err := r.store.Get(ctx, r.keys.AccountTag(accountID))
	switch {
	case err == nil:
		tag, perr := strconv.ParseUint(raw, 10, 32)
		if perr != nil {
			return 0, dErrors.Wrap(perr, dErrors.CodeInternal, "stored tag is corrupt")
		}
		return uint32(tag), nil
	case !errors.Is(err, storage.ErrNotFound):
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tag")
	}

	tag := r.random()
	formatted := storage.FormatTag(tag)
	if err := r.store.Set(ctx, r.keys.TagAccount(formatted), accountID); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save tag")
	}
	if err := r.store.Set(ctx, r.keys.AccountTag(accountID), formatted); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save tag")
	}

	r.logger.InfoContext(ctx, "correlation tag assigned",
		"account_id", accountID,
		"tag", tag,
	)
	return tag, nil
}

// AccountFor resolves a tag as reported by a rail. Anything that is not a
// valid uint32 cannot name an account and is reported as not found.
func (r *Registry) AccountFor(ctx context.Context, tag string) (string, error) {
	n, err := strconv.ParseUint(tag, 10, 32)
	if err != nil {
		return "", dErrors.New(dErrors.CodeNotFound, "no account for tag")
	}

	accountID, err := r.store.Get(ctx, r.keys.TagAccount(storage.FormatTag(uint32(n))))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "no account for tag")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve tag")
	}
	return accountID, nil
}
