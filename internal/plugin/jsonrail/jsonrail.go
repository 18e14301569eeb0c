// Package jsonrail is a minimal rail used to run the engine end to end
// without a real payment processor. Incoming events are JSON documents
//
//	{"id": "<account id or tag>", "pay": "<major units>", "status": "succeeded"}
//
// and outgoing settlements are only logged.
package jsonrail

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/big"

	"settlement-engine/internal/plugin"
	dErrors "settlement-engine/pkg/domain-errors"
)

const statusSucceeded = "succeeded"

type Rail struct {
	logger   *slog.Logger
	unitName string
}

type Option func(*Rail)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Rail) {
		r.logger = logger
	}
}

// WithUnitName sets the unit label used in log lines.
func WithUnitName(name string) Option {
	return func(r *Rail) {
		r.unitName = name
	}
}

func New(opts ...Option) *Rail {
	r := &Rail{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type incoming struct {
	ID     string      `json:"id"`
	Pay    json.Number `json:"pay"`
	Status string      `json:"status"`
}

// HandleIncomingTransaction accepts only succeeded payments. A body that is
// not JSON is an error; any other status is a rejected transaction.
func (r *Rail) HandleIncomingTransaction(ctx context.Context, event plugin.Event) (plugin.TxResult, error) {
	dec := json.NewDecoder(bytes.NewReader(event.Body))
	dec.UseNumber()
	var in incoming
	if err := dec.Decode(&in); err != nil {
		return plugin.TxResult{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid rail event")
	}

	if in.Status != statusSucceeded {
		r.logger.WarnContext(ctx, "rail event not succeeded",
			"status", in.Status,
			"id", in.ID,
		)
		return plugin.TxResult{Result: false}, nil
	}

	return plugin.TxResult{
		Result: true,
		Value:  plugin.TxValue{ID: in.ID, Pay: in.Pay.String()},
	}, nil
}

func (r *Rail) SettleOutgoingTransaction(ctx context.Context, dest plugin.Destination, amount *big.Int) error {
	attrs := []any{
		"address", dest.Address,
		"amount", amount.String(),
		"unit", r.unitName,
	}
	if dest.Tag != nil {
		attrs = append(attrs, "tag", *dest.Tag)
	}
	r.logger.InfoContext(ctx, "outgoing settlement", attrs...)
	return nil
}
