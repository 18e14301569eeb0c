// Package handshake implements the peer-to-peer "payment details" exchange.
// Before paying a peer, the engine asks the peer's engine where to send the
// money; the peer answers with its settlement address and, when it tracks
// them, a correlation tag identifying the paying account.
package handshake

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"settlement-engine/internal/platform/tracing"
	"settlement-engine/internal/plugin"
	dErrors "settlement-engine/pkg/domain-errors"
)

// TypePaymentDetails is the only message type peers understand.
const TypePaymentDetails = "paymentDetails"

type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type paymentDetailsRequest struct {
	Units string `json:"units"`
}

// TagSource hands out correlation tags per account.
type TagSource interface {
	TagFor(ctx context.Context, accountID string) (uint32, error)
}

// Responder answers handshake messages addressed to this engine.
type Responder struct {
	address string
	tags    TagSource
	logger  *slog.Logger
}

type ResponderOption func(*Responder)

// WithTags makes payment details carry the account's correlation tag.
func WithTags(tags TagSource) ResponderOption {
	return func(r *Responder) {
		r.tags = tags
	}
}

func WithResponderLogger(logger *slog.Logger) ResponderOption {
	return func(r *Responder) {
		r.logger = logger
	}
}

func NewResponder(address string, opts ...ResponderOption) *Responder {
	r := &Responder{
		address: address,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond handles a raw message from the peer behind accountID. The caller
// has already checked that accountID exists.
func (r *Responder) Respond(ctx context.Context, accountID string, raw []byte) ([]byte, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed message")
	}

	switch msg.Type {
	case TypePaymentDetails:
		return r.paymentDetails(ctx, accountID)
	default:
		r.logger.WarnContext(ctx, "unsupported message type",
			"account_id", accountID,
			"type", msg.Type,
		)
		return nil, dErrors.New(dErrors.CodeBadRequest, "unsupported message type")
	}
}

func (r *Responder) paymentDetails(ctx context.Context, accountID string) ([]byte, error) {
	ctx, span := tracing.Start(ctx, "handshake.respond",
		attribute.String("account_id", accountID),
	)
	defer span.End()

	details := plugin.Destination{Address: r.address}
	if r.tags != nil {
		tag, err := r.tags.TagFor(ctx, accountID)
		if err != nil {
			tracing.Fail(span, "tag lookup failed", err)
			return nil, err
		}
		details.Tag = &tag
	}

	out, err := json.Marshal(details)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode payment details")
	}
	return out, nil
}

// Messenger delivers raw handshake bytes to a peer and returns its reply.
type Messenger interface {
	SendMessage(ctx context.Context, accountID string, raw []byte) ([]byte, error)
}

// Initiator asks peers for their payment details.
type Initiator struct {
	messenger Messenger
}

func NewInitiator(messenger Messenger) *Initiator {
	return &Initiator{messenger: messenger}
}

// PaymentDetails requests the destination for paying units to accountID.
func (i *Initiator) PaymentDetails(ctx context.Context, accountID, units string) (plugin.Destination, error) {
	ctx, span := tracing.Start(ctx, "handshake.payment_details",
		attribute.String("account_id", accountID),
	)
	defer span.End()

	data, err := json.Marshal(paymentDetailsRequest{Units: units})
	if err != nil {
		return plugin.Destination{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode message")
	}
	raw, err := json.Marshal(Message{Type: TypePaymentDetails, Data: data})
	if err != nil {
		return plugin.Destination{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode message")
	}

	reply, err := i.messenger.SendMessage(ctx, accountID, raw)
	if err != nil {
		tracing.Fail(span, "payment details request failed", err)
		return plugin.Destination{}, err
	}

	var dest plugin.Destination
	if err := json.Unmarshal(reply, &dest); err != nil {
		tracing.Fail(span, "malformed payment details", err)
		return plugin.Destination{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "malformed payment details")
	}
	if dest.Address == "" {
		err := dErrors.New(dErrors.CodeUnavailable, "payment details carry no address")
		tracing.Fail(span, "invalid payment details", err)
		return plugin.Destination{}, err
	}
	return dest, nil
}
