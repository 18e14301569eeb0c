// Package plugin defines the contract between the engine and a payment rail.
//
// A rail must implement Rail. Lifecycle hooks are optional and discovered
// once, at Bind time, through the Configurer, Subscriber and Eliminator
// interfaces.
package plugin

//go:generate mockgen -source=plugin.go -destination=mocks/mocks.go -package=mocks Rail

import (
	"context"
	"math/big"
	"net/http"
)

// Event is a raw rail event, as received on the webhook route or handed to
// a Subscriber's handler.
type Event struct {
	// AccountRef is the account segment of the webhook path, if any.
	AccountRef string
	Header     http.Header
	Body       []byte
}

// TxValue is what a rail extracts from an incoming transaction. ID is either
// an account id or a correlation tag depending on deployment; Pay is a
// decimal amount in major units.
type TxValue struct {
	ID  string
	Pay string
}

type TxResult struct {
	Result bool
	Value  TxValue
}

// Destination is where an outgoing settlement is sent, as learned from the
// counterparty's payment details.
type Destination struct {
	Address string  `json:"address"`
	Tag     *uint32 `json:"tag,omitempty"`
}

// Rail is the required plugin surface.
type Rail interface {
	HandleIncomingTransaction(ctx context.Context, event Event) (TxResult, error)
	SettleOutgoingTransaction(ctx context.Context, dest Destination, amount *big.Int) error
}

type ConfigureParams struct {
	Address string
	Client  string
	Secret  string
	Mode    string
	Host    string
}

// Handler is the engine's inbound entry point given to subscribing rails.
type Handler func(ctx context.Context, event Event) error

type SubscribeParams struct {
	Host    string
	Handler Handler
}

type Configurer interface {
	ConfigureAPI(ctx context.Context, params ConfigureParams) error
}

// Subscriber rails deliver events themselves. When a rail subscribes, the
// engine does not expose the webhook route.
type Subscriber interface {
	SubscribeAPI(ctx context.Context, params SubscribeParams) error
}

type Eliminator interface {
	EliminateAPI(ctx context.Context) error
}

// Binding is a rail plus whichever hooks it provides. Absent hooks are nil.
type Binding struct {
	Rail      Rail
	Configure func(ctx context.Context, params ConfigureParams) error
	Subscribe func(ctx context.Context, params SubscribeParams) error
	Eliminate func(ctx context.Context) error
}

// Bind inspects r for optional hooks.
func Bind(r Rail) Binding {
	b := Binding{Rail: r}
	if c, ok := r.(Configurer); ok {
		b.Configure = c.ConfigureAPI
	}
	if s, ok := r.(Subscriber); ok {
		b.Subscribe = s.SubscribeAPI
	}
	if e, ok := r.(Eliminator); ok {
		b.Eliminate = e.EliminateAPI
	}
	return b
}

// ServesWebhooks reports whether the engine must accept rail events over HTTP.
func (b Binding) ServesWebhooks() bool {
	return b.Subscribe == nil
}
