// Package engine assembles a settlement engine from configuration, a store
// and a rail binding, and runs its lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"settlement-engine/internal/account"
	"settlement-engine/internal/connector"
	"settlement-engine/internal/correlation"
	"settlement-engine/internal/handshake"
	"settlement-engine/internal/platform/config"
	"settlement-engine/internal/platform/httpserver"
	"settlement-engine/internal/platform/metrics"
	"settlement-engine/internal/plugin"
	"settlement-engine/internal/settlement"
	"settlement-engine/internal/settlement/events"
	"settlement-engine/internal/storage"
	httptransport "settlement-engine/internal/transport/http"
)

type Engine struct {
	cfg     config.Engine
	binding plugin.Binding
	logger  *slog.Logger

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	sink       events.Sink

	service *settlement.Service
	handler http.Handler

	server   *http.Server
	listener net.Listener
	serveErr chan error
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEvents sends settlement outcomes to sink.
func WithEvents(sink events.Sink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithPrometheus registers the engine's collectors on reg and serves
// gatherer on /metrics. By default each engine gets a private registry.
func WithPrometheus(reg prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(e *Engine) {
		if reg != nil && gatherer != nil {
			e.registerer = reg
			e.gatherer = gatherer
		}
	}
}

// New validates cfg and wires every component. Whether the webhook route
// exists is decided here, from the binding's Subscribe hook.
func New(cfg config.Engine, store storage.Store, binding plugin.Binding, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if binding.Rail == nil {
		return nil, errors.New("engine: rail is required")
	}
	if store == nil {
		return nil, errors.New("engine: store is required")
	}

	registry := prometheus.NewRegistry()
	e := &Engine{
		cfg:        cfg,
		binding:    binding,
		logger:     slog.New(slog.DiscardHandler),
		registerer: registry,
		gatherer:   registry,
		sink:       events.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}

	m := metrics.New(e.registerer)
	keys := storage.Keyspace{Prefix: cfg.Prefix}
	accounts := account.NewRegistry(store, keys,
		account.WithLogger(e.logger),
		account.WithMetrics(m),
	)
	client := connector.New(cfg.ConnectorURL, cfg.OutboundTimeout,
		connector.WithLogger(e.logger),
		connector.WithMetrics(m),
	)

	responderOpts := []handshake.ResponderOption{handshake.WithResponderLogger(e.logger)}
	serviceOpts := []settlement.Option{
		settlement.WithLogger(e.logger),
		settlement.WithMetrics(m),
		settlement.WithEvents(e.sink),
	}
	if cfg.TracksTags() {
		tags := correlation.New(store, keys, correlation.WithLogger(e.logger))
		responderOpts = append(responderOpts, handshake.WithTags(tags))
		serviceOpts = append(serviceOpts, settlement.WithTagResolver(tags))
	}

	e.service = settlement.New(
		settlement.Config{
			AssetScale: cfg.AssetScale,
			UnitName:   cfg.UnitName,
			Timeout:    cfg.OutboundTimeout,
		},
		binding.Rail,
		accounts,
		handshake.NewInitiator(client),
		client,
		serviceOpts...,
	)

	var handlerOpts []httptransport.Option
	if binding.ServesWebhooks() {
		handlerOpts = append(handlerOpts, httptransport.WithWebhooks(e.service.HandleIncoming))
	}
	h := httptransport.New(accounts, handshake.NewResponder(cfg.Address, responderOpts...), e.service, e.logger, handlerOpts...)
	e.handler = httptransport.NewRouter(e.logger, m, e.gatherer, store, h)

	return e, nil
}

// Handler is the engine's full HTTP surface.
func (e *Engine) Handler() http.Handler {
	return e.handler
}

// Settlements exposes the settlement service, mainly so callers can Wait.
func (e *Engine) Settlements() *settlement.Service {
	return e.service
}

// Addr is the bound listen address, valid after Start.
func (e *Engine) Addr() string {
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Start binds the listener, then runs the Configure and Subscribe hooks.
// A hook failure closes the listener and is returned.
func (e *Engine) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", e.cfg.Addr(), err)
	}
	e.listener = ln
	e.server = httpserver.New(ln.Addr().String(), e.handler, e.cfg.HTTP)
	e.serveErr = make(chan error, 1)
	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.serveErr <- err
		}
		close(e.serveErr)
	}()
	e.logger.InfoContext(ctx, "engine listening", "addr", ln.Addr().String())

	if e.binding.Configure != nil {
		err := e.binding.Configure(ctx, plugin.ConfigureParams{
			Address: e.cfg.Address,
			Client:  e.cfg.ClientID,
			Secret:  e.cfg.Secret,
			Mode:    string(e.cfg.Mode),
			Host:    e.cfg.URL,
		})
		if err != nil {
			_ = e.server.Close()
			return fmt.Errorf("configure rail: %w", err)
		}
	}
	e.logger.InfoContext(ctx, "engine up",
		"url", e.cfg.URL,
		"mode", string(e.cfg.Mode),
		"asset_scale", e.cfg.AssetScale,
		"unit", e.cfg.UnitName,
	)

	if e.binding.Subscribe != nil {
		err := e.binding.Subscribe(ctx, plugin.SubscribeParams{
			Host:    e.cfg.URL,
			Handler: e.service.HandleIncoming,
		})
		if err != nil {
			_ = e.server.Close()
			return fmt.Errorf("subscribe rail: %w", err)
		}
		e.logger.InfoContext(ctx, "rail subscriptions initialized")
	} else {
		e.logger.InfoContext(ctx, "accepting rail webhooks",
			"url", e.cfg.URL+"/accounts/"+e.cfg.Address+"/webhooks",
		)
	}
	return nil
}

// Done reports serve failures. It is closed when the server stops.
func (e *Engine) Done() <-chan error {
	return e.serveErr
}

// Close runs the Eliminate hook, shuts the HTTP server down and then waits
// for detached settlements. Shutdown returns only once in-flight handlers
// have finished, so no settlement can start after the drain begins. ctx
// bounds the whole sequence.
func (e *Engine) Close(ctx context.Context) error {
	e.logger.InfoContext(ctx, "shutting down engine")

	var errs []error
	if e.binding.Eliminate != nil {
		if err := e.binding.Eliminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("eliminate rail: %w", err))
		}
	}

	if e.server != nil {
		if err := e.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
		}
	}

	drained := make(chan struct{})
	go func() {
		e.service.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("drain settlements: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}

// Run starts the engine and blocks until ctx is done or the server fails.
// It then closes the engine, allowing shutdownTimeout for the sequence.
func (e *Engine) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := e.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case err, ok := <-e.Done():
		if ok {
			serveErr = err
		}
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, e.Close(closeCtx))
}
