// Package settlement ties the engine together: outbound settlements
// requested by the connector and inbound transactions reported by the rail.
package settlement

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"settlement-engine/internal/account"
	"settlement-engine/internal/platform/metrics"
	"settlement-engine/internal/plugin"
	"settlement-engine/internal/settlement/events"
)

const defaultTimeout = 10 * time.Second

// AccountFinder loads accounts from the registry.
type AccountFinder interface {
	Find(ctx context.Context, id string) (*account.Account, error)
}

// PaymentDetailer performs the outbound handshake with a peer engine.
type PaymentDetailer interface {
	PaymentDetails(ctx context.Context, accountID, units string) (plugin.Destination, error)
}

// Notifier credits accounts at the connector.
type Notifier interface {
	NotifySettlement(ctx context.Context, accountID string, amount *big.Int, scale int) error
}

// TagResolver maps a correlation tag back to an account id.
type TagResolver interface {
	AccountFor(ctx context.Context, tag string) (string, error)
}

type Config struct {
	AssetScale int
	UnitName   string
	// Timeout bounds each detached settlement task.
	Timeout time.Duration
}

type Service struct {
	cfg      Config
	rail     plugin.Rail
	accounts AccountFinder
	details  PaymentDetailer
	notifier Notifier
	tags     TagResolver
	sink     events.Sink
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	inFlight sync.WaitGroup
}

type Option func(*Service)

// WithTagResolver switches inbound correlation from account ids to tags.
func WithTagResolver(tags TagResolver) Option {
	return func(s *Service) {
		s.tags = tags
	}
}

func WithEvents(sink events.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, rail plugin.Rail, accounts AccountFinder, details PaymentDetailer, notifier Notifier, opts ...Option) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	s := &Service{
		cfg:      cfg,
		rail:     rail,
		accounts: accounts,
		details:  details,
		notifier: notifier,
		sink:     events.Nop{},
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, e events.Event) {
	e.OccurredAt = s.now()
	s.sink.Emit(ctx, e)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
