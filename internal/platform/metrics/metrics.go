package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry wiring.
type Metrics struct {
	AccountsCreated     prometheus.Counter
	SettlementsStarted  prometheus.Counter
	SettlementOutcomes  *prometheus.CounterVec
	CreditOutcomes      *prometheus.CounterVec
	InFlightSettlements prometheus.Gauge
	OutboundDuration    *prometheus.HistogramVec
	HTTPDuration        *prometheus.HistogramVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AccountsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "settlement_engine_accounts_created_total",
			Help: "Total number of accounts created (idempotent re-creates excluded)",
		}),
		SettlementsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "settlement_engine_settlements_started_total",
			Help: "Total number of outbound settlements accepted from the connector",
		}),
		SettlementOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_engine_settlement_outcomes_total",
			Help: "Outbound settlement outcomes by result and failing stage",
		}, []string{"result", "stage"}),
		CreditOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_engine_credit_outcomes_total",
			Help: "Inbound transaction outcomes by result",
		}, []string{"result"}),
		InFlightSettlements: f.NewGauge(prometheus.GaugeOpts{
			Name: "settlement_engine_settlements_in_flight",
			Help: "Detached settlement tasks currently running",
		}),
		OutboundDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settlement_engine_outbound_duration_seconds",
			Help:    "Latency of calls to the connector and counterparty engines",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"call"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settlement_engine_http_request_duration_seconds",
			Help:    "Latency of inbound HTTP requests by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncrementAccountsCreated() {
	if m == nil {
		return
	}
	m.AccountsCreated.Inc()
}

// SettlementStarted records an accepted settlement and marks it in flight.
func (m *Metrics) SettlementStarted() {
	if m == nil {
		return
	}
	m.SettlementsStarted.Inc()
	m.InFlightSettlements.Inc()
}

// SettlementFinished records the outcome of a detached settlement task.
// stage is empty on success.
func (m *Metrics) SettlementFinished(result, stage string) {
	if m == nil {
		return
	}
	m.InFlightSettlements.Dec()
	m.SettlementOutcomes.WithLabelValues(result, stage).Inc()
}

func (m *Metrics) IncrementCreditOutcome(result string) {
	if m == nil {
		return
	}
	m.CreditOutcomes.WithLabelValues(result).Inc()
}

// ObserveOutbound records the duration of an outbound call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOutbound(call string, start time.Time) {
	if m == nil {
		return
	}
	m.OutboundDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
