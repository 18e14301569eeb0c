package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	strs "settlement-engine/pkg/platform/strings"
)

// Mode selects the rail environment forwarded to the Configure hook.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// Live reports whether the engine drives the rail's live environment.
func (m Mode) Live() bool { return m == ModeLive }

// Correlation selects how inbound rail references are matched to accounts.
type Correlation string

const (
	// CorrelationDirect means the rail reference is the account id itself.
	CorrelationDirect Correlation = "direct"
	// CorrelationTag means the rail reference is a correlation tag handed
	// out during the payment details handshake.
	CorrelationTag Correlation = "tag"
)

// Store backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const (
	defaultHost            = "localhost"
	defaultPort            = 3000
	defaultConnectorURL    = "http://localhost:7771"
	defaultOutboundTimeout = 10 * time.Second
	defaultAssetScale      = 2
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultRedisURL        = "redis://localhost:6379/0"
	defaultEventsTopic     = "settlement-events"
	maxAssetScale          = 255
)

// Config is everything the process needs. The engine only ever sees Engine.
type Config struct {
	Engine   Engine
	Store    Store
	Kafka    Kafka
	LogLevel string
}

// Engine is passed explicitly to the engine constructor.
type Engine struct {
	Host string
	Port int
	// URL is the public address handed to rail hooks.
	URL             string
	Mode            Mode
	ConnectorURL    string
	OutboundTimeout time.Duration

	ClientID string
	Secret   string
	// Address is returned to peers during the payment details handshake.
	Address string

	Prefix      string
	AssetScale  int
	UnitName    string
	Correlation Correlation

	HTTP HTTPTimeouts
}

// HTTPTimeouts bounds the engine's inbound HTTP connections. Zero fields take
// defaults in Validate.
type HTTPTimeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Idle       time.Duration
}

func (t *HTTPTimeouts) fillDefaults() {
	if t.ReadHeader <= 0 {
		t.ReadHeader = 5 * time.Second
	}
	if t.Read <= 0 {
		t.Read = defaultReadTimeout
	}
	if t.Write <= 0 {
		t.Write = defaultWriteTimeout
	}
	if t.Idle <= 0 {
		t.Idle = defaultIdleTimeout
	}
}

// Addr is the listen address.
func (e Engine) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// TracksTags reports whether handshake responses carry correlation tags.
func (e Engine) TracksTags() bool {
	return e.Correlation == CorrelationTag
}

// Validate checks invariants and fills derived defaults.
func (e *Engine) Validate() error {
	if e.AssetScale < 0 || e.AssetScale > maxAssetScale {
		return fmt.Errorf("asset scale must be between 0 and %d, got %d", maxAssetScale, e.AssetScale)
	}
	switch e.Correlation {
	case "":
		e.Correlation = CorrelationDirect
	case CorrelationDirect, CorrelationTag:
	default:
		return fmt.Errorf("unknown correlation mode %q", e.Correlation)
	}
	switch e.Mode {
	case "":
		e.Mode = ModeTest
	case ModeTest, ModeLive:
	default:
		return fmt.Errorf("unknown engine mode %q", e.Mode)
	}
	if e.ConnectorURL == "" {
		return errors.New("connector url is required")
	}
	e.ConnectorURL = strings.TrimRight(e.ConnectorURL, "/")
	if e.Address == "" {
		e.Address = e.ClientID
	}
	if e.OutboundTimeout <= 0 {
		e.OutboundTimeout = defaultOutboundTimeout
	}
	if e.URL == "" {
		e.URL = "https://" + e.Addr()
	}
	e.HTTP.fillDefaults()
	return nil
}

// Store selects and configures the key-value backend.
type Store struct {
	Backend  string
	Redis    RedisConfig
	Postgres PostgresConfig
}

// RedisConfig configures the go-redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the database/sql pool.
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Kafka enables publishing settlement events. Empty Brokers disables it.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether any broker is configured.
func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	port, err := intEnv("ENGINE_PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}
	scale, err := intEnv("LEDGER_ASSET_SCALE", defaultAssetScale)
	if err != nil {
		return Config{}, err
	}
	timeout, err := durationEnv("ENGINE_OUTBOUND_TIMEOUT", defaultOutboundTimeout)
	if err != nil {
		return Config{}, err
	}
	var httpTimeouts HTTPTimeouts
	for key, dst := range map[string]*time.Duration{
		"ENGINE_READ_TIMEOUT":  &httpTimeouts.Read,
		"ENGINE_WRITE_TIMEOUT": &httpTimeouts.Write,
		"ENGINE_IDLE_TIMEOUT":  &httpTimeouts.Idle,
	} {
		if *dst, err = durationEnv(key, 0); err != nil {
			return Config{}, err
		}
	}

	engine := Engine{
		Host:            stringEnv("ENGINE_HOST", defaultHost),
		Port:            port,
		URL:             os.Getenv("ENGINE_URL"),
		Mode:            Mode(stringEnv("ENGINE_MODE", string(ModeTest))),
		ConnectorURL:    stringEnv("CONNECTOR_URL", defaultConnectorURL),
		OutboundTimeout: timeout,
		ClientID:        os.Getenv("LEDGER_CLIENT_ID"),
		Secret:          os.Getenv("LEDGER_SECRET"),
		Address:         os.Getenv("LEDGER_ADDRESS"),
		Prefix:          os.Getenv("LEDGER_PREFIX"),
		AssetScale:      scale,
		UnitName:        os.Getenv("LEDGER_UNIT_NAME"),
		Correlation:     Correlation(stringEnv("LEDGER_CORRELATION", string(CorrelationDirect))),
		HTTP:            httpTimeouts,
	}
	if err := engine.Validate(); err != nil {
		return Config{}, fmt.Errorf("engine config: %w", err)
	}

	store := Store{
		Backend: stringEnv("STORE_BACKEND", BackendRedis),
		Redis: RedisConfig{
			URL:          stringEnv("REDIS_URL", defaultRedisURL),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{
			DSN:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
	}
	switch store.Backend {
	case BackendRedis, BackendMemory:
	case BackendPostgres:
		if store.Postgres.DSN == "" {
			return Config{}, errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown store backend %q", store.Backend)
	}

	kafka := Kafka{
		Brokers: strs.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
		Topic:   stringEnv("KAFKA_EVENTS_TOPIC", defaultEventsTopic),
	}

	return Config{
		Engine:   engine,
		Store:    store,
		Kafka:    kafka,
		LogLevel: stringEnv("LOG_LEVEL", "info"),
	}, nil
}

func stringEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
