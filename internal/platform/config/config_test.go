package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("LEDGER_CLIENT_ID", "acct_123")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "localhost:3000", cfg.Engine.Addr())
	assert.Equal(t, "https://localhost:3000", cfg.Engine.URL)
	assert.Equal(t, ModeTest, cfg.Engine.Mode)
	assert.Equal(t, "http://localhost:7771", cfg.Engine.ConnectorURL)
	assert.Equal(t, 10*time.Second, cfg.Engine.OutboundTimeout)
	assert.Equal(t, 2, cfg.Engine.AssetScale)
	assert.Equal(t, "acct_123", cfg.Engine.Address, "address defaults to client id")
	assert.Equal(t, CorrelationDirect, cfg.Engine.Correlation)
	assert.False(t, cfg.Engine.TracksTags())
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, HTTPTimeouts{
		ReadHeader: 5 * time.Second,
		Read:       15 * time.Second,
		Write:      30 * time.Second,
		Idle:       60 * time.Second,
	}, cfg.Engine.HTTP)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_PORT", "4000")
	t.Setenv("ENGINE_MODE", "live")
	t.Setenv("CONNECTOR_URL", "http://connector:7771/")
	t.Setenv("LEDGER_ADDRESS", "settle-here")
	t.Setenv("LEDGER_ASSET_SCALE", "6")
	t.Setenv("LEDGER_CORRELATION", "tag")
	t.Setenv("ENGINE_OUTBOUND_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("ENGINE_WRITE_TIMEOUT", "45s")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Engine.Port)
	assert.True(t, cfg.Engine.Mode.Live())
	assert.Equal(t, "http://connector:7771", cfg.Engine.ConnectorURL)
	assert.Equal(t, "settle-here", cfg.Engine.Address)
	assert.Equal(t, 6, cfg.Engine.AssetScale)
	assert.True(t, cfg.Engine.TracksTags())
	assert.Equal(t, 3*time.Second, cfg.Engine.OutboundTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "settlement-events", cfg.Kafka.Topic)
	assert.Equal(t, 45*time.Second, cfg.Engine.HTTP.Write)
	assert.Equal(t, 15*time.Second, cfg.Engine.HTTP.Read)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"non numeric port":     {"ENGINE_PORT", "abc"},
		"negative scale":       {"LEDGER_ASSET_SCALE", "-1"},
		"unknown correlation":  {"LEDGER_CORRELATION", "fuzzy"},
		"unknown backend":      {"STORE_BACKEND", "etcd"},
		"postgres without dsn": {"STORE_BACKEND", "postgres"},
		"bad timeout":          {"ENGINE_OUTBOUND_TIMEOUT", "soon"},
		"bad read timeout":     {"ENGINE_READ_TIMEOUT", "later"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
