package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, NotifierLog, cfg.Notifier)
	assert.Equal(t, "checkout.events", cfg.KafkaTopic)
	assert.Equal(t, "checkout", cfg.AMQPExchange)
	assert.Equal(t, 3*time.Second, cfg.NotifyTimeout)
	assert.True(t, cfg.SeedCatalog)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TTL", "5m")
	t.Setenv("NOTIFIER", "Kafka")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("SEED_CATALOG", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, NotifierKafka, cfg.Notifier)
	assert.False(t, cfg.SeedCatalog)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("NOTIFY_TIMEOUT", "-1s")
	t.Setenv("SEED_CATALOG", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 3*time.Second, cfg.NotifyTimeout)
	assert.True(t, cfg.SeedCatalog)
}

func TestLoad_NotifierValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown notifier", env: map[string]string{"NOTIFIER": "pigeon"}},
		{name: "kafka without brokers", env: map[string]string{"NOTIFIER": "kafka"}},
		{name: "amqp without url", env: map[string]string{"NOTIFIER": "amqp"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
