package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.OpsAddr)
		assert.Empty(t, cfg.Database.URL)
		assert.Empty(t, cfg.Kafka.Brokers)
		assert.Equal(t, 8, cfg.Scheduler.Concurrency)
		assert.Equal(t, 3, cfg.Vendors.IncodeMaxAttempts)
		assert.Len(t, cfg.SealKey, 32)
		assert.Equal(t, []string{"idology", "experian"}, cfg.Vendors.Identity)
		assert.Equal(t, []string{"middesk", "lexis"}, cfg.Vendors.Business)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,a:9092")
		t.Setenv("IDENTITY_VENDORS", " Experian ,experian")
		t.Setenv("SCHEDULER_INTERVAL", "250ms")
		t.Setenv("VENDOR_RATE_LIMIT", "2.5")
		t.Setenv("SEAL_KEY", strings.Repeat("ab", 32))

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, []string{"experian"}, cfg.Vendors.Identity)
		assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.Interval)
		assert.InDelta(t, 2.5, cfg.Vendors.RateLimit, 0.001)
		assert.Equal(t, byte(0xab), cfg.SealKey[0])
	})

	t.Run("malformed values fall back to defaults", func(t *testing.T) {
		t.Setenv("SCHEDULER_BATCH_SIZE", "many")
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Scheduler.BatchSize)
	})

	t.Run("rejects a short seal key", func(t *testing.T) {
		t.Setenv("SEAL_KEY", "abcd")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}
