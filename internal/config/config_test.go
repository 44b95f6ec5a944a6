package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 2, cfg.PaymentMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, time.Second, cfg.PaymentRetryBackoff)
	assert.Equal(t, "0.01", cfg.MinOrderTotal.String())
	require.Len(t, cfg.DiscountTiers, 3)
	assert.Equal(t, "50", cfg.DiscountTiers[0].Threshold.String())
	assert.Equal(t, "0.15", cfg.DiscountTiers[2].Rate.String())
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 12*time.Second, cfg.IdempotencyWait)
}

func TestLoadIdempotencyWait(t *testing.T) {
	t.Run("follows payment settings", func(t *testing.T) {
		t.Setenv("PAYMENT_TIMEOUT", "2s")
		t.Setenv("PAYMENT_MAX_ATTEMPTS", "3")
		t.Setenv("PAYMENT_RETRY_BACKOFF", "500ms")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8*time.Second, cfg.IdempotencyWait)
		assert.Greater(t, cfg.IdempotencyWait, cfg.worstCasePayment())
	})

	t.Run("explicit value wins", func(t *testing.T) {
		t.Setenv("IDEMPOTENCY_WAIT", "30s")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.IdempotencyWait)
	})
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAYMENT_TIMEOUT", "750ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DISCOUNT_TIERS", "100:0.10,50:0.05")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.PaymentTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Len(t, cfg.DiscountTiers, 2)
	assert.Equal(t, "50", cfg.DiscountTiers[0].Threshold.String(), "tiers sorted by threshold")
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"PAYMENT_TIMEOUT":      "soon",
		"PAYMENT_MAX_ATTEMPTS": "0",
		"STORE_BACKEND":        "sqlite",
		"IDEMPOTENCY_BACKEND":  "redis",
		"DISCOUNT_TIERS":       "50-0.05",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseTiersRange(t *testing.T) {
	_, err := ParseTiers("50:1.5")
	assert.Error(t, err)

	tiers, err := ParseTiers("")
	require.NoError(t, err)
	assert.Empty(t, tiers)
}
