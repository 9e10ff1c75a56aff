package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "")
	t.Setenv("RAZORPAY_CURRENCY", "")
	t.Setenv("TRUSTED_PROXIES", "")

	cfg := Load()

	assert.Nil(t, cfg.Server.TrustedProxies)
	assert.Equal(t, "INR", cfg.Razorpay.Currency)
	assert.Empty(t, cfg.Razorpay.WebhookSecret)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 100, cfg.RateLimit.Limit)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test_abc")
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "whsec")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RAZORPAY_TIMEOUT_SECONDS", "5")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 172.16.0.0/12,")

	cfg := Load()

	assert.Equal(t, "rzp_test_abc", cfg.Razorpay.KeyID)
	assert.Equal(t, "whsec", cfg.Razorpay.WebhookSecret)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Razorpay.Timeout)
	assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.Server.TrustedProxies)
}
