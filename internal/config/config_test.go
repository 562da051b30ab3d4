package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("ACCESS_TOKEN_TTL", "")
	t.Setenv("WEBHOOKS_ALLOW_UNSIGNED", "")

	cfg := Load()

	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, SessionStoreSQL, cfg.SessionStore)
	assert.Equal(t, 7*24*time.Hour, cfg.AccessToken.TTL)
	assert.False(t, cfg.Webhooks.AllowUnsigned)
	assert.Equal(t, 10, cfg.Provisioning.MaxAttempts)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SESSION_STORE", "BOLT")
	t.Setenv("CARD_WEBHOOK_SECRET", " whsec_card ")
	t.Setenv("PROVISIONING_TIMEOUT", "12")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("WEBHOOKS_ALLOW_UNSIGNED", "yes")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, SessionStoreBolt, cfg.SessionStore)
	assert.Equal(t, "whsec_card", cfg.WebhookSecret("CARD"))
	assert.Equal(t, "", cfg.WebhookSecret("unknown"))
	assert.Equal(t, 12*time.Second, cfg.Provisioning.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Webhooks.AllowUnsigned)
}

func TestKeySealSecretFallsBackToAccessTokenSecret(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "tok-secret")
	t.Setenv("API_KEY_SEAL_SECRET", "")
	assert.Equal(t, "tok-secret", Load().Provisioning.KeySealSecret)

	t.Setenv("API_KEY_SEAL_SECRET", "seal-secret")
	assert.Equal(t, "seal-secret", Load().Provisioning.KeySealSecret)
}

func TestStaticTaxRatesHolderNormalizesCodes(t *testing.T) {
	holder, err := NewStaticTaxRatesHolder(TaxRatesConfig{
		Bloc:    "eu",
		Members: map[string]string{"nl": "21", "de": " 19 "},
		SpecialPairs: []SpecialPair{
			{Seller: "us", Buyer: "ca", Rate: "5"},
		},
	})
	require.NoError(t, err)

	got := holder.Get()
	assert.Equal(t, "EU", got.Bloc)
	assert.Equal(t, "19", got.Members["DE"])
	assert.Equal(t, "US", got.SpecialPairs[0].Seller)
}

func TestStaticTaxRatesHolderRejectsInvalidTable(t *testing.T) {
	cases := map[string]TaxRatesConfig{
		"empty members": {},
		"bad rate":      {Members: map[string]string{"NL": "abc"}},
		"negative":      {Members: map[string]string{"NL": "-1"}},
		"pair missing":  {Members: map[string]string{"NL": "21"}, SpecialPairs: []SpecialPair{{Seller: "US", Rate: "1"}}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewStaticTaxRatesHolder(cfg)
			assert.Error(t, err)
		})
	}
}

func TestDefaultTaxRatesConfigIsValid(t *testing.T) {
	_, err := NewStaticTaxRatesHolder(DefaultTaxRatesConfig())
	require.NoError(t, err)
}
