package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBSlowQuery       time.Duration

	SessionStore string
	BoltPath     string

	InvoiceNumberTemplate string

	Webhooks     WebhookConfig
	AccessToken  AccessTokenConfig
	Provisioning ProvisioningConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Tax          TaxConfig
}

// ObservabilityConfig follows the OTEL_* conventions where one exists.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

// WebhookConfig carries per-provider shared secrets. An empty secret means the
// provider is rejected unless AllowUnsigned is set.
type WebhookConfig struct {
	CardSecret       string
	CardTolerance    time.Duration
	PayPalSecret     string
	PayPalWebhookID  string
	CoinbaseSecret   string
	HostedSecret     string
	ChainSecret      string
	ChainMinConfirms int
	AllowUnsigned    bool
}

type AccessTokenConfig struct {
	Secret string
	TTL    time.Duration
}

type ProvisioningConfig struct {
	Timeout      time.Duration
	PollInterval time.Duration
	MaxAttempts  int
	SweepWindow  time.Duration
	// KeySealSecret encrypts undelivered API keys held on provisioning jobs.
	KeySealSecret string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	StatusRate  float64
	StatusBurst int
	JobLockTTL  time.Duration
}

type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
	ClientID    string
}

type TaxConfig struct {
	DefaultSellerCountry string
	RegistryTimeout      time.Duration
}

const (
	SessionStoreSQL  = "sql"
	SessionStoreBolt = "bolt"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "mijn-api"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "mijn-api.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBSlowQuery:       getenvDuration("DATABASE_SLOW_QUERY", 250*time.Millisecond),

		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		SessionStore: normalizeSessionStore(getenv("SESSION_STORE", SessionStoreSQL)),
		BoltPath:     getenv("BOLT_PATH", "sessions.bolt"),

		InvoiceNumberTemplate: getenv("INVOICE_NUMBER_TEMPLATE", "INV-{YYYY}-{B36}"),

		Webhooks: WebhookConfig{
			CardSecret:       strings.TrimSpace(getenv("CARD_WEBHOOK_SECRET", "")),
			CardTolerance:    getenvDuration("CARD_SIGNATURE_TOLERANCE", 5*time.Minute),
			PayPalSecret:     strings.TrimSpace(getenv("PAYPAL_WEBHOOK_SECRET", "")),
			PayPalWebhookID:  strings.TrimSpace(getenv("PAYPAL_WEBHOOK_ID", "")),
			CoinbaseSecret:   strings.TrimSpace(getenv("COINBASE_WEBHOOK_SECRET", "")),
			HostedSecret:     strings.TrimSpace(getenv("HOSTED_WEBHOOK_SECRET", "")),
			ChainSecret:      strings.TrimSpace(getenv("CHAIN_WEBHOOK_SECRET", "")),
			ChainMinConfirms: getenvInt("CHAIN_MIN_CONFIRMATIONS", 1),
			AllowUnsigned:    getenvBool("WEBHOOKS_ALLOW_UNSIGNED", false),
		},
		AccessToken: AccessTokenConfig{
			Secret: strings.TrimSpace(getenv("ACCESS_TOKEN_SECRET", "")),
			TTL:    getenvDuration("ACCESS_TOKEN_TTL", 7*24*time.Hour),
		},
		Provisioning: ProvisioningConfig{
			Timeout:      getenvDuration("PROVISIONING_TIMEOUT", 5*time.Second),
			PollInterval: getenvDuration("PROVISIONING_POLL_INTERVAL", 5*time.Second),
			MaxAttempts:  getenvInt("PROVISIONING_MAX_ATTEMPTS", 10),
			SweepWindow:  getenvDuration("PROVISIONING_SWEEP_WINDOW", 24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:        strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:    strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:          getenvInt("REDIS_DB", 0),
			StatusRate:  getenvFloat("STATUS_RATE_LIMIT_RATE", 5),
			StatusBurst: getenvInt("STATUS_RATE_LIMIT_BURST", 20),
			JobLockTTL:  getenvDuration("PROVISIONING_LOCK_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     parseList(getenv("KAFKA_BROKERS", "")),
			TopicPrefix: strings.TrimSpace(getenv("KAFKA_TOPIC_PREFIX", "")),
			ClientID:    getenv("KAFKA_CLIENT_ID", "mijn-api"),
		},
		Tax: TaxConfig{
			DefaultSellerCountry: strings.ToUpper(strings.TrimSpace(getenv("DEFAULT_SELLER_COUNTRY", "NL"))),
			RegistryTimeout:      getenvDuration("TAX_REGISTRY_TIMEOUT", 2*time.Second),
		},
	}

	cfg.Provisioning.KeySealSecret = strings.TrimSpace(getenv("API_KEY_SEAL_SECRET", cfg.AccessToken.Secret))

	// tracing and metric export default to on only in production
	cfg.Observability.OtelEnabled = getenvBool("OTEL_ENABLED", cfg.IsProduction())

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// WebhookSecret returns the shared secret configured for provider.
func (c Config) WebhookSecret(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "card":
		return c.Webhooks.CardSecret
	case "paypal":
		return c.Webhooks.PayPalSecret
	case "coinbase":
		return c.Webhooks.CoinbaseSecret
	case "hosted":
		return c.Webhooks.HostedSecret
	case "chain":
		return c.Webhooks.ChainSecret
	default:
		return ""
	}
}

func normalizeSessionStore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case SessionStoreBolt:
		return SessionStoreBolt
	default:
		return SessionStoreSQL
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go duration strings ("90s") or plain seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return def
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
