package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Deployment modes. Anything other than "development" is treated as production.
const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Upper bound of any token this service issues or accepts. The replay TTL
// must cover it.
const MaxTokenLifetime = time.Hour

type Config struct {
	// Server configuration. The listen address is PocketBase's
	// `serve --http` flag.
	DeploymentMode string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubAlertChannel string

	// AMQP configuration
	AMQPURL        string
	AMQPAlertQueue string

	// Alerts: pubnub, amqp or log
	AlertTransport string

	// Secrets
	JWTSecretParam         string
	JWTDevSecret           string
	SecretEncryptionKey    string
	SecretCacheTTL         time.Duration
	SecretGraceWindow      time.Duration
	SecretRotationInterval time.Duration
	SecretMinRefreshAge    time.Duration

	// Storage: sql or redis
	LedgerBackend string
	ReplayTTL     time.Duration

	// Timeout configuration
	StoreTimeout      time.Duration
	SideEffectTimeout time.Duration

	// Rate limiting
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics bool
}

// LoadConfig reads the environment, optionally seeded from a .env file in the
// working directory.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		DeploymentMode: getEnv("DEPLOYMENT_MODE", ModeProduction),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubAlertChannel: getEnv("PUBNUB_ALERT_CHANNEL", "gate-security-alerts"),

		// AMQP
		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPAlertQueue: getEnv("AMQP_ALERT_QUEUE", "gate-security-alerts"),

		AlertTransport: getEnv("ALERT_TRANSPORT", "log"),

		// Secrets
		JWTSecretParam:         getEnv("JWT_SECRET_PARAM", "/gate/jwt-secret"),
		JWTDevSecret:           getEnv("JWT_DEV_SECRET", ""),
		SecretEncryptionKey:    getEnv("SECRET_ENCRYPTION_KEY", ""),
		SecretCacheTTL:         getEnvAsDuration("SECRET_CACHE_TTL", "1h"),
		SecretGraceWindow:      getEnvAsDuration("SECRET_GRACE_WINDOW", "24h"),
		SecretRotationInterval: getEnvAsDuration("SECRET_ROTATION_INTERVAL", "0s"),
		SecretMinRefreshAge:    getEnvAsDuration("SECRET_MIN_REFRESH_AGE", "30s"),

		// Storage
		LedgerBackend: getEnv("LEDGER_BACKEND", "sql"),
		ReplayTTL:     getEnvAsDuration("REPLAY_TTL", "24h"),

		// Timeouts
		StoreTimeout:      getEnvAsDuration("STORE_TIMEOUT", "2s"),
		SideEffectTimeout: getEnvAsDuration("SIDE_EFFECT_TIMEOUT", "3s"),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

// IsDevelopment reports whether development-only behaviour (fallback secret,
// unencrypted secret storage) was explicitly enabled.
func (c *Config) IsDevelopment() bool {
	return c.DeploymentMode == ModeDevelopment
}

// EncryptionKey decodes SecretEncryptionKey. It returns nil when unset.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.SecretEncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.SecretEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("config: SECRET_ENCRYPTION_KEY is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("config: SECRET_ENCRYPTION_KEY must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (c *Config) Validate() error {
	if c.ReplayTTL < MaxTokenLifetime {
		return fmt.Errorf("config: REPLAY_TTL %s is shorter than the token lifetime %s", c.ReplayTTL, MaxTokenLifetime)
	}
	if c.StoreTimeout <= 0 {
		return errors.New("config: STORE_TIMEOUT must be positive")
	}
	if c.SideEffectTimeout <= 0 {
		return errors.New("config: SIDE_EFFECT_TIMEOUT must be positive")
	}
	switch c.LedgerBackend {
	case "sql", "redis":
	default:
		return fmt.Errorf("config: unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	switch c.AlertTransport {
	case "pubnub", "amqp", "log":
	default:
		return fmt.Errorf("config: unknown ALERT_TRANSPORT %q", c.AlertTransport)
	}
	key, err := c.EncryptionKey()
	if err != nil {
		return err
	}
	if key == nil && !c.IsDevelopment() {
		return errors.New("config: SECRET_ENCRYPTION_KEY is required outside development")
	}
	if c.JWTDevSecret != "" && !c.IsDevelopment() {
		return errors.New("config: JWT_DEV_SECRET is only allowed in development")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
