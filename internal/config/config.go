package config // package config loads application configuration from the environment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; optional values carry defaults registered in
// newViper.
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel string // zap level name (debug, info, warn, error)

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	// JWTSecret verifies the HS256 session tokens minted by the identity
	// provider.  JWTIssuer is checked against the "iss" claim when set.
	JWTSecret string
	JWTIssuer string

	AppBaseURL     string        // public URL used to build one-time access links
	TokenHashKey   string        // key for the access-token hash (max 64 bytes)
	AccessTokenTTL time.Duration // lifetime of an access link
	HoldTTL        time.Duration // reservation lease on pending purchases; 0 disables it
	DisputeWindow  time.Duration // resolution deadline offset for new disputes

	PaymentGatewayURL    string        // empty selects the sandbox processor
	PaymentGatewayKey    string        // bearer key for the gateway
	PaymentTimeout       time.Duration // per-charge timeout
	PaymentWebhookSecret string        // HMAC secret for X-Payment-Signature; empty disables the check

	RabbitMQURL       string // broker URL; empty writes notifications straight to the database
	NotificationQueue string // queue carrying notification events

	NotifyTimeout time.Duration // upper bound for a single best-effort notification

	RateLimit RateLimitConfig
	Cache     CacheConfig
	Redis     RedisConfig
}

// Load reads an optional .env file and then the process environment.
// Missing required variables are reported together in one error.
func Load() (Config, error) {
	_ = godotenv.Load() // a missing .env file is fine
	return FromViper(newViper())
}

// FromViper builds a Config from an already populated viper instance.  It is
// split from Load so tests can feed values without touching the environment.
func FromViper(v *viper.Viper) (Config, error) {
	var missing []string
	must := func(key string) string {
		s := strings.TrimSpace(v.GetString(key))
		if s == "" {
			missing = append(missing, key)
		}
		return s
	}

	cfg := Config{
		Env:      must("APP_ENV"),
		Port:     must("APP_PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),

		DBUser: must("DB_USER"),
		DBPass: v.GetString("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret: must("JWT_SECRET"),
		JWTIssuer: v.GetString("JWT_ISSUER"),

		AppBaseURL:     strings.TrimRight(must("APP_BASE_URL"), "/"),
		TokenHashKey:   v.GetString("TOKEN_HASH_KEY"),
		AccessTokenTTL: v.GetDuration("ACCESS_TOKEN_TTL"),
		HoldTTL:        v.GetDuration("PURCHASE_HOLD_TTL"),
		DisputeWindow:  v.GetDuration("DISPUTE_RESOLUTION_WINDOW"),

		PaymentGatewayURL:    strings.TrimRight(v.GetString("PAYMENT_GATEWAY_URL"), "/"),
		PaymentGatewayKey:    v.GetString("PAYMENT_GATEWAY_KEY"),
		PaymentTimeout:       v.GetDuration("PAYMENT_TIMEOUT"),
		PaymentWebhookSecret: v.GetString("PAYMENT_WEBHOOK_SECRET"),

		RabbitMQURL:       v.GetString("RABBITMQ_URL"),
		NotificationQueue: v.GetString("NOTIFICATION_QUEUE"),
		NotifyTimeout:     v.GetDuration("NOTIFY_TIMEOUT"),

		RateLimit: loadRateLimitConfig(v),
		Cache:     loadCacheConfig(v),
		Redis:     loadRedisConfig(v),
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if len(cfg.TokenHashKey) > 64 {
		return Config{}, errors.New("TOKEN_HASH_KEY must be at most 64 bytes")
	}
	if cfg.AccessTokenTTL <= 0 {
		return Config{}, errors.New("ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.HoldTTL < 0 {
		cfg.HoldTTL = 0
	}
	return cfg, nil
}

// DSN returns the MySQL data source name.  parseTime=true maps DATETIME to
// time.Time and loc=UTC keeps times consistent.
func (c Config) DSN() string {
	auth := c.DBUser
	if c.DBPass != "" {
		auth = fmt.Sprintf("%s:%s", c.DBUser, c.DBPass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, c.DBHost, c.DBPort, c.DBName)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ACCESS_TOKEN_TTL", 30*time.Minute)
	v.SetDefault("PURCHASE_HOLD_TTL", 15*time.Minute)
	v.SetDefault("DISPUTE_RESOLUTION_WINDOW", 72*time.Hour)
	v.SetDefault("PAYMENT_TIMEOUT", 10*time.Second)
	v.SetDefault("NOTIFICATION_QUEUE", "notifications.created")
	v.SetDefault("NOTIFY_TIMEOUT", 3*time.Second)

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_CAPACITY", 60)
	v.SetDefault("RATE_LIMIT_REFILL_TOKENS", 1)
	v.SetDefault("RATE_LIMIT_REFILL_INTERVAL", time.Second)
	v.SetDefault("RATE_LIMIT_TTL", 10*time.Minute)
	v.SetDefault("RATE_LIMIT_KEY_STRATEGY", "ip_user_route")
	v.SetDefault("RATE_LIMIT_PREFIX", "rl")
	v.SetDefault("RATE_LIMIT_DEBUG", false)

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_METHODS", "GET")
	v.SetDefault("CACHE_TTL", 30*time.Second)
	v.SetDefault("CACHE_KEY_STRATEGY", "path_query")
	v.SetDefault("CACHE_PREFIX", "cache")
	v.SetDefault("CACHE_MAX_BODY_BYTES", 1<<20)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
}
