package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Security  SecuritySettings  `mapstructure:"security"`
	Gateways  GatewaySettings   `mapstructure:"gateways"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	DB                 int           `mapstructure:"db"`
	Password           string        `mapstructure:"password"`
	TLSEnabled         bool          `mapstructure:"tls_enabled"`
	AccountCachePrefix string        `mapstructure:"account_cache_prefix"`
	AccountCacheTTL    time.Duration `mapstructure:"account_cache_ttl"`
	AlertSuppressPrefix string       `mapstructure:"alert_suppress_prefix"`
	RateLimitPrefix    string        `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the Kafka alert producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// SecuritySettings configures the login attempt limiter
type SecuritySettings struct {
	LoginThreshold      int           `mapstructure:"login_threshold"`
	LoginWindow         time.Duration `mapstructure:"login_window"`
	BlockDuration       time.Duration `mapstructure:"block_duration"`
	AttemptRetention    time.Duration `mapstructure:"attempt_retention"`
	AlertSuppression    time.Duration `mapstructure:"alert_suppression"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	APIRateLimit        int           `mapstructure:"api_rate_limit"`
	APIRateWindow       time.Duration `mapstructure:"api_rate_window"`
}

// GatewaySettings configures the payment gateway verification clients
type GatewaySettings struct {
	VerifyTimeout time.Duration       `mapstructure:"verify_timeout"`
	Paystack      GatewayCredentials  `mapstructure:"paystack"`
	Flutterwave   GatewayCredentials  `mapstructure:"flutterwave"`
}

type GatewayCredentials struct {
	BaseURL   string `mapstructure:"base_url"`
	SecretKey string `mapstructure:"secret_key"`
}

type TelemetrySettings struct {
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ACCT")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.account_cache_prefix",
		"redis.account_cache_ttl",
		"redis.alert_suppress_prefix",
		"redis.rate_limit_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"security.login_threshold",
		"security.login_window",
		"security.block_duration",
		"security.attempt_retention",
		"security.alert_suppression",
		"security.sweep_interval",
		"security.api_rate_limit",
		"security.api_rate_window",
		"gateways.verify_timeout",
		"gateways.paystack.base_url",
		"gateways.paystack.secret_key",
		"gateways.flutterwave.base_url",
		"gateways.flutterwave.secret_key",
		"telemetry.metrics_namespace",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "account-integrity")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "acct")
	v.SetDefault("postgres.password", "acct_password")
	v.SetDefault("postgres.database", "acct")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.account_cache_prefix", "acct:account-email")
	v.SetDefault("redis.account_cache_ttl", "2m")
	v.SetDefault("redis.alert_suppress_prefix", "acct:alert-suppress")
	v.SetDefault("redis.rate_limit_prefix", "acct:http-rate")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "acct")
	v.SetDefault("kafka.async", true)

	v.SetDefault("security.login_threshold", 5)
	v.SetDefault("security.login_window", "15m")
	v.SetDefault("security.block_duration", "15m")
	v.SetDefault("security.attempt_retention", "720h")
	v.SetDefault("security.alert_suppression", "15m")
	v.SetDefault("security.sweep_interval", "1h")
	v.SetDefault("security.api_rate_limit", 120)
	v.SetDefault("security.api_rate_window", "1m")

	v.SetDefault("gateways.verify_timeout", "30s")
	v.SetDefault("gateways.paystack.base_url", "https://api.paystack.co")
	v.SetDefault("gateways.flutterwave.base_url", "https://api.flutterwave.com")

	v.SetDefault("telemetry.metrics_namespace", "acct")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "ACCT_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
