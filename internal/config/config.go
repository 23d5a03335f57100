package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Redis       RedisConfig      `mapstructure:"redis"`
	MarketData  MarketDataConfig `mapstructure:"market_data"`
	CCXT        CCXTConfig       `mapstructure:"ccxt"`
	Analysis    AnalysisConfig   `mapstructure:"analysis"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
	Admin       AdminConfig      `mapstructure:"admin"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RequestTimeout string   `mapstructure:"request_timeout"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MarketDataConfig configures the upstream bar provider.
type MarketDataConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	Timeout           string  `mapstructure:"timeout"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxRetries        int     `mapstructure:"max_retries"`
	RetryBackoff      string  `mapstructure:"retry_backoff"`
	BreakerFailures   uint32  `mapstructure:"breaker_failures"`
	BreakerTimeout    string  `mapstructure:"breaker_timeout"`
	CacheTTL          string  `mapstructure:"cache_ttl"`
	IntradayCacheTTL  string  `mapstructure:"intraday_cache_ttl"`
}

// CCXTConfig points crypto requests at a CCXT bridge service. Leaving
// ServiceURL empty routes crypto through the default provider.
type CCXTConfig struct {
	ServiceURL string `mapstructure:"service_url"`
	Exchange   string `mapstructure:"exchange"`
	Timeout    int    `mapstructure:"timeout"`
}

// GetServiceURL returns the CCXT bridge base URL.
func (c CCXTConfig) GetServiceURL() string {
	return c.ServiceURL
}

// GetTimeout returns the CCXT request timeout in seconds.
func (c CCXTConfig) GetTimeout() int {
	return c.Timeout
}

type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Exporter       string  `mapstructure:"exporter"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	SampleRate     float64 `mapstructure:"sample_rate"`
	ExportLogs     bool    `mapstructure:"export_logs"`
}

// AdminConfig protects maintenance endpoints. APIKeyHash is a bcrypt hash.
type AdminConfig struct {
	APIKeyHash string `mapstructure:"api_key_hash"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("admin.api_key_hash", "ADMIN_API_KEY_HASH"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY_HASH environment variable: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := defaults.Set(&config.Analysis); err != nil {
		return nil, fmt.Errorf("failed to apply analysis defaults: %w", err)
	}
	config.Analysis.Signal.Weights = config.Analysis.Signal.Weights.OrDefault()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"server.request_timeout":         c.Server.RequestTimeout,
		"market_data.timeout":            c.MarketData.Timeout,
		"market_data.retry_backoff":      c.MarketData.RetryBackoff,
		"market_data.breaker_timeout":    c.MarketData.BreakerTimeout,
		"market_data.cache_ttl":          c.MarketData.CacheTTL,
		"market_data.intraday_cache_ttl": c.MarketData.IntradayCacheTTL,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s duration: %w", name, err)
		}
	}

	if c.Admin.APIKeyHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Admin.APIKeyHash)); err != nil {
			return fmt.Errorf("admin api key hash is not a bcrypt hash: %w", err)
		}
	}

	if err := c.Analysis.Signal.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid analysis.signal.weights: %w", err)
	}

	return nil
}

// DurationOr parses value and falls back when it is empty or malformed.
func DurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.request_timeout", "30s")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("market_data.base_url", "https://query1.finance.yahoo.com")
	viper.SetDefault("market_data.timeout", "15s")
	viper.SetDefault("market_data.requests_per_second", 2.0)
	viper.SetDefault("market_data.burst", 4)
	viper.SetDefault("market_data.max_retries", 3)
	viper.SetDefault("market_data.retry_backoff", "500ms")
	viper.SetDefault("market_data.breaker_failures", 5)
	viper.SetDefault("market_data.breaker_timeout", "30s")
	viper.SetDefault("market_data.cache_ttl", "15m")
	viper.SetDefault("market_data.intraday_cache_ttl", "1m")

	viper.SetDefault("ccxt.service_url", "")
	viper.SetDefault("ccxt.exchange", "binance")
	viper.SetDefault("ccxt.timeout", 30)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.exporter", "stdout")
	viper.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	viper.SetDefault("telemetry.service_name", "signalforge")
	viper.SetDefault("telemetry.service_version", "1.0.0")
	viper.SetDefault("telemetry.sample_rate", 1.0)
	viper.SetDefault("telemetry.export_logs", false)

	viper.SetDefault("admin.api_key_hash", "")
}
