package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/leshachaplin/webtrack/internal/relay"
	appServer "github.com/leshachaplin/webtrack/internal/server/http"
	"github.com/leshachaplin/webtrack/tracker"
)

// Config is the main config for the application
type Config struct {
	LogLevel  string           `mapstructure:"log_level"`
	Addr      string           `mapstructure:"addr"`
	Tracking  appServer.Config `mapstructure:"tracking"`
	HitRelay  relay.Config     `mapstructure:"hit_relay"`
	Collector CollectorConfig  `mapstructure:"collector"`
}

// CollectorConfig points the relay at the upstream collector.
type CollectorConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RetryMax  int           `mapstructure:"retry_max"`
	TokenAuth string        `mapstructure:"token_auth"`
}

// Load reads configuration from the environment, layering an optional
// .env file underneath for local development.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		Addr:     getEnv("ADDR", ":8080"),
		Tracking: appServer.Config{
			SiteID:         getEnvAsInt("SITE_ID", 1),
			CookiesEnabled: getEnv("COOKIES_ENABLED", "0") == "1",
			Cookies: tracker.CookieConfig{
				Domain: getEnv("COOKIE_DOMAIN", ""),
				Path:   getEnv("COOKIE_PATH", "/"),
				Secure: getEnv("COOKIE_SECURE", "0") == "1",
			},
		},
		HitRelay: relay.Config{
			NumWorkers: getEnvAsInt("RELAY_WORKERS", 4),
			QueueSize:  getEnvAsInt("RELAY_QUEUE_SIZE", 1024),
		},
		Collector: CollectorConfig{
			Endpoint:  getEnv("COLLECTOR_ENDPOINT", ""),
			Timeout:   getEnvAsDuration("COLLECTOR_TIMEOUT", tracker.DefaultTimeout),
			RetryMax:  getEnvAsInt("COLLECTOR_RETRY_MAX", 0),
			TokenAuth: getEnv("COLLECTOR_TOKEN_AUTH", ""),
		},
	}

	if cfg.Collector.Endpoint == "" {
		return Config{}, tracker.ConfigError{Option: "endpoint", Reason: "COLLECTOR_ENDPOINT must be set"}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
