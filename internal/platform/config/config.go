package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type HTTPConfig struct {
	Addr string
	// CORSOrigins is the raw comma separated CORS_ALLOWED_ORIGINS value.
	CORSOrigins string
}

type SubmitLimitConfig struct {
	RatePerSec float64
	Burst      int
	// TrustProxyHeaders keys the limiter on X-Forwarded-For and friends.
	// Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	Env         string
	HTTP        HTTPConfig
	GRPCAddr    string

	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	// BlogConfigFile points at the hot-reloadable blog settings file.
	BlogConfigFile string
	SubmitLimit    SubmitLimitConfig
}

// IsProduction reports whether APP_ENV=production.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: env("SERVICE_NAME"),
		LogLevel:    env("LOG_LEVEL"),
		Env:         env("APP_ENV"),
		HTTP: HTTPConfig{
			Addr:        env("HTTP_ADDR"),
			CORSOrigins: env("CORS_ALLOWED_ORIGINS"),
		},
		GRPCAddr:       env("GRPC_ADDR"),
		DatabaseURL:    env("DATABASE_URL"),
		RedisURL:       env("REDIS_URL"),
		NATSURL:        env("NATS_URL"),
		JWTSecret:      env("JWT_SECRET"),
		BlogConfigFile: env("BLOG_CONFIG_FILE"),
		SubmitLimit: SubmitLimitConfig{
			RatePerSec:        envFloat("SUBMIT_RATE_PER_SEC", 1),
			Burst:             envInt("SUBMIT_BURST", 5),
			TrustProxyHeaders: envBool("TRUST_PROXY_HEADERS"),
		},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = ":9090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.IsProduction() && cfg.DatabaseURL == "" {
		return AppConfig{}, errors.New("DATABASE_URL is required in production")
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, fallback int) int {
	v := env(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := env(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envBool(key string) bool {
	b, err := strconv.ParseBool(env(key))
	return err == nil && b
}
