package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServerConfig holds the relay server settings, sourced from environment
// variables.
type ServerConfig struct {
	Port     string
	LogLevel string
	// Webhook ingress
	WebhookSecret    string
	WebhookRateLimit float64 // requests per second; 0 disables the limiter
	WebhookBurst     int
	// Delivery pipeline
	BufferCapacity      int
	SSESendBuffer       int
	DesktopPingInterval time.Duration
}

// LoadServerConfig reads configuration from the environment, applying
// defaults and validating ranges.
func LoadServerConfig() (*ServerConfig, error) {
	pingIntervalStr := getEnvOrDefault("DESKTOP_PING_INTERVAL", "30s")
	pingInterval, err := time.ParseDuration(pingIntervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid DESKTOP_PING_INTERVAL %q: %w", pingIntervalStr, err)
	}

	bufferCapacity, err := getEnvInt("BUFFER_CAPACITY", 50)
	if err != nil {
		return nil, err
	}
	sseSendBuffer, err := getEnvInt("SSE_SEND_BUFFER", 32)
	if err != nil {
		return nil, err
	}
	webhookBurst, err := getEnvInt("WEBHOOK_BURST", 10)
	if err != nil {
		return nil, err
	}

	rateStr := getEnvOrDefault("WEBHOOK_RATE_LIMIT", "25")
	rateLimit, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_RATE_LIMIT %q: %w", rateStr, err)
	}

	cfg := &ServerConfig{
		Port:                getEnvOrDefault("PORT", "8080"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		WebhookRateLimit:    rateLimit,
		WebhookBurst:        webhookBurst,
		BufferCapacity:      bufferCapacity,
		SSESendBuffer:       sseSendBuffer,
		DesktopPingInterval: pingInterval,
	}

	if cfg.BufferCapacity < 1 {
		return nil, fmt.Errorf("BUFFER_CAPACITY must be >= 1, got %d", cfg.BufferCapacity)
	}
	if cfg.SSESendBuffer < 1 {
		return nil, fmt.Errorf("SSE_SEND_BUFFER must be >= 1, got %d", cfg.SSESendBuffer)
	}
	if cfg.DesktopPingInterval < time.Second {
		return nil, fmt.Errorf("DESKTOP_PING_INTERVAL must be >= 1s, got %s", cfg.DesktopPingInterval)
	}
	if cfg.WebhookRateLimit < 0 {
		return nil, fmt.Errorf("WEBHOOK_RATE_LIMIT must be >= 0, got %v", cfg.WebhookRateLimit)
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return n, nil
}
