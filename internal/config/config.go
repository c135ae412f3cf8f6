// Package config assembles runtime configuration: defaults, then an
// optional YAML file, then environment variables. A .env file in the
// working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the composition root's view of the deployment.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`

	RedisAddr     string `yaml:"redis_addr"`
	FanoutChannel string `yaml:"fanout_channel"`

	BrokerURL         string        `yaml:"broker_url"`
	BrokerClientID    string        `yaml:"broker_client_id"`
	BrokerUsername    string        `yaml:"broker_username"`
	BrokerPassword    string        `yaml:"broker_password"`
	TopicTemplate     string        `yaml:"topic_template"`
	SubscribeInterval time.Duration `yaml:"subscribe_interval"`
	BrokerQoS         int           `yaml:"broker_qos"`

	AnomalyCeiling  float64            `yaml:"anomaly_ceiling"`
	ExemptVariables []string           `yaml:"exempt_variables"`
	Calibrations    map[string]float64 `yaml:"calibrations"`

	RetentionDays    int `yaml:"retention_days"`
	UTCOffsetMinutes int `yaml:"utc_offset_minutes"`
}

// Load builds the configuration. The YAML file path comes from CONFIG_FILE;
// when unset, config.yaml is read if it exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:          ":8080",
		FanoutChannel:     "new-measurements",
		BrokerClientID:    "hydromet-core",
		TopicTemplate:     "v3/hydromet/devices/{deviceId}/up",
		SubscribeInterval: 12 * time.Minute,
		BrokerQoS:         1,
		AnomalyCeiling:    1000,
		RetentionDays:     7,
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if os.Getenv("CONFIG_FILE") != "" {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.RedisAddr = getenvDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.FanoutChannel = getenvDefault("FANOUT_CHANNEL", cfg.FanoutChannel)
	cfg.BrokerURL = getenvDefault("MQTT_BROKER_URL", cfg.BrokerURL)
	cfg.BrokerClientID = getenvDefault("MQTT_CLIENT_ID", cfg.BrokerClientID)
	cfg.BrokerUsername = getenvDefault("MQTT_USERNAME", cfg.BrokerUsername)
	cfg.BrokerPassword = getenvDefault("MQTT_PASSWORD", cfg.BrokerPassword)
	cfg.TopicTemplate = getenvDefault("MQTT_TOPIC_TEMPLATE", cfg.TopicTemplate)
	cfg.SubscribeInterval = getenvDuration("SUBSCRIBE_INTERVAL", cfg.SubscribeInterval)
	cfg.BrokerQoS = getenvIntDefault("MQTT_QOS", cfg.BrokerQoS)
	cfg.AnomalyCeiling = getenvFloatDefault("ANOMALY_CEILING", cfg.AnomalyCeiling)
	cfg.RetentionDays = getenvIntDefault("RETENTION_DAYS", cfg.RetentionDays)
	cfg.UTCOffsetMinutes = getenvIntDefault("UTC_OFFSET_MINUTES", cfg.UTCOffsetMinutes)

	if exempt := os.Getenv("EXEMPT_VARIABLES"); exempt != "" {
		cfg.ExemptVariables = splitList(exempt)
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	return cfg, nil
}

// Retention returns the raw-data retention window.
func (c Config) Retention() time.Duration {
	days := c.RetentionDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
