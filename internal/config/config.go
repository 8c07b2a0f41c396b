// Package config loads the proxy's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Prefix is prepended to every environment variable name.
const Prefix = "PSP_"

// KafkaConfig configures the optional message bus integration.
type KafkaConfig struct {
	// Brokers is empty when Kafka is disabled.
	Brokers           []string `json:"brokers"`
	SnapshotTopic     string   `json:"snapshot_topic"`
	InvalidationTopic string   `json:"invalidation_topic"`
	GroupID           string   `json:"group_id"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Config holds all settings.
type Config struct {
	UpstreamBaseURL     string `json:"upstream_base_url"`
	UpstreamPlayersPath string `json:"upstream_players_path"`

	CacheTTLSeconds    int `json:"cache_ttl_seconds"`
	HTTPTimeoutSeconds int `json:"http_timeout_seconds"`

	// MaxLimit caps limit and limit_per_section query parameters.
	MaxLimit int `json:"max_limit"`
	// MaxBestResults caps max_results on the best-stats route.
	MaxBestResults int `json:"max_best_results"`

	Port        int      `json:"port"`
	LogLevel    string   `json:"log_level"`
	CORSOrigins []string `json:"cors_origins"`

	Kafka KafkaConfig `json:"kafka"`
}

// Defaults returns a Config with every default applied. UpstreamBaseURL has
// no default.
func Defaults() *Config {
	return &Config{
		UpstreamPlayersPath: "/moss/players",
		CacheTTLSeconds:     20,
		HTTPTimeoutSeconds:  10,
		MaxLimit:            200,
		MaxBestResults:      5000,
		Port:                8080,
		LogLevel:            "info",
		CORSOrigins:         []string{"*"},
		Kafka: KafkaConfig{
			SnapshotTopic:     "playerstats-snapshots",
			InvalidationTopic: "playerstats-invalidations",
			GroupID:           "playerstats-proxy",
		},
	}
}

// Load applies environment overrides to the defaults. Invalid numbers are
// logged and ignored. Call Validate on the result.
func Load() *Config {
	cfg := Defaults()

	overrideString(&cfg.UpstreamBaseURL, "UPSTREAM_BASE_URL")
	overrideString(&cfg.UpstreamPlayersPath, "UPSTREAM_PLAYERS_PATH")
	overrideInt(&cfg.CacheTTLSeconds, "CACHE_TTL_SECONDS")
	overrideInt(&cfg.HTTPTimeoutSeconds, "HTTP_TIMEOUT_SECONDS")
	overrideInt(&cfg.MaxLimit, "MAX_LIMIT")
	overrideInt(&cfg.MaxBestResults, "MAX_BEST_RESULTS")
	overrideInt(&cfg.Port, "PORT")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideList(&cfg.CORSOrigins, "CORS_ORIGINS")
	overrideList(&cfg.Kafka.Brokers, "KAFKA_BROKERS")
	overrideString(&cfg.Kafka.SnapshotTopic, "KAFKA_SNAPSHOT_TOPIC")
	overrideString(&cfg.Kafka.InvalidationTopic, "KAFKA_INVALIDATION_TOPIC")
	overrideString(&cfg.Kafka.GroupID, "KAFKA_GROUP_ID")

	if !strings.HasPrefix(cfg.UpstreamPlayersPath, "/") {
		cfg.UpstreamPlayersPath = "/" + cfg.UpstreamPlayersPath
	}
	return cfg
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.UpstreamBaseURL == "" {
		return errors.New(Prefix + "UPSTREAM_BASE_URL is required")
	}
	u, err := url.Parse(c.UpstreamBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%sUPSTREAM_BASE_URL %q is not an absolute URL", Prefix, c.UpstreamBaseURL)
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("%sCACHE_TTL_SECONDS must not be negative, got %d", Prefix, c.CacheTTLSeconds)
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("%sHTTP_TIMEOUT_SECONDS must be positive, got %d", Prefix, c.HTTPTimeoutSeconds)
	}
	if c.MaxLimit < 1 {
		return fmt.Errorf("%sMAX_LIMIT must be at least 1, got %d", Prefix, c.MaxLimit)
	}
	if c.MaxBestResults < 1 {
		return fmt.Errorf("%sMAX_BEST_RESULTS must be at least 1, got %d", Prefix, c.MaxBestResults)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%sPORT out of range: %d", Prefix, c.Port)
	}
	return nil
}

// CacheTTL is CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// HTTPTimeout is HTTPTimeoutSeconds as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func overrideInt(field *int, key string) {
	if val := os.Getenv(Prefix + key); val != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			*field = n
		} else {
			slog.Warn("invalid integer setting, keeping default", "tag", "config", "key", Prefix+key, "value", val)
		}
	}
}

func overrideString(field *string, key string) {
	if val := os.Getenv(Prefix + key); val != "" {
		*field = strings.TrimSpace(val)
	}
}

func overrideList(field *[]string, key string) {
	val := os.Getenv(Prefix + key)
	if val == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*field = out
}
