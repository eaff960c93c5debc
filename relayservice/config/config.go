// --- File: relayservice/config/config.go ---
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// Pending buffer backends.
const (
	PendingBackendMemory    = "memory"
	PendingBackendRedis     = "redis"
	PendingBackendFirestore = "firestore"
)

const (
	defaultListenAddr    = ":8080"
	defaultReplyTimeout  = 10 * time.Second
	defaultNamespace     = "default"
	defaultProbeAddr     = "8.8.8.8:53"
	defaultProbeInterval = 5 * time.Second
	defaultProbeTimeout  = 2 * time.Second
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PendingConfig struct {
	Backend   string
	Namespace string
	TTL       time.Duration
}

type ConnectivityConfig struct {
	ProbeAddr string
	Interval  time.Duration
	Timeout   time.Duration
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	Platform               relay.Platform
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	CommandTopicID         string
	CommandReplyTimeout    time.Duration

	CorsConfig   middleware.CorsConfig
	Redis        RedisConfig
	Pending      PendingConfig
	Connectivity ConnectivityConfig

	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("PLATFORM"); val != "" {
		logger.Debug("Overriding config value", "key", "PLATFORM", "source", "env")
		cfg.Platform = relay.Platform(strings.ToLower(val))
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("COMMAND_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "COMMAND_TOPIC_ID", "source", "env")
		cfg.CommandTopicID = val
	}
	if val := os.Getenv("COMMAND_REPLY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			logger.Debug("Overriding config value", "key", "COMMAND_REPLY_TIMEOUT", "source", "env")
			cfg.CommandReplyTimeout = d
		}
	}

	// Pending buffer Overrides
	if val := os.Getenv("PENDING_BACKEND"); val != "" {
		logger.Debug("Overriding config value", "key", "PENDING_BACKEND", "source", "env")
		cfg.Pending.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("PENDING_NAMESPACE"); val != "" {
		cfg.Pending.Namespace = val
	}
	if val := os.Getenv("PENDING_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Pending.TTL = d
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}

	if val := os.Getenv("CONNECTIVITY_PROBE_ADDR"); val != "" {
		logger.Debug("Overriding config value", "key", "CONNECTIVITY_PROBE_ADDR", "source", "env")
		cfg.Connectivity.ProbeAddr = val
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.CommandTopicID == "" {
		return nil, fmt.Errorf("command_topic_id is required (set via YAML or COMMAND_TOPIC_ID env var)")
	}
	if _, err := relay.ParsePlatform(string(cfg.Platform)); err != nil {
		return nil, fmt.Errorf("platform must be ios or android: %w", err)
	}

	switch cfg.Pending.Backend {
	case "":
		cfg.Pending.Backend = PendingBackendMemory
	case PendingBackendMemory, PendingBackendFirestore:
	case PendingBackendRedis:
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("redis addr is required for the redis pending backend (set via YAML or REDIS_ADDR env var)")
		}
	default:
		return nil, fmt.Errorf("unknown pending backend %q", cfg.Pending.Backend)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.CommandReplyTimeout <= 0 {
		cfg.CommandReplyTimeout = defaultReplyTimeout
	}
	if cfg.Pending.Namespace == "" {
		cfg.Pending.Namespace = defaultNamespace
	}
	if cfg.Connectivity.ProbeAddr == "" {
		cfg.Connectivity.ProbeAddr = defaultProbeAddr
	}
	if cfg.Connectivity.Interval <= 0 {
		cfg.Connectivity.Interval = defaultProbeInterval
	}
	if cfg.Connectivity.Timeout <= 0 {
		cfg.Connectivity.Timeout = defaultProbeTimeout
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
