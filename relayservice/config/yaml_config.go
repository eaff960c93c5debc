// --- File: relayservice/config/yaml_config.go ---
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type YamlPendingConfig struct {
	Backend   string `yaml:"backend"`
	Namespace string `yaml:"namespace"`
	TTL       string `yaml:"ttl"`
}

type YamlConnectivityConfig struct {
	ProbeAddr string `yaml:"probe_addr"`
	Interval  string `yaml:"interval"`
	Timeout   string `yaml:"timeout"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string                 `yaml:"project_id"`
	ListenAddr             string                 `yaml:"listen_addr"`
	Platform               string                 `yaml:"platform"`
	TopicID                string                 `yaml:"topic_id"`
	SubscriptionID         string                 `yaml:"subscription_id"`
	SubscriptionDLQTopicID string                 `yaml:"subscription_dlq_topic_id"`
	CommandTopicID         string                 `yaml:"command_topic_id"`
	CommandReplyTimeout    string                 `yaml:"command_reply_timeout"`
	CorsConfig             YamlCorsConfig         `yaml:"cors"`
	RedisConfig            YamlRedisConfig        `yaml:"redis"`
	PendingConfig          YamlPendingConfig      `yaml:"pending"`
	ConnectivityConfig     YamlConnectivityConfig `yaml:"connectivity"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	replyTimeout, err := parseDuration("command_reply_timeout", baseCfg.CommandReplyTimeout)
	if err != nil {
		return nil, err
	}
	pendingTTL, err := parseDuration("pending.ttl", baseCfg.PendingConfig.TTL)
	if err != nil {
		return nil, err
	}
	probeInterval, err := parseDuration("connectivity.interval", baseCfg.ConnectivityConfig.Interval)
	if err != nil {
		return nil, err
	}
	probeTimeout, err := parseDuration("connectivity.timeout", baseCfg.ConnectivityConfig.Timeout)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:              baseCfg.ProjectID,
		ListenAddr:             baseCfg.ListenAddr,
		Platform:               relay.Platform(baseCfg.Platform),
		TopicID:                baseCfg.TopicID,
		SubscriptionID:         baseCfg.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		CommandTopicID:         baseCfg.CommandTopicID,
		CommandReplyTimeout:    replyTimeout,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
		},
		Pending: PendingConfig{
			Backend:   baseCfg.PendingConfig.Backend,
			Namespace: baseCfg.PendingConfig.Namespace,
			TTL:       pendingTTL,
		},
		Connectivity: ConnectivityConfig{
			ProbeAddr: baseCfg.ConnectivityConfig.ProbeAddr,
			Interval:  probeInterval,
			Timeout:   probeTimeout,
		},
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"platform", string(cfg.Platform),
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}

// parseDuration treats an empty value as unset.
func parseDuration(key, val string) (time.Duration, error) {
	if val == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
