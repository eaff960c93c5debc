// --- File: cmd/relayservice/runrelayservice.go ---
package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-notification-relay/internal/bridge"
	"github.com/tinywideclouds/go-notification-relay/internal/connectivity"
	"github.com/tinywideclouds/go-notification-relay/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-notification-relay/internal/storage/firestore"
	"github.com/tinywideclouds/go-notification-relay/notificationrelay"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"

	"github.com/tinywideclouds/go-notification-relay/relayservice"
	"github.com/tinywideclouds/go-notification-relay/relayservice/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-notification-relay")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Embedded yaml config is invalid", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	// --- Pending Store ---
	pendingStore, closeStore, err := newPendingStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Pending store failed", "backend", cfg.Pending.Backend, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// --- Auth ---
	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	if err != nil {
		logger.Error("JWT config discovery failed", "identity_url", identityURL, "err", err)
		os.Exit(1)
	}
	authMiddleware, err := middleware.NewJWKSAuthMiddleware(jwksURL, logger)
	if err != nil {
		logger.Error("Auth middleware failed", "err", err)
		os.Exit(1)
	}

	// --- Relay ---
	commander := bridge.NewCommander(
		bridge.NewTopicPublisher(psClient, cfg.CommandTopicID), cfg.CommandReplyTimeout, logger,
	)
	defer commander.Stop()

	prober, err := connectivity.NewProber(connectivity.Config{
		Addr:     cfg.Connectivity.ProbeAddr,
		Interval: cfg.Connectivity.Interval,
		Timeout:  cfg.Connectivity.Timeout,
	}, logger)
	if err != nil {
		logger.Error("Connectivity prober failed", "err", err)
		os.Exit(1)
	}

	r, err := notificationrelay.New(cfg.Platform, commander, prober, pendingStore, logger)
	if err != nil {
		logger.Error("Relay creation failed", "err", err)
		os.Exit(1)
	}

	// --- Consumer & Service ---
	consumer, err := newEventConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Event consumer failed", "err", err)
		os.Exit(1)
	}

	service, err := relayservice.New(
		cfg,
		consumer,
		r,
		commander,
		relayservice.LoggingCallbacks(logger),
		authMiddleware,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	logger.Info("Starting service...", "platform", cfg.Platform, "pending_backend", cfg.Pending.Backend)
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// newPendingStore selects the pending buffer backend. The memory backend
// returns a nil store, which makes the relay use its in-process buffer.
func newPendingStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (relay.PendingStore, func(), error) {
	noop := func() {}

	switch cfg.Pending.Backend {
	case config.PendingBackendRedis:
		logger.Info("Initializing Redis pending store...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store := cache.NewPendingStore(redisClient, cfg.Pending.Namespace, cfg.Pending.TTL)
		return store, func() { _ = redisClient.Close() }, nil

	case config.PendingBackendFirestore:
		logger.Info("Initializing Firestore pending store...", "namespace", cfg.Pending.Namespace)
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create firestore client: %w", err)
		}
		store := fsStore.NewPendingStore(fsClient, cfg.Pending.Namespace, cfg.Pending.TTL)
		if cfg.Pending.TTL > 0 {
			purged, err := store.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("Failed to purge expired pending payloads", "err", err)
			} else if purged > 0 {
				logger.Info("Purged expired pending payloads", "count", purged)
			}
		}
		return store, func() { _ = fsClient.Close() }, nil

	default:
		logger.Info("Using in-process pending buffer")
		return nil, noop, nil
	}
}

func newEventConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
