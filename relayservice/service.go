// --- File: relayservice/service.go ---
package relayservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-notification-relay/internal/api"
	"github.com/tinywideclouds/go-notification-relay/internal/pipeline"
	"github.com/tinywideclouds/go-notification-relay/notificationrelay"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
	"github.com/tinywideclouds/go-notification-relay/relayservice/config"
)

// Wrapper hosts one relay: the event stream feeds it, the HTTP API drives
// its outbound commands.
type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[relay.InboundEvent]
	relay           *notificationrelay.Relay
	callbacks       notificationrelay.Callbacks
	logger          *slog.Logger
}

// New assembles the service.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	r *notificationrelay.Relay,
	replies pipeline.ReplyRouter,
	callbacks notificationrelay.Callbacks,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Processor
	processor := pipeline.NewProcessor(r, replies, logger)

	// 3. Pipeline. One worker: the relay relies on arrival order.
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: 1},
		consumer,
		pipeline.InboundEventTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API (Outbound commands)
	commandAPI := api.NewCommandAPI(r, cfg.CommandReplyTimeout, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/tags", commandAPI.SendTags)
	handle("GET /api/v1/tags", commandAPI.GetTags)
	handle("DELETE /api/v1/tags/{key}", commandAPI.DeleteTag)
	handle("PUT /api/v1/subscription", commandAPI.SetSubscription)
	handle("POST /api/v1/permissions", commandAPI.RequestPermissions)
	handle("POST /api/v1/notifications", commandAPI.PostNotification)
	handle("POST /api/v1/email", commandAPI.SyncHashedEmail)
	handle("PUT /api/v1/log-level", commandAPI.SetLogLevel)

	// Global OPTIONS for the API namespace (CORS preflight)
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		relay:           r,
		callbacks:       callbacks,
		logger:          logger,
	}, nil
}

// Start begins consuming, then configures the relay. Events that arrive in
// between are buffered and drained by Configure.
func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.relay.Configure(ctx, w.callbacks)
	w.logger.Info("Relay configured", "activation", w.relay.ActivationState().String())

	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	w.relay.Close()
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}

// LoggingCallbacks returns callbacks that record every relayed event.
func LoggingCallbacks(logger *slog.Logger) notificationrelay.Callbacks {
	logger = logger.With("component", "RelayCallbacks")
	return notificationrelay.Callbacks{
		OnNotificationReceived: func(n relay.Notification) {
			logger.Info("Notification received", "fields", len(n))
		},
		OnNotificationOpened: func(r relay.OpenResult) {
			logger.Info("Notification opened", "has_action", r.Action != nil)
		},
		OnNotificationsRegistered: func(p relay.Payload) {
			logger.Info("Registered for notifications", "fields", len(p))
		},
		OnIDsAvailable: func(p relay.Payload) {
			logger.Info("Identifiers available", "fields", len(p))
		},
		OnError: func(err error) {
			logger.Error("Relay reported an error", "err", err)
		},
	}
}
