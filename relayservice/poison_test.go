// --- File: relayservice/poison_test.go ---
//go:build integration

package relayservice_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/tinywideclouds/go-notification-relay/internal/bridge"
	"github.com/tinywideclouds/go-notification-relay/internal/connectivity"
	"github.com/tinywideclouds/go-notification-relay/notificationrelay"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
	"github.com/tinywideclouds/go-notification-relay/relayservice"
	"github.com/tinywideclouds/go-notification-relay/relayservice/config"
)

func TestRelayService_PoisonPill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	projectID := "test-project-dlq"

	// 1. Setup Pub/Sub Emulator
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = psClient.Close() })

	// 2. Arrange: main topic, DLQ topic, command topic
	runID := uuid.NewString()
	mainTopicID := "relay-main-" + runID
	dlqTopicID := "relay-dlq-" + runID
	commandTopicID := "relay-cmd-" + runID
	mainSubID := mainTopicID + "-sub"
	dlqSubID := dlqTopicID + "-sub"

	createPubsubResources(t, ctx, psClient, projectID, dlqTopicID, dlqSubID)
	createPubsubResources(t, ctx, psClient, projectID, commandTopicID, commandTopicID+"-sub")
	dlqTopicName := fmt.Sprintf("projects/%s/topics/%s", projectID, dlqTopicID)

	mainTopicName := fmt.Sprintf("projects/%s/topics/%s", projectID, mainTopicID)
	_, err = psClient.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: mainTopicName})
	require.NoError(t, err)

	mainSub := &pubsubpb.Subscription{
		Name:  fmt.Sprintf("projects/%s/subscriptions/%s", projectID, mainSubID),
		Topic: mainTopicName,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlqTopicName,
			MaxDeliveryAttempts: 5, // Use a low number for fast test execution
		},
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	}
	_, err = psClient.SubscriptionAdminClient.CreateSubscription(ctx, mainSub)
	require.NoError(t, err)

	// 3. Arrange: relay and service
	commander := bridge.NewCommander(bridge.NewTopicPublisher(psClient, commandTopicID), time.Minute, logger)
	t.Cleanup(commander.Stop)
	prober, err := connectivity.NewProber(connectivity.Config{Addr: reachableAddr(t)}, logger)
	require.NoError(t, err)
	r, err := notificationrelay.New(relay.PlatformIOS, commander, prober, nil, logger)
	require.NoError(t, err)

	var delivered sync.WaitGroup
	calls := 0
	var mu sync.Mutex
	callbacks := notificationrelay.Callbacks{
		OnNotificationReceived: func(relay.Notification) {
			mu.Lock()
			calls++
			mu.Unlock()
		},
	}

	consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(mainSubID)
	consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
	require.NoError(t, err)

	cfg := &config.Config{
		ProjectID:           projectID,
		ListenAddr:          ":0",
		Platform:            relay.PlatformIOS,
		SubscriptionID:      mainSubID,
		CommandTopicID:      commandTopicID,
		CommandReplyTimeout: time.Second,
	}
	noopAuth := func(h http.Handler) http.Handler { return h }
	svc, err := relayservice.New(cfg, consumer, r, commander, callbacks, noopAuth, logger)
	require.NoError(t, err)

	serviceCtx, serviceCancel := context.WithCancel(ctx)
	defer serviceCancel()
	go func() {
		if err := svc.Start(serviceCtx); err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("service.Start() returned an error: %v", err)
		}
	}()
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	// 4. Act: publish an envelope that cannot be decoded.
	poisonPayload := []byte(`{"this is not valid json"`)
	_, err = psClient.Publisher(mainTopicID).Publish(ctx, &pubsub.Message{Data: poisonPayload}).Get(ctx)
	require.NoError(t, err)

	// 5. Assert: the message arrives on the DLQ subscription
	var receivedMsg *pubsub.Message
	delivered.Add(1)
	go func() {
		defer delivered.Done()
		cctx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
		err := psClient.Subscriber(dlqSubID).Receive(cctx, func(ctx context.Context, msg *pubsub.Message) {
			msg.Ack()
			receivedMsg = msg
			cancel()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("DLQ Receive returned an unexpected error: %v", err)
		}
	}()

	delivered.Wait()
	require.NotNil(t, receivedMsg, "Did not receive message on the DLQ subscription")
	assert.Equal(t, poisonPayload, receivedMsg.Data)

	// 6. The relay never saw it.
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}
