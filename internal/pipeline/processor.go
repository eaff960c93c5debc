package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// Dispatcher is the relay's inbound entry point.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventName string, body json.RawMessage) error
}

// ReplyRouter correlates command replies with the commands that asked for them.
type ReplyRouter interface {
	HandleReply(id string, result json.RawMessage) (bool, error)
}

// NewProcessor routes each inbound event either to the reply router or to
// the relay. Events the relay rejects as unknown are acked and logged;
// other dispatch errors are returned so the message is redelivered.
func NewProcessor(
	dispatcher Dispatcher,
	replies ReplyRouter,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[relay.InboundEvent] {

	return func(ctx context.Context, original messagepipeline.Message, ev *relay.InboundEvent) error {
		procLogger := logger.With(
			"event", ev.Name,
			"pubsub_msg_id", original.ID,
		)

		if ev.Name == relay.CommandReplyEvent {
			handled, err := replies.HandleReply(ev.ReplyTo, ev.Body)
			if err != nil {
				// A reply that cannot be decoded will not decode on redelivery either.
				procLogger.Warn("Dropping undecodable command reply", "reply_to", ev.ReplyTo, "err", err)
				return nil
			}
			if !handled {
				procLogger.Info("No pending command for reply; dropping", "reply_to", ev.ReplyTo)
			}
			return nil
		}

		err := dispatcher.Dispatch(ctx, ev.Name, ev.Body)
		switch {
		case errors.Is(err, relay.ErrInvalidCategory):
			procLogger.Warn("Dropping event with unknown name", "err", err)
			return nil
		case err != nil:
			procLogger.Error("Relay dispatch failed", "err", err)
			return err
		}
		procLogger.Debug("Event dispatched")
		return nil
	}
}
