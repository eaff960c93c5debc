// --- File: internal/pipeline/transformer.go ---
// Package pipeline turns the inbound Pub/Sub event stream into relay
// dispatches.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// InboundEventTransformer is a dataflow Transformer that unmarshals a raw
// message payload into a relay.InboundEvent envelope.
//
// Only the envelope is checked here. The event name is validated by the
// relay itself so that unknown names are acked and logged by the processor.
func InboundEventTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*relay.InboundEvent, bool, error) {
	var ev relay.InboundEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		// skip=true lets the StreamingService nack the message towards the DLQ.
		return nil, true, fmt.Errorf("failed to unmarshal inbound event from message %s: %w", msg.ID, err)
	}
	if ev.Name == "" {
		return nil, true, fmt.Errorf("inbound event in message %s has no event name", msg.ID)
	}
	if ev.Name == relay.CommandReplyEvent && ev.ReplyTo == "" {
		return nil, true, fmt.Errorf("command reply in message %s has no reply_to", msg.ID)
	}
	return &ev, false, nil
}
