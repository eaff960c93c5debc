// --- File: internal/bridge/commander.go ---
// Package bridge carries outbound relay commands to the delivery subsystem
// as JSON envelopes on a Pub/Sub topic, and correlates replies for the
// commands that expect one.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// Envelope is the wire format of one outbound command.
type Envelope struct {
	ID            string        `json:"id"`
	Command       relay.Command `json:"command"`
	Args          any           `json:"args,omitempty"`
	ReplyExpected bool          `json:"reply_expected,omitempty"`
}

type pendingReply struct {
	deliver func(json.RawMessage) error
	expires time.Time
}

// Commander implements relay.Commander over a Publisher.
type Commander struct {
	publisher Publisher
	replyTTL  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	replies map[string]pendingReply
}

// NewCommander creates a commander. Replies that have not arrived within
// replyTTL are forgotten.
func NewCommander(publisher Publisher, replyTTL time.Duration, logger *slog.Logger) *Commander {
	if replyTTL <= 0 {
		replyTTL = time.Minute
	}
	return &Commander{
		publisher: publisher,
		replyTTL:  replyTTL,
		logger:    logger.With("component", "CommandBridge"),
		now:       time.Now,
		replies:   make(map[string]pendingReply),
	}
}

func (c *Commander) send(ctx context.Context, cmd relay.Command, args any, reply func(json.RawMessage) error) error {
	env := Envelope{
		ID:            uuid.NewString(),
		Command:       cmd,
		Args:          args,
		ReplyExpected: reply != nil,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", cmd, err)
	}

	if reply != nil {
		c.mu.Lock()
		c.sweepLocked()
		c.replies[env.ID] = pendingReply{deliver: reply, expires: c.now().Add(c.replyTTL)}
		c.mu.Unlock()
	}

	msgID, err := c.publisher.Publish(ctx, data, map[string]string{"command": string(cmd)})
	if err != nil {
		if reply != nil {
			c.forget(env.ID)
		}
		return fmt.Errorf("failed to publish %s: %w", cmd, err)
	}
	c.logger.Debug("Command published", "command", string(cmd), "id", env.ID, "pubsub_msg_id", msgID)
	return nil
}

// HandleReply routes a reply to the callback registered for id. handled is
// false for unknown or expired ids.
func (c *Commander) HandleReply(id string, result json.RawMessage) (handled bool, err error) {
	c.mu.Lock()
	p, ok := c.replies[id]
	if ok {
		delete(c.replies, id)
	}
	c.mu.Unlock()

	if !ok || c.now().After(p.expires) {
		return false, nil
	}
	if err := p.deliver(result); err != nil {
		return true, fmt.Errorf("failed to decode reply %s: %w", id, err)
	}
	return true, nil
}

// PendingReplies reports how many replies are still awaited.
func (c *Commander) PendingReplies() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	return len(c.replies)
}

// Stop flushes the publisher.
func (c *Commander) Stop() {
	c.publisher.Stop()
}

func (c *Commander) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.replies, id)
}

func (c *Commander) sweepLocked() {
	now := c.now()
	for id, p := range c.replies {
		if now.After(p.expires) {
			delete(c.replies, id)
		}
	}
}

func (c *Commander) Configure(ctx context.Context) error {
	return c.send(ctx, relay.CmdConfigure, nil, nil)
}

func (c *Commander) RequestPermissions(ctx context.Context, perms relay.Permissions) error {
	return c.send(ctx, relay.CmdRequestPermissions, perms, nil)
}

func (c *Commander) RegisterForPushNotifications(ctx context.Context) error {
	return c.send(ctx, relay.CmdRegisterForPush, nil, nil)
}

func (c *Commander) CheckPermissions(ctx context.Context, reply func(relay.Permissions)) error {
	return c.send(ctx, relay.CmdCheckPermissions, nil, func(raw json.RawMessage) error {
		var perms relay.Permissions
		if err := json.Unmarshal(raw, &perms); err != nil {
			return err
		}
		reply(perms)
		return nil
	})
}

func (c *Commander) SendTag(ctx context.Context, key, value string) error {
	return c.send(ctx, relay.CmdSendTag, map[string]string{"key": key, "value": value}, nil)
}

func (c *Commander) SendTags(ctx context.Context, tags map[string]string) error {
	return c.send(ctx, relay.CmdSendTags, map[string]any{"tags": tags}, nil)
}

func (c *Commander) GetTags(ctx context.Context, reply func(map[string]string)) error {
	return c.send(ctx, relay.CmdGetTags, nil, func(raw json.RawMessage) error {
		tags := map[string]string{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &tags); err != nil {
				return err
			}
		}
		reply(tags)
		return nil
	})
}

func (c *Commander) DeleteTag(ctx context.Context, key string) error {
	return c.send(ctx, relay.CmdDeleteTag, map[string]string{"key": key}, nil)
}

func (c *Commander) EnableVibrate(ctx context.Context, enable bool) error {
	return c.send(ctx, relay.CmdEnableVibrate, map[string]bool{"enable": enable}, nil)
}

func (c *Commander) EnableSound(ctx context.Context, enable bool) error {
	return c.send(ctx, relay.CmdEnableSound, map[string]bool{"enable": enable}, nil)
}

func (c *Commander) SetSubscription(ctx context.Context, enable bool) error {
	return c.send(ctx, relay.CmdSetSubscription, map[string]bool{"enable": enable}, nil)
}

func (c *Commander) PromptLocation(ctx context.Context) error {
	return c.send(ctx, relay.CmdPromptLocation, nil, nil)
}

func (c *Commander) SetInFocusDisplaying(ctx context.Context, option relay.DisplayOption) error {
	return c.send(ctx, relay.CmdInFocusDisplaying, map[string]int{"display_option": int(option)}, nil)
}

func (c *Commander) PostNotification(ctx context.Context, contents, data any, playerID string) error {
	args := map[string]any{
		"contents":  contents,
		"data":      data,
		"player_id": playerID,
	}
	return c.send(ctx, relay.CmdPostNotification, args, nil)
}

func (c *Commander) ClearNotifications(ctx context.Context) error {
	return c.send(ctx, relay.CmdClearNotifications, nil, nil)
}

func (c *Commander) CancelNotification(ctx context.Context, id int) error {
	return c.send(ctx, relay.CmdCancelNotification, map[string]int{"id": id}, nil)
}

func (c *Commander) SyncHashedEmail(ctx context.Context, email string) error {
	return c.send(ctx, relay.CmdSyncHashedEmail, map[string]string{"email": email}, nil)
}

func (c *Commander) SetLogLevel(ctx context.Context, logLevel, visualLevel relay.LogLevel) error {
	args := map[string]int{"log_level": int(logLevel), "visual_level": int(visualLevel)}
	return c.send(ctx, relay.CmdSetLogLevel, args, nil)
}

var _ relay.Commander = (*Commander)(nil)
