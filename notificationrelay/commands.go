package notificationrelay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tinywideclouds/go-notification-relay/internal/platform"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// forward hands one command to the delivery subsystem. Commands the host
// platform does not support are logged and skipped.
func (r *Relay) forward(ctx context.Context, cmd relay.Command, call func(context.Context) error) error {
	if !platform.Supports(r.platform, cmd) {
		r.logger.Warn("Skipping command not supported on platform",
			"command", string(cmd), "platform", string(r.platform), "err", relay.ErrUnsupportedOnPlatform)
		return nil
	}
	if err := call(ctx); err != nil {
		r.logger.Error("Failed to forward command", "command", string(cmd), "err", err)
		return fmt.Errorf("%s: %w", cmd, err)
	}
	r.logger.Debug("Command forwarded", "command", string(cmd))
	return nil
}

// RequestPermissions asks for notification permissions. nil requests alert,
// badge and sound.
func (r *Relay) RequestPermissions(ctx context.Context, perms *relay.Permissions) error {
	p := relay.Permissions{Alert: true, Badge: true, Sound: true}
	if perms != nil {
		p = *perms
	}
	return r.forward(ctx, relay.CmdRequestPermissions, func(ctx context.Context) error {
		return r.commander.RequestPermissions(ctx, p)
	})
}

func (r *Relay) RegisterForPushNotifications(ctx context.Context) error {
	return r.forward(ctx, relay.CmdRegisterForPush, r.commander.RegisterForPushNotifications)
}

// CheckPermissions asks for the current permission flags; reply is called
// once when they arrive.
func (r *Relay) CheckPermissions(ctx context.Context, reply func(relay.Permissions)) error {
	return r.forward(ctx, relay.CmdCheckPermissions, func(ctx context.Context) error {
		if reply == nil {
			return relay.ErrNilCallback
		}
		return r.commander.CheckPermissions(ctx, reply)
	})
}

func (r *Relay) SendTag(ctx context.Context, key, value string) error {
	return r.forward(ctx, relay.CmdSendTag, func(ctx context.Context) error {
		return r.commander.SendTag(ctx, key, value)
	})
}

// SendTags forwards tags as one command. nil is sent as an empty map.
func (r *Relay) SendTags(ctx context.Context, tags map[string]string) error {
	if tags == nil {
		tags = map[string]string{}
	}
	return r.forward(ctx, relay.CmdSendTags, func(ctx context.Context) error {
		return r.commander.SendTags(ctx, tags)
	})
}

func (r *Relay) GetTags(ctx context.Context, reply func(map[string]string)) error {
	return r.forward(ctx, relay.CmdGetTags, func(ctx context.Context) error {
		if reply == nil {
			return relay.ErrNilCallback
		}
		return r.commander.GetTags(ctx, reply)
	})
}

func (r *Relay) DeleteTag(ctx context.Context, key string) error {
	return r.forward(ctx, relay.CmdDeleteTag, func(ctx context.Context) error {
		return r.commander.DeleteTag(ctx, key)
	})
}

func (r *Relay) EnableVibrate(ctx context.Context, enable bool) error {
	return r.forward(ctx, relay.CmdEnableVibrate, func(ctx context.Context) error {
		return r.commander.EnableVibrate(ctx, enable)
	})
}

func (r *Relay) EnableSound(ctx context.Context, enable bool) error {
	return r.forward(ctx, relay.CmdEnableSound, func(ctx context.Context) error {
		return r.commander.EnableSound(ctx, enable)
	})
}

func (r *Relay) SetSubscription(ctx context.Context, enable bool) error {
	return r.forward(ctx, relay.CmdSetSubscription, func(ctx context.Context) error {
		return r.commander.SetSubscription(ctx, enable)
	})
}

func (r *Relay) PromptLocation(ctx context.Context) error {
	return r.forward(ctx, relay.CmdPromptLocation, r.commander.PromptLocation)
}

func (r *Relay) SetInFocusDisplaying(ctx context.Context, option relay.DisplayOption) error {
	return r.forward(ctx, relay.CmdInFocusDisplaying, func(ctx context.Context) error {
		return r.commander.SetInFocusDisplaying(ctx, option)
	})
}

// PostNotification sends a notification to playerID. Android receives
// contents and data as JSON strings; iOS receives them structured.
func (r *Relay) PostNotification(ctx context.Context, contents map[string]string, data map[string]any, playerID string) error {
	var encContents, encData any = contents, data
	if platform.EncodesPostBody(r.platform) {
		c, err := json.Marshal(contents)
		if err != nil {
			return fmt.Errorf("%s: failed to encode contents: %w", relay.CmdPostNotification, err)
		}
		d, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("%s: failed to encode data: %w", relay.CmdPostNotification, err)
		}
		encContents, encData = string(c), string(d)
	}
	return r.forward(ctx, relay.CmdPostNotification, func(ctx context.Context) error {
		return r.commander.PostNotification(ctx, encContents, encData, playerID)
	})
}

func (r *Relay) ClearNotifications(ctx context.Context) error {
	return r.forward(ctx, relay.CmdClearNotifications, r.commander.ClearNotifications)
}

func (r *Relay) CancelNotification(ctx context.Context, id int) error {
	return r.forward(ctx, relay.CmdCancelNotification, func(ctx context.Context) error {
		return r.commander.CancelNotification(ctx, id)
	})
}

func (r *Relay) SyncHashedEmail(ctx context.Context, email string) error {
	return r.forward(ctx, relay.CmdSyncHashedEmail, func(ctx context.Context) error {
		return r.commander.SyncHashedEmail(ctx, email)
	})
}

func (r *Relay) SetLogLevel(ctx context.Context, logLevel, visualLevel relay.LogLevel) error {
	return r.forward(ctx, relay.CmdSetLogLevel, func(ctx context.Context) error {
		return r.commander.SetLogLevel(ctx, logLevel, visualLevel)
	})
}

// IDsAvailable is kept for callers of the old API. It only logs; set
// Callbacks.OnIDsAvailable instead.
//
// Deprecated: use Callbacks.OnIDsAvailable.
func (r *Relay) IDsAvailable() {
	r.logger.Warn("IDsAvailable is deprecated and does nothing; set Callbacks.OnIDsAvailable through Configure")
}
