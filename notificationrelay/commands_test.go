package notificationrelay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

func TestRelay_PlatformRestrictedCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("iOS skips Android-only commands", func(t *testing.T) {
		f := newFixture(t, relay.PlatformIOS, true)

		assert.NoError(t, f.relay.EnableVibrate(ctx, true))
		assert.NoError(t, f.relay.EnableSound(ctx, true))
		assert.NoError(t, f.relay.SetInFocusDisplaying(ctx, relay.DisplayNotification))
		assert.NoError(t, f.relay.ClearNotifications(ctx))
		assert.NoError(t, f.relay.CancelNotification(ctx, 7))

		f.commander.AssertNotCalled(t, "EnableVibrate", mock.Anything, mock.Anything)
		f.commander.AssertNotCalled(t, "EnableSound", mock.Anything, mock.Anything)
		f.commander.AssertNotCalled(t, "SetInFocusDisplaying", mock.Anything, mock.Anything)
		f.commander.AssertNotCalled(t, "ClearNotifications", mock.Anything)
		f.commander.AssertNotCalled(t, "CancelNotification", mock.Anything, mock.Anything)
	})

	t.Run("Android skips iOS-only commands", func(t *testing.T) {
		f := newFixture(t, relay.PlatformAndroid, true)

		assert.NoError(t, f.relay.RequestPermissions(ctx, nil))
		assert.NoError(t, f.relay.RegisterForPushNotifications(ctx))
		assert.NoError(t, f.relay.CheckPermissions(ctx, func(relay.Permissions) {}))

		f.commander.AssertNotCalled(t, "RequestPermissions", mock.Anything, mock.Anything)
		f.commander.AssertNotCalled(t, "RegisterForPushNotifications", mock.Anything)
		f.commander.AssertNotCalled(t, "CheckPermissions", mock.Anything, mock.Anything)
	})

	t.Run("Android forwards its own commands", func(t *testing.T) {
		f := newFixture(t, relay.PlatformAndroid, true)
		f.commander.On("EnableVibrate", mock.Anything, false).Return(nil)
		f.commander.On("SetInFocusDisplaying", mock.Anything, relay.DisplayInAppAlert).Return(nil)
		f.commander.On("CancelNotification", mock.Anything, 42).Return(nil)

		require.NoError(t, f.relay.EnableVibrate(ctx, false))
		require.NoError(t, f.relay.SetInFocusDisplaying(ctx, relay.DisplayInAppAlert))
		require.NoError(t, f.relay.CancelNotification(ctx, 42))
		f.commander.AssertExpectations(t)
	})
}

func TestRelay_CommandArguments(t *testing.T) {
	ctx := context.Background()

	t.Run("RequestPermissions defaults to all permissions", func(t *testing.T) {
		f := newFixture(t, relay.PlatformIOS, true)
		all := relay.Permissions{Alert: true, Badge: true, Sound: true}
		onlyAlert := relay.Permissions{Alert: true}
		f.commander.On("RequestPermissions", mock.Anything, all).Return(nil).Once()
		f.commander.On("RequestPermissions", mock.Anything, onlyAlert).Return(nil).Once()

		require.NoError(t, f.relay.RequestPermissions(ctx, nil))
		require.NoError(t, f.relay.RequestPermissions(ctx, &onlyAlert))
		f.commander.AssertExpectations(t)
	})

	t.Run("SendTags sends an empty map for nil", func(t *testing.T) {
		f := newFixture(t, relay.PlatformIOS, true)
		f.commander.On("SendTags", mock.Anything, map[string]string{}).Return(nil)

		require.NoError(t, f.relay.SendTags(ctx, nil))
		f.commander.AssertExpectations(t)
	})

	t.Run("Commands with replies require a callback", func(t *testing.T) {
		f := newFixture(t, relay.PlatformIOS, true)

		assert.ErrorIs(t, f.relay.GetTags(ctx, nil), relay.ErrNilCallback)
		assert.ErrorIs(t, f.relay.CheckPermissions(ctx, nil), relay.ErrNilCallback)
		f.commander.AssertNotCalled(t, "GetTags", mock.Anything, mock.Anything)
	})

	t.Run("PostNotification encodes for Android", func(t *testing.T) {
		f := newFixture(t, relay.PlatformAndroid, true)
		f.commander.On("PostNotification", mock.Anything, `{"en":"hi"}`, `{"k":1}`, "player-1").Return(nil)

		err := f.relay.PostNotification(ctx, map[string]string{"en": "hi"}, map[string]any{"k": 1}, "player-1")
		require.NoError(t, err)
		f.commander.AssertExpectations(t)
	})

	t.Run("PostNotification is structured for iOS", func(t *testing.T) {
		f := newFixture(t, relay.PlatformIOS, true)
		contents := map[string]string{"en": "hi"}
		data := map[string]any{"k": 1}
		f.commander.On("PostNotification", mock.Anything, contents, data, "player-1").Return(nil)

		require.NoError(t, f.relay.PostNotification(ctx, contents, data, "player-1"))
		f.commander.AssertExpectations(t)
	})

	t.Run("Simple commands pass their arguments through", func(t *testing.T) {
		f := newFixture(t, relay.PlatformIOS, true)
		f.commander.On("SendTag", mock.Anything, "plan", "pro").Return(nil)
		f.commander.On("DeleteTag", mock.Anything, "plan").Return(nil)
		f.commander.On("SetSubscription", mock.Anything, false).Return(nil)
		f.commander.On("PromptLocation", mock.Anything).Return(nil)
		f.commander.On("SyncHashedEmail", mock.Anything, "a@example.com").Return(nil)
		f.commander.On("SetLogLevel", mock.Anything, relay.LogLevelDebug, relay.LogLevelNone).Return(nil)

		require.NoError(t, f.relay.SendTag(ctx, "plan", "pro"))
		require.NoError(t, f.relay.DeleteTag(ctx, "plan"))
		require.NoError(t, f.relay.SetSubscription(ctx, false))
		require.NoError(t, f.relay.PromptLocation(ctx))
		require.NoError(t, f.relay.SyncHashedEmail(ctx, "a@example.com"))
		require.NoError(t, f.relay.SetLogLevel(ctx, relay.LogLevelDebug, relay.LogLevelNone))
		f.commander.AssertExpectations(t)
	})
}

func TestRelay_CommandFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, relay.PlatformIOS, true)
	boom := errors.New("publish failed")
	f.commander.On("SendTag", mock.Anything, "k", "v").Return(boom).Once()

	err := f.relay.SendTag(ctx, "k", "v")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), string(relay.CmdSendTag))
	f.commander.AssertNumberOfCalls(t, "SendTag", 1)
}
