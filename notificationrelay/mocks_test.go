package notificationrelay_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockCommander implements relay.Commander.
type mockCommander struct {
	mock.Mock
}

func (m *mockCommander) Configure(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockCommander) RequestPermissions(ctx context.Context, perms relay.Permissions) error {
	return m.Called(ctx, perms).Error(0)
}

func (m *mockCommander) RegisterForPushNotifications(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockCommander) CheckPermissions(ctx context.Context, reply func(relay.Permissions)) error {
	return m.Called(ctx, reply).Error(0)
}

func (m *mockCommander) SendTag(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockCommander) SendTags(ctx context.Context, tags map[string]string) error {
	return m.Called(ctx, tags).Error(0)
}

func (m *mockCommander) GetTags(ctx context.Context, reply func(map[string]string)) error {
	return m.Called(ctx, reply).Error(0)
}

func (m *mockCommander) DeleteTag(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockCommander) EnableVibrate(ctx context.Context, enable bool) error {
	return m.Called(ctx, enable).Error(0)
}

func (m *mockCommander) EnableSound(ctx context.Context, enable bool) error {
	return m.Called(ctx, enable).Error(0)
}

func (m *mockCommander) SetSubscription(ctx context.Context, enable bool) error {
	return m.Called(ctx, enable).Error(0)
}

func (m *mockCommander) PromptLocation(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockCommander) SetInFocusDisplaying(ctx context.Context, option relay.DisplayOption) error {
	return m.Called(ctx, option).Error(0)
}

func (m *mockCommander) PostNotification(ctx context.Context, contents, data any, playerID string) error {
	return m.Called(ctx, contents, data, playerID).Error(0)
}

func (m *mockCommander) ClearNotifications(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockCommander) CancelNotification(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCommander) SyncHashedEmail(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockCommander) SetLogLevel(ctx context.Context, logLevel, visualLevel relay.LogLevel) error {
	return m.Called(ctx, logLevel, visualLevel).Error(0)
}

// fakeObserver is a hand-driven ConnectivityObserver.
type fakeObserver struct {
	mu        sync.Mutex
	connected bool
	checkErr  error
	listeners map[int]func(bool)
	nextID    int
}

func newFakeObserver(connected bool) *fakeObserver {
	return &fakeObserver{connected: connected, listeners: make(map[int]func(bool))}
}

func (f *fakeObserver) Connected(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected, f.checkErr
}

func (f *fakeObserver) Watch(listener func(bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = listener
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeObserver) emit(connected bool) {
	f.mu.Lock()
	f.connected = connected
	snapshot := make([]func(bool), 0, len(f.listeners))
	for _, l := range f.listeners {
		snapshot = append(snapshot, l)
	}
	f.mu.Unlock()
	for _, l := range snapshot {
		l(connected)
	}
}

// recordingHandler is a pointer-identity Handler that keeps what it saw.
type recordingHandler struct {
	mu     sync.Mutex
	events []relay.Event
}

func (h *recordingHandler) HandleEvent(ev relay.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) seen() []relay.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]relay.Event(nil), h.events...)
}

// receivedBody builds a remoteNotificationReceived body the way the delivery
// subsystem does: the notification JSON carried as a string field.
func receivedBody(t *testing.T, notification map[string]any) json.RawMessage {
	t.Helper()
	encoded, err := json.Marshal(notification)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]string{"notification": string(encoded)})
	require.NoError(t, err)
	return body
}

func openedBody(t *testing.T, notification, action map[string]any) json.RawMessage {
	t.Helper()
	encoded, err := json.Marshal(map[string]any{"notification": notification, "action": action})
	require.NoError(t, err)
	body, err := json.Marshal(map[string]string{"result": string(encoded)})
	require.NoError(t, err)
	return body
}
