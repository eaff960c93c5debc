package notificationrelay_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-notification-relay/notificationrelay"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// blockingIDs returns an OnIDsAvailable callback that parks until release is
// closed, signalling entered once it is running.
func blockingIDs(entered chan<- struct{}, release <-chan struct{}, busy *atomic.Bool) func(relay.Payload) {
	return func(relay.Payload) {
		busy.Store(true)
		defer busy.Store(false)
		entered <- struct{}{}
		<-release
	}
}

func TestRelay_CallsFromOtherGoroutines(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - registration waits for a running callback and then drains", func(t *testing.T) {
		f := newFixture(t, relay.PlatformIOS, true)
		entered := make(chan struct{}, 1)
		release := make(chan struct{})
		var busy atomic.Bool
		f.relay.Configure(ctx, notificationrelay.Callbacks{
			OnIDsAvailable: blockingIDs(entered, release, &busy),
		})

		require.NoError(t, f.relay.Dispatch(ctx, relay.ReceivedEventName, receivedBody(t, map[string]any{"title": "A"})))

		go func() {
			_ = f.relay.Dispatch(ctx, relay.IDsEventName, json.RawMessage(`{"userId":"u1"}`))
		}()
		<-entered

		h := &recordingHandler{}
		returned := make(chan int, 1)
		go func() {
			err := f.relay.AddEventListener(ctx, relay.NotificationReceived, h)
			assert.NoError(t, err)
			returned <- len(h.seen())
		}()

		select {
		case <-returned:
			t.Fatal("AddEventListener returned while another callback was running")
		case <-time.After(50 * time.Millisecond):
		}

		close(release)
		select {
		case n := <-returned:
			assert.Equal(t, 1, n, "buffered payload must be delivered before AddEventListener returns")
		case <-time.After(2 * time.Second):
			t.Fatal("AddEventListener never returned")
		}
		require.Len(t, h.seen(), 1)
		assert.Equal(t, "A", h.seen()[0].Notification["title"])
	})

	t.Run("Success - removal is complete when it returns", func(t *testing.T) {
		f := newFixture(t, relay.PlatformIOS, true)
		entered := make(chan struct{}, 1)
		release := make(chan struct{})
		var busy atomic.Bool
		f.relay.Configure(ctx, notificationrelay.Callbacks{
			OnIDsAvailable: blockingIDs(entered, release, &busy),
		})

		h := &recordingHandler{}
		require.NoError(t, f.relay.AddEventListener(ctx, relay.RegistrationCompleted, h))

		go func() {
			_ = f.relay.Dispatch(ctx, relay.IDsEventName, json.RawMessage(`{"userId":"u1"}`))
		}()
		<-entered

		removed := make(chan struct{})
		go func() {
			assert.NoError(t, f.relay.RemoveEventListener(relay.RegistrationCompleted, h))
			close(removed)
		}()
		time.Sleep(20 * time.Millisecond)
		close(release)
		<-removed

		require.NoError(t, f.relay.Dispatch(ctx, relay.RegisteredEventName, json.RawMessage(`{"accepted":true}`)))
		assert.Empty(t, h.seen())
	})

	t.Run("Success - activation errors never overlap a running callback", func(t *testing.T) {
		commander := new(mockCommander)
		commander.On("Configure", mock.Anything).Return(errors.New("publish failed"))
		observer := newFakeObserver(false)
		r, err := notificationrelay.New(relay.PlatformAndroid, commander, observer, nil, newTestLogger())
		require.NoError(t, err)
		defer r.Close()

		entered := make(chan struct{}, 1)
		release := make(chan struct{})
		var busy atomic.Bool
		var overlapped atomic.Bool
		sink := &errorSink{}
		r.Configure(ctx, notificationrelay.Callbacks{
			OnIDsAvailable: blockingIDs(entered, release, &busy),
			OnError: func(err error) {
				if busy.Load() {
					overlapped.Store(true)
				}
				sink.record(err)
			},
		})
		require.Equal(t, relay.ActivationAwaitingConnectivity, r.ActivationState())

		go func() {
			_ = r.Dispatch(ctx, relay.IDsEventName, json.RawMessage(`{"userId":"u1"}`))
		}()
		<-entered

		emitted := make(chan struct{})
		go func() {
			observer.emit(true)
			close(emitted)
		}()

		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, sink.all(), "error delivered while a callback was running")

		close(release)
		<-emitted
		require.Len(t, sink.all(), 1)
		assert.False(t, overlapped.Load())
		commander.AssertNumberOfCalls(t, "Configure", 1)
	})
}

func TestRelay_DecodeErrorReportedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, relay.PlatformIOS, true)
	sink := &errorSink{}
	f.relay.Configure(ctx, notificationrelay.Callbacks{OnError: sink.record})

	first, second := &recordingHandler{}, &recordingHandler{}
	require.NoError(t, f.relay.AddEventListener(ctx, relay.NotificationReceived, first))
	require.NoError(t, f.relay.AddEventListener(ctx, relay.NotificationReceived, second))
	require.NoError(t, f.relay.AddEventListener(ctx, relay.NotificationOpened, first))
	require.NoError(t, f.relay.AddEventListener(ctx, relay.NotificationOpened, second))

	require.NoError(t, f.relay.Dispatch(ctx, relay.ReceivedEventName, json.RawMessage(`{"notification":"not json"}`)))
	require.NoError(t, f.relay.Dispatch(ctx, relay.OpenedEventName, json.RawMessage(`{"result":"null"}`)))

	errs := sink.all()
	require.Len(t, errs, 2)
	var decodeErr *relay.PayloadDecodeError
	require.ErrorAs(t, errs[0], &decodeErr)
	assert.Equal(t, relay.NotificationReceived, decodeErr.Category)
	require.ErrorAs(t, errs[1], &decodeErr)
	assert.Equal(t, relay.NotificationOpened, decodeErr.Category)
	assert.Empty(t, first.seen())
	assert.Empty(t, second.seen())
}
