package notificationrelay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoroutineID(t *testing.T) {
	own := goroutineID()
	assert.NotZero(t, own)
	assert.Equal(t, own, goroutineID())

	other := make(chan uint64)
	go func() { other <- goroutineID() }()
	assert.NotEqual(t, own, <-other)
}

func TestSerialQueue(t *testing.T) {
	t.Run("Success - nested work runs after the current item", func(t *testing.T) {
		var q serialQueue
		var order []string
		q.run(func() {
			order = append(order, "outer:start")
			q.run(func() { order = append(order, "nested") })
			order = append(order, "outer:end")
		})
		assert.Equal(t, []string{"outer:start", "outer:end", "nested"}, order)
	})

	t.Run("Success - a panicking item hands queued work to a new drainer", func(t *testing.T) {
		var q serialQueue
		entered := make(chan struct{})
		release := make(chan struct{})

		go func() {
			defer func() { _ = recover() }()
			q.run(func() {
				close(entered)
				<-release
				panic("boom")
			})
		}()
		<-entered

		ran := make(chan struct{})
		go q.run(func() { close(ran) })
		time.Sleep(20 * time.Millisecond)
		close(release)

		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			require.FailNow(t, "queued work was stranded by the panic")
		}
	})
}
