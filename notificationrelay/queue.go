package notificationrelay

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

type queueItem struct {
	fn   func()
	done chan struct{}
}

// serialQueue runs submitted work one item at a time, in submission order.
// The goroutine that finds the queue idle drains it. Work submitted from
// another goroutine while it drains waits until that item has run. Work
// submitted by the drainer itself, from inside a running item, is appended
// and run after the current item returns.
type serialQueue struct {
	mu       sync.Mutex
	items    []*queueItem
	draining bool
	drainer  uint64
}

func (q *serialQueue) run(fn func()) {
	item := &queueItem{fn: fn, done: make(chan struct{})}
	id := goroutineID()

	q.mu.Lock()
	q.items = append(q.items, item)
	if q.draining {
		reentrant := q.drainer == id
		q.mu.Unlock()
		if !reentrant {
			<-item.done
		}
		return
	}
	q.draining = true
	q.drainer = id

	for len(q.items) > 0 {
		next := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()
		q.invoke(next)
		q.mu.Lock()
	}
	q.draining = false
	q.drainer = 0
	q.mu.Unlock()
}

// invoke releases the drainer role if the item panics. Items still queued
// are handed to a fresh drainer so their waiters are not stranded.
func (q *serialQueue) invoke(item *queueItem) {
	completed := false
	defer func() {
		close(item.done)
		if completed {
			return
		}
		q.mu.Lock()
		q.draining = false
		q.drainer = 0
		pending := len(q.items) > 0
		q.mu.Unlock()
		if pending {
			go q.run(func() {})
		}
	}()
	item.fn()
	completed = true
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID reads the calling goroutine's id from its stack header,
// "goroutine 18 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		panic("notificationrelay: cannot parse goroutine id: " + err.Error())
	}
	return id
}
