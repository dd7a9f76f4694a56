package store

import (
	"sync"
	"sync/atomic"

	"dayplan/internal/model"
)

// Feed serializes snapshot delivery for one subscriber. Push never blocks:
// a snapshot that arrives while the previous one is still being delivered
// replaces any snapshot already waiting, so slow callbacks only ever see
// the newest list.
type Feed struct {
	fn      func([]model.Task)
	pending chan []model.Task
	done    chan struct{}
	stop    sync.Once
	mu      sync.Mutex
	stopped bool

	// deliverMu is held by run from the stopped check until fn returns.
	deliverMu  sync.Mutex
	inCallback atomic.Bool

	// testHookDeliver runs after the stopped check, before fn.
	testHookDeliver func()
}

// NewFeed starts the delivery goroutine for fn.
func NewFeed(fn func([]model.Task)) *Feed {
	f := &Feed{
		fn:      fn,
		pending: make(chan []model.Task, 1),
		done:    make(chan struct{}),
	}
	go f.run()
	return f
}

// Push queues a snapshot for delivery.
func (f *Feed) Push(tasks []model.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	select {
	case <-f.pending:
	default:
	}
	f.pending <- tasks
}

// Stop ends delivery. A callback already running finishes; none starts
// after Stop returns. Safe to call repeatedly and from inside the callback.
func (f *Feed) Stop() {
	f.stop.Do(func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
		close(f.done)
	})
	if f.inCallback.Load() {
		return
	}
	// Wait out a delivery that passed the stopped check before we set it.
	f.deliverMu.Lock()
	f.deliverMu.Unlock()
}

// Done is closed once Stop has been called.
func (f *Feed) Done() <-chan struct{} { return f.done }

func (f *Feed) run() {
	for {
		select {
		case <-f.done:
			return
		case tasks := <-f.pending:
			if !f.deliver(tasks) {
				return
			}
		}
	}
}

// deliver calls fn unless the feed has been stopped.
func (f *Feed) deliver(tasks []model.Task) bool {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()
	f.mu.Lock()
	stopped := f.stopped
	f.mu.Unlock()
	if stopped {
		return false
	}
	if f.testHookDeliver != nil {
		f.testHookDeliver()
	}
	f.inCallback.Store(true)
	defer f.inCallback.Store(false)
	f.fn(tasks)
	return true
}
