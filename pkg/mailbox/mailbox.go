// Package mailbox provides a single-consumer task queue. Every task posted to a
// Mailbox runs on the goroutine that called Start, one at a time and in post
// order, which lets callback-driven state machines mutate their state without
// locks regardless of which goroutine delivered the callback.
package mailbox

import (
	"context"
	"sync"
)

// Mailbox is an unbounded FIFO of tasks drained by a single goroutine.
// Posting never blocks, so tasks may safely post follow-up tasks.
type Mailbox struct {
	mu       sync.Mutex
	queue    []func()
	running  bool
	inflight int
	closed   bool

	wake chan struct{}
	idle chan struct{} // closed while nothing is queued, running or in flight

	onPanic func(recovered any)
}

// New creates an idle mailbox. Call Start to begin draining it.
func New() *Mailbox {
	m := &Mailbox{
		wake: make(chan struct{}, 1),
		idle: make(chan struct{}),
	}
	close(m.idle)
	return m
}

// OnPanic registers a hook invoked with the recovered value when a task panics.
// A panicking task never stops the mailbox. Must be called before Start.
func (m *Mailbox) OnPanic(fn func(recovered any)) {
	m.onPanic = fn
}

// Post enqueues fn. Returns false when the mailbox has been closed.
func (m *Mailbox) Post(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, fn)
	m.busyLocked()
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// Go runs work on its own goroutine and posts the task it returns (if any)
// back onto the mailbox. Use it for blocking calls whose result must be
// applied to mailbox-owned state. Wait accounts for work still in flight.
func (m *Mailbox) Go(work func() func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.inflight++
	m.busyLocked()
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.inflight--
			m.settleLocked()
			m.mu.Unlock()
		}()

		var next func()
		func() {
			defer m.recover()
			next = work()
		}()

		if next != nil {
			m.Post(next)
		}
	}()
}

// Start drains the mailbox until ctx is cancelled, then closes it.
func (m *Mailbox) Start(ctx context.Context) {
	defer m.Close()

	for {
		fn, ok := m.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				continue
			}
		}

		m.exec(fn)

		m.mu.Lock()
		m.running = false
		m.settleLocked()
		m.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
	}
}

// Wait blocks until the mailbox is idle: no queued tasks, no running task and
// no Go work in flight.
func (m *Mailbox) Wait(ctx context.Context) error {
	m.mu.Lock()
	idle := m.idle
	m.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close discards queued tasks and rejects new ones.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.queue = nil
	m.settleLocked()
}

// Len returns the number of queued tasks.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Mailbox) next() (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, false
	}
	fn := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	m.running = true
	return fn, true
}

func (m *Mailbox) exec(fn func()) {
	defer m.recover()
	fn()
}

func (m *Mailbox) recover() {
	if r := recover(); r != nil && m.onPanic != nil {
		func() {
			defer func() { recover() }() //nolint:errcheck
			m.onPanic(r)
		}()
	}
}

func (m *Mailbox) busyLocked() {
	select {
	case <-m.idle:
		m.idle = make(chan struct{})
	default:
	}
}

func (m *Mailbox) settleLocked() {
	if len(m.queue) > 0 || m.running || m.inflight > 0 {
		return
	}
	select {
	case <-m.idle:
	default:
		close(m.idle)
	}
}
