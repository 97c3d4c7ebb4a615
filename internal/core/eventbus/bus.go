package eventbus

import (
	"context"
	"slices"
	"sync"
)

type envelope struct {
	event   Event
	payload any
}

// EventBus dispatches events to subscribers on a single goroutine, in publish
// order. Publishing blocks while the buffer is full and the bus is running, so
// lifecycle events are never dropped; events published after the bus stopped
// are dropped and reported to OnDrop hooks.
//
// Subscribers run on the dispatch goroutine and must not publish
// synchronously.
type EventBus struct {
	ch    chan envelope
	done  chan struct{}
	once  sync.Once
	hooks hooks

	mu   sync.RWMutex
	subs map[Event][]func(any)
	all  []func(Event, any)
}

// New creates a bus with the given buffer size.
func New(buffer int) *EventBus {
	if buffer < 1 {
		buffer = 1
	}
	return &EventBus{
		ch:   make(chan envelope, buffer),
		done: make(chan struct{}),
		subs: map[Event][]func(any){},
	}
}

// Start dispatches events until ctx is cancelled.
func (bus *EventBus) Start(ctx context.Context) {
	defer bus.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-bus.ch:
			bus.dispatch(env)
		}
	}
}

// Done is closed once the bus has stopped.
func (bus *EventBus) Done() <-chan struct{} {
	return bus.done
}

func (bus *EventBus) stop() {
	bus.once.Do(func() { close(bus.done) })
}

// flushMarker is enqueued by Flush and closed when dispatched.
type flushMarker chan struct{}

// Flush blocks until every event published before the call has been
// dispatched. It returns nil if the bus stops first.
func (bus *EventBus) Flush(ctx context.Context) error {
	marker := make(flushMarker)
	select {
	case bus.ch <- envelope{payload: marker}:
	case <-bus.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-marker:
		return nil
	case <-bus.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (bus *EventBus) dispatch(env envelope) {
	if m, ok := env.payload.(flushMarker); ok {
		close(m)
		return
	}

	bus.mu.RLock()
	subs := slices.Clone(bus.subs[env.event])
	all := slices.Clone(bus.all)
	bus.mu.RUnlock()

	for _, fn := range subs {
		bus.call(env, func() { fn(env.payload) })
	}
	for _, fn := range all {
		bus.call(env, func() { fn(env.event, env.payload) })
	}
}

func (bus *EventBus) call(env envelope, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			bus.runOnPanic(env.event, env.payload, r)
		}
	}()
	fn()
}

func (bus *EventBus) subscribe(event Event, fn func(any)) {
	bus.mu.Lock()
	bus.subs[event] = append(bus.subs[event], fn)
	bus.mu.Unlock()
	bus.runOnSubscribe(event)
}

// SubscribeAll registers fn for every event. It runs after the typed
// subscribers of each event.
func (bus *EventBus) SubscribeAll(fn func(Event, any)) {
	bus.mu.Lock()
	bus.all = append(bus.all, fn)
	bus.mu.Unlock()
	for event := range Events {
		bus.runOnSubscribe(event)
	}
}

// PublishPackageWatched publishes EventPackageWatched.
func (bus *EventBus) PublishPackageWatched(p PackageWatchedPayload) {
	bus.send(EventPackageWatched, p)
}

// SubscribePackageWatched registers fn for EventPackageWatched.
func (bus *EventBus) SubscribePackageWatched(fn func(PackageWatchedPayload)) {
	bus.subscribe(EventPackageWatched, func(p any) { fn(p.(PackageWatchedPayload)) })
}

// PublishPackageUnwatched publishes EventPackageUnwatched.
func (bus *EventBus) PublishPackageUnwatched(p PackageUnwatchedPayload) {
	bus.send(EventPackageUnwatched, p)
}

// SubscribePackageUnwatched registers fn for EventPackageUnwatched.
func (bus *EventBus) SubscribePackageUnwatched(fn func(PackageUnwatchedPayload)) {
	bus.subscribe(EventPackageUnwatched, func(p any) { fn(p.(PackageUnwatchedPayload)) })
}

// PublishPackageWatchFailed publishes EventPackageWatchFailed.
func (bus *EventBus) PublishPackageWatchFailed(p PackageWatchFailedPayload) {
	bus.send(EventPackageWatchFailed, p)
}

// SubscribePackageWatchFailed registers fn for EventPackageWatchFailed.
func (bus *EventBus) SubscribePackageWatchFailed(fn func(PackageWatchFailedPayload)) {
	bus.subscribe(EventPackageWatchFailed, func(p any) { fn(p.(PackageWatchFailedPayload)) })
}

// PublishItemWatched publishes EventItemWatched.
func (bus *EventBus) PublishItemWatched(p ItemWatchedPayload) {
	bus.send(EventItemWatched, p)
}

// SubscribeItemWatched registers fn for EventItemWatched.
func (bus *EventBus) SubscribeItemWatched(fn func(ItemWatchedPayload)) {
	bus.subscribe(EventItemWatched, func(p any) { fn(p.(ItemWatchedPayload)) })
}

// PublishItemUnwatched publishes EventItemUnwatched.
func (bus *EventBus) PublishItemUnwatched(p ItemUnwatchedPayload) {
	bus.send(EventItemUnwatched, p)
}

// SubscribeItemUnwatched registers fn for EventItemUnwatched.
func (bus *EventBus) SubscribeItemUnwatched(fn func(ItemUnwatchedPayload)) {
	bus.subscribe(EventItemUnwatched, func(p any) { fn(p.(ItemUnwatchedPayload)) })
}

// PublishItemChanged publishes EventItemChanged.
func (bus *EventBus) PublishItemChanged(p ItemChangedPayload) {
	bus.send(EventItemChanged, p)
}

// SubscribeItemChanged registers fn for EventItemChanged.
func (bus *EventBus) SubscribeItemChanged(fn func(ItemChangedPayload)) {
	bus.subscribe(EventItemChanged, func(p any) { fn(p.(ItemChangedPayload)) })
}

// PublishFeedReset publishes EventFeedReset.
func (bus *EventBus) PublishFeedReset(p FeedResetPayload) {
	bus.send(EventFeedReset, p)
}

// SubscribeFeedReset registers fn for EventFeedReset.
func (bus *EventBus) SubscribeFeedReset(fn func(FeedResetPayload)) {
	bus.subscribe(EventFeedReset, func(p any) { fn(p.(FeedResetPayload)) })
}

// PublishTopicChanged publishes EventTopicChanged.
func (bus *EventBus) PublishTopicChanged(p TopicChangedPayload) {
	bus.send(EventTopicChanged, p)
}

// SubscribeTopicChanged registers fn for EventTopicChanged.
func (bus *EventBus) SubscribeTopicChanged(fn func(TopicChangedPayload)) {
	bus.subscribe(EventTopicChanged, func(p any) { fn(p.(TopicChangedPayload)) })
}
