package eventbus

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RegisterDebugLogger registers bus hooks that log all event activity at debug level.
// OnPublish reports every event, OnDrop events published after shutdown and
// OnPanic subscriber panics.
func RegisterDebugLogger(bus *EventBus, logger zerolog.Logger) {
	bus.OnPublish(func(event Event, payload any) {
		logger.Debug().Str("event", string(event)).Str("subject", Subject(payload)).Msg("event fired")
	})

	bus.OnDrop(func(event Event, _ any) {
		logger.Warn().Str("event", string(event)).Msg("event dropped: bus stopped")
	})

	bus.OnPanic(func(event Event, _ any, recovered any) {
		logger.Error().
			Str("event", string(event)).
			Str("panic", fmt.Sprint(recovered)).
			Msg("subscriber panicked")
	})
}

// Subject returns a short identifier of what an event payload is about: the
// item id, the package id or the topic.
func Subject(payload any) string {
	switch p := payload.(type) {
	case PackageWatchedPayload:
		return p.Package.String()
	case PackageUnwatchedPayload:
		return p.Package.String()
	case PackageWatchFailedPayload:
		return p.Package.String()
	case ItemWatchedPayload:
		return p.ID
	case ItemUnwatchedPayload:
		return p.ID
	case ItemChangedPayload:
		return p.ID
	case TopicChangedPayload:
		return p.Topic
	case FeedResetPayload:
		return p.Context
	default:
		return ""
	}
}
