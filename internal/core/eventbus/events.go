// Package eventbus provides the typed publish/subscribe bus on which a feed
// emits its consolidated lifecycle event stream.
package eventbus

import (
	"github.com/colonyops/lxfeed/internal/core/item"
	"github.com/colonyops/lxfeed/internal/core/pkgref"
)

// Event names a bus event.
type Event string

// Keep list sorted A-Z
const (
	EventFeedReset          Event = "reset"
	EventItemChanged        Event = "change"
	EventItemUnwatched      Event = "item-unwatch"
	EventItemWatched        Event = "item-watch"
	EventPackageUnwatched   Event = "unwatch"
	EventPackageWatchFailed Event = "watch-failed"
	EventPackageWatched     Event = "watch"
	EventTopicChanged       Event = "topic"
)

// Events maps every event to its payload type.
var Events = map[Event]any{
	EventFeedReset:          FeedResetPayload{},
	EventItemChanged:        ItemChangedPayload{},
	EventItemUnwatched:      ItemUnwatchedPayload{},
	EventItemWatched:        ItemWatchedPayload{},
	EventPackageUnwatched:   PackageUnwatchedPayload{},
	EventPackageWatchFailed: PackageWatchFailedPayload{},
	EventPackageWatched:     PackageWatchedPayload{},
	EventTopicChanged:       TopicChangedPayload{},
}

// PackageWatchedPayload is emitted once per successful package confirmation.
type PackageWatchedPayload struct {
	Context string     `json:"context"`
	Package pkgref.Ref `json:"package"`
}

// PackageUnwatchedPayload is emitted once per removal of a watched package.
type PackageUnwatchedPayload struct {
	Context string     `json:"context"`
	Package pkgref.Ref `json:"package"`
}

// PackageWatchFailedPayload is emitted when the confirmation read of a package
// could not reach the store.
type PackageWatchFailedPayload struct {
	Context string     `json:"context"`
	Package pkgref.Ref `json:"package"`
	Err     error      `json:"-"`
}

// ItemWatchedPayload is emitted once per item becoming active.
type ItemWatchedPayload struct {
	Context string         `json:"context"`
	ID      string         `json:"id"`
	Package pkgref.Ref     `json:"package"`
	Data    map[string]any `json:"data"`
	Item    *item.Item     `json:"item"`
}

// ItemUnwatchedPayload is emitted once per item becoming inactive, and for
// every tracked item on reset. Item is the last known record.
type ItemUnwatchedPayload struct {
	Context string     `json:"context"`
	ID      string     `json:"id"`
	Package pkgref.Ref `json:"package"`
	Item    *item.Item `json:"item"`
}

// ItemChangedPayload carries a single mutated field of an active item.
type ItemChangedPayload struct {
	Context string         `json:"context"`
	ID      string         `json:"id"`
	Package pkgref.Ref     `json:"package"`
	Data    map[string]any `json:"data"`
}

// FeedResetPayload is emitted once per reset.
type FeedResetPayload struct {
	Context string `json:"context"`
}

// TopicChangedPayload is emitted when a topic flag is toggled.
type TopicChangedPayload struct {
	Context    string `json:"context"`
	Topic      string `json:"topic"`
	Subscribed bool   `json:"subscribed"`
}
