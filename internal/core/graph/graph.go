// Package graph describes the eventually-consistent graph store the feed
// consumes, and provides the pieces shared by every store implementation.
//
// The graph is a tree of nodes addressed by slash separated paths. A node is a
// set of fields; a field holds either a primitive or a Link to the child node
// at path/field. Writing a node merges fields rather than replacing them, and
// writing nil tombstones the node: it stays addressable but reads as absent.
//
// Subscriptions have no unsubscribe. Listeners may fire redundantly and in no
// particular order across nodes.
package graph

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable is returned when the store cannot be reached.
var ErrUnavailable = errors.New("graph store unavailable")

// Value is the field set of a node. A nil Value means the node is absent or
// tombstoned.
type Value = map[string]any

// Link references the child node stored at Path.
type Link struct {
	Path string `json:"#"`
}

// Listener receives a node value (or a child value) and its key, which is the
// last path segment.
type Listener func(v any, key string)

// ChildOptions tunes a Children subscription.
type ChildOptions struct {
	// ChangeOnly delivers only fields whose value changed after the initial
	// enumeration. Without it every field is re-delivered whenever the node
	// changes.
	ChangeOnly bool
}

// Adapter is the capability the feed needs from a graph store.
type Adapter interface {
	// Once returns the current value of path, nil when absent.
	Once(ctx context.Context, path string) (Value, error)

	// On delivers the current value of path (if present) and again every time
	// it changes. A tombstone is delivered as a nil value.
	On(path string, fn Listener)

	// Children delivers every field of path once, then field mutations.
	// Link fields are delivered as the linked node's value.
	Children(path string, opts ChildOptions, fn Listener)

	// Put merges v into path. A nil v tombstones the node.
	Put(ctx context.Context, path string, v Value) error
}

// Join builds a path from segments.
func Join(parts ...string) string {
	return strings.Join(parts, "/")
}

// Split returns the segments of path.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Parent returns the parent path and the key of path within it. ok is false
// for root level paths.
func Parent(path string) (parent, key string, ok bool) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path, false
	}
	return path[:i], path[i+1:], true
}

// Key returns the last segment of path.
func Key(path string) string {
	_, key, _ := Parent(path)
	return key
}

// ValidPath reports whether path is non-empty and has no empty segments.
func ValidPath(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range Split(path) {
		if seg == "" {
			return false
		}
	}
	return true
}
