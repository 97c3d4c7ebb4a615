// Package item defines the data records carried inside packages and the
// classifier that decides which value-object shape a record takes.
package item

import (
	"maps"
	"reflect"

	"github.com/colonyops/lxfeed/internal/core/pkgref"
)

// MetaKey is the graph metadata field stripped from every record.
const MetaKey = "_"

// Item is one data record owned by exactly one package.
type Item struct {
	ID      string         `json:"id"`
	Package pkgref.Ref     `json:"package"`
	Kind    Kind           `json:"kind"`
	Data    map[string]any `json:"data"`
	Active  bool           `json:"active"`
}

// New builds an active item from a raw record, classifying it.
func New(id string, pkg pkgref.Ref, raw map[string]any) *Item {
	data := Fields(raw)
	return &Item{
		ID:      id,
		Package: pkg,
		Kind:    Classify(data),
		Data:    data,
		Active:  true,
	}
}

// Fields copies raw without graph metadata and null fields.
func Fields(raw map[string]any) map[string]any {
	data := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == MetaKey || v == nil {
			continue
		}
		data[k] = v
	}
	return data
}

// Merge applies a single field mutation. A nil value removes the field.
// Returns false when the mutation leaves the record unchanged.
func (it *Item) Merge(field string, value any) bool {
	if field == MetaKey {
		return false
	}

	current, ok := it.Data[field]
	if value == nil {
		if !ok {
			return false
		}
		delete(it.Data, field)
		return true
	}

	if ok && reflect.DeepEqual(current, value) {
		return false
	}

	if it.Data == nil {
		it.Data = map[string]any{}
	}
	it.Data[field] = value
	return true
}

// Clone returns a copy whose Data can be handed to event consumers.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := *it
	c.Data = maps.Clone(it.Data)
	return &c
}

// Marker returns the marker view of the item. ok is false for generic items.
func (it *Item) Marker() (m Marker, ok bool) {
	if it.Kind != KindMarker {
		return Marker{}, false
	}
	return Marker{
		Geo:       it.Data[FieldGeo],
		Ordinal:   it.Data[FieldOrdinal],
		Timestamp: it.Data[FieldTimestamp],
	}, true
}
