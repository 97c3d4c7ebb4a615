package graph

import (
	"reflect"
	"slices"
	"sync"
)

type childSub struct {
	opts ChildOptions
	fn   Listener
}

// Hub keeps the subscriptions of a store and turns node transitions into
// listener calls. Stores persist a write first and then hand its transitions
// to Notify, so the getter always observes the written state.
type Hub struct {
	get Getter

	mu       sync.Mutex
	on       map[string][]Listener
	children map[string][]childSub
}

// NewHub creates a hub that reads current node values through get.
func NewHub(get Getter) *Hub {
	return &Hub{
		get:      get,
		on:       map[string][]Listener{},
		children: map[string][]childSub{},
	}
}

// On registers fn for path and delivers the current value if present. The
// listener is registered before the read, so a concurrent write is delivered
// at least once.
func (h *Hub) On(path string, fn Listener) {
	h.mu.Lock()
	h.on[path] = append(h.on[path], fn)
	h.mu.Unlock()

	if v := h.get(path); v != nil {
		fn(v, Key(path))
	}
}

// Children registers fn for the fields of path and enumerates the current
// non-nil fields.
func (h *Hub) Children(path string, opts ChildOptions, fn Listener) {
	h.mu.Lock()
	h.children[path] = append(h.children[path], childSub{opts: opts, fn: fn})
	h.mu.Unlock()

	v := h.get(path)
	for _, key := range SortedKeys(v) {
		if val := v[key]; val != nil {
			fn(h.resolve(val), key)
		}
	}
}

// Subscriptions returns the number of On and Children listeners on path.
func (h *Hub) Subscriptions(path string) (on, children int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.on[path]), len(h.children[path])
}

// Notify fires the listeners affected by the given transitions, in order.
func (h *Hub) Notify(transitions []Transition) {
	for _, t := range transitions {
		h.notify(t)
	}
}

func (h *Hub) notify(t Transition) {
	h.mu.Lock()
	ons := append([]Listener(nil), h.on[t.Path]...)
	subs := append([]childSub(nil), h.children[t.Path]...)
	h.mu.Unlock()

	if len(ons) == 0 && len(subs) == 0 {
		return
	}

	key := Key(t.Path)
	var payload any
	if t.New != nil {
		payload = t.New
	}
	for _, fn := range ons {
		fn(payload, key)
	}

	if len(subs) == 0 {
		return
	}

	changed := DiffFields(t.Old, t.New)
	for _, sub := range subs {
		fields := changed
		if !sub.opts.ChangeOnly {
			fields = SortedKeys(t.New)
			for _, k := range changed {
				if _, ok := t.New[k]; !ok {
					fields = append(fields, k)
				}
			}
		}
		for _, k := range fields {
			sub.fn(h.resolve(t.New[k]), k)
		}
	}
}

// resolve replaces a Link with the linked node value.
func (h *Hub) resolve(v any) any {
	if l, ok := v.(Link); ok {
		if lv := h.get(l.Path); lv != nil {
			return lv
		}
		return nil
	}
	return v
}

// DiffFields returns the sorted names of fields whose value differs between
// old and new, including fields missing from either side.
func DiffFields(prev, next Value) []string {
	var keys []string
	for k, nv := range next {
		if pv, ok := prev[k]; !ok || !reflect.DeepEqual(pv, nv) {
			keys = append(keys, k)
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// SortedKeys returns the field names of v in lexical order.
func SortedKeys(v Value) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
