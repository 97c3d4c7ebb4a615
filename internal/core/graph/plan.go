package graph

import (
	"fmt"
	"maps"
	"reflect"
)

// Transition is the change of one node caused by a write.
type Transition struct {
	Path string
	Old  Value
	New  Value
}

// Getter reads the current value of a node.
type Getter func(path string) Value

// Plan computes the transitions a Put of v at path produces against the
// current state read through get. Nested maps in v become child nodes,
// ancestors gain Link fields to the written node, and nulling a Link field
// tombstones the linked child. The written node comes first, ancestors last.
func Plan(get Getter, path string, v Value) ([]Transition, error) {
	if !ValidPath(path) {
		return nil, fmt.Errorf("invalid path %q", path)
	}

	p := &planner{get: get, pending: map[string]int{}}
	if err := p.put(path, v); err != nil {
		return nil, err
	}
	p.link(path)

	out := p.out[:0]
	for _, t := range p.out {
		if !Equal(t.Old, t.New) {
			out = append(out, t)
		}
	}
	return out, nil
}

type planner struct {
	get     Getter
	out     []Transition
	pending map[string]int
}

func (p *planner) current(path string) Value {
	if i, ok := p.pending[path]; ok {
		return p.out[i].New
	}
	return p.get(path)
}

func (p *planner) set(path string, v Value) {
	if i, ok := p.pending[path]; ok {
		p.out[i].New = v
		return
	}
	p.pending[path] = len(p.out)
	p.out = append(p.out, Transition{Path: path, Old: p.get(path), New: v})
}

func (p *planner) put(path string, v Value) error {
	old := p.current(path)

	if v == nil {
		p.set(path, nil)
		if parent, key, ok := Parent(path); ok {
			if pv := p.current(parent); pv != nil {
				if _, has := pv[key]; has {
					next := maps.Clone(pv)
					next[key] = nil
					p.set(parent, next)
				}
			}
		}
		return nil
	}

	next := maps.Clone(old)
	if next == nil {
		next = Value{}
	}

	// reserve the slot so the node precedes its children in the output
	p.set(path, next)

	for field, val := range v {
		if field == "" {
			return fmt.Errorf("empty field name at %q", path)
		}
		child := Join(path, field)

		switch val := val.(type) {
		case map[string]any:
			if err := p.put(child, val); err != nil {
				return err
			}
			next[field] = Link{Path: child}
		case Link:
			next[field] = val
		case nil:
			if l, ok := next[field].(Link); ok && l.Path == child {
				p.set(child, nil)
			}
			next[field] = nil
		default:
			next[field] = val
		}
	}

	p.set(path, next)
	return nil
}

// link makes every ancestor of path reference it.
func (p *planner) link(path string) {
	for {
		parent, key, ok := Parent(path)
		if !ok {
			return
		}

		pv := p.current(parent)
		want := Link{Path: path}
		if l, ok := pv[key].(Link); ok && l == want {
			return
		}

		// a tombstoned child stays unlinked
		if p.current(path) == nil {
			return
		}

		next := maps.Clone(pv)
		if next == nil {
			next = Value{}
		}
		next[key] = want
		p.set(parent, next)
		path = parent
	}
}

// Equal reports whether two node values hold the same fields.
func Equal(a, b Value) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return reflect.DeepEqual(a, b)
}
