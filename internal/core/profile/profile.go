// Package profile manages the per-user records kept in the graph: installed
// packages, topic subscriptions and the user's own marker. Installing a
// package or subscribing to a topic also drives the user's feed.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/colonyops/lxfeed/internal/core/graph"
	"github.com/colonyops/lxfeed/internal/core/item"
	"github.com/colonyops/lxfeed/internal/core/logging"
	"github.com/colonyops/lxfeed/internal/core/pkgref"
	"github.com/colonyops/lxfeed/internal/core/validate"
	"github.com/rs/zerolog"
)

// ErrNoUser is returned when a profile is opened without a user name.
var ErrNoUser = errors.New("profile requires a user name")

// MarkerRoot is the node holding marker records, keyed by marker id.
const MarkerRoot = "itm"

// Subscriber is the part of the feed a profile drives.
type Subscriber interface {
	AddOnePackage(id string) error
	AddManyPackages(ids []string) error
	RemoveOnePackage(id string) error
	AddOneTopic(name string) error
	RemoveOneTopic(name string) error
}

// Profile is the record of one user.
type Profile struct {
	store graph.Adapter
	feed  Subscriber
	user  string
	log   zerolog.Logger
}

// New opens the profile of user. feed may be nil when only the stored
// records are needed.
func New(store graph.Adapter, feed Subscriber, user string) (*Profile, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, ErrNoUser
	}
	if err := validate.User(user); err != nil {
		return nil, err
	}

	return &Profile{
		store: store,
		feed:  feed,
		user:  user,
		log: logging.Component("profile").With().
			Str("user", user).
			Str("prefix", logging.UserPrefix(user)).
			Logger(),
	}, nil
}

// User returns the user name.
func (p *Profile) User() string { return p.user }

// Path returns the profile node path.
func (p *Profile) Path() string { return graph.Join("usr", p.user) }

// LogPrefix returns the padded prefix identifying this user in logs.
func (p *Profile) LogPrefix() string { return logging.UserPrefix(p.user) }

func (p *Profile) packagesPath() string { return graph.Join(p.Path(), "packages") }

func (p *Profile) topicsPath() string { return graph.Join(p.Path(), "topics") }

// ListPackages returns the installed packages in lexical order. Entries whose
// version is not a string are nullified.
func (p *Profile) ListPackages(ctx context.Context) ([]pkgref.Ref, error) {
	v, err := p.store.Once(ctx, p.packagesPath())
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}

	var (
		out []pkgref.Ref
		bad = graph.Value{}
	)
	for _, name := range graph.SortedKeys(v) {
		raw := v[name]
		if name == item.MetaKey || raw == nil {
			continue
		}

		version, ok := raw.(string)
		if !ok {
			p.log.Warn().Str("package", name).Interface("value", raw).Msg("nullifying non-string package version")
			bad[name] = nil
			continue
		}

		ref, err := pkgref.New(name, version)
		if err != nil {
			p.log.Warn().Err(err).Str("package", name).Msg("skipping installed package")
			continue
		}
		out = append(out, ref)
	}

	if len(bad) > 0 {
		if err := p.store.Put(ctx, p.packagesPath(), bad); err != nil {
			return out, fmt.Errorf("nullify packages: %w", err)
		}
	}

	return out, nil
}

// Restore adds every installed package to the feed.
func (p *Profile) Restore(ctx context.Context) ([]pkgref.Ref, error) {
	refs, err := p.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	p.log.Info().Int("packages", len(refs)).Msg("found packages")

	if p.feed == nil || len(refs) == 0 {
		return refs, nil
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.String()
	}
	return refs, p.feed.AddManyPackages(ids)
}

// Install records ref as installed and starts watching it. Reports whether
// the record changed. Installing another version of an installed package
// replaces it.
func (p *Profile) Install(ctx context.Context, ref pkgref.Ref) (bool, error) {
	if ref.IsZero() {
		return false, pkgref.ErrInvalidIdentifier
	}

	v, err := p.store.Once(ctx, p.packagesPath())
	if err != nil {
		return false, fmt.Errorf("install %s: %w", ref, err)
	}

	current, _ := v[ref.Name].(string)
	saved := current != ref.Version
	if saved {
		if err := p.store.Put(ctx, p.packagesPath(), graph.Value{ref.Name: ref.Version}); err != nil {
			return false, fmt.Errorf("install %s: %w", ref, err)
		}
		p.log.Info().Str("package", ref.String()).Msg("installed package")
	} else {
		p.log.Debug().Str("package", ref.String()).Msg("already installed")
	}

	if p.feed != nil {
		if current != "" && saved {
			if err := p.feed.RemoveOnePackage(ref.Name + "@" + current); err != nil {
				return saved, err
			}
		}
		if err := p.feed.AddOnePackage(ref.String()); err != nil {
			return saved, err
		}
	}
	return saved, nil
}

// Uninstall removes the installed record of the package named name and stops
// watching it. Reports whether a record was removed.
func (p *Profile) Uninstall(ctx context.Context, name string) (bool, error) {
	v, err := p.store.Once(ctx, p.packagesPath())
	if err != nil {
		return false, fmt.Errorf("uninstall %s: %w", name, err)
	}

	version, ok := v[name].(string)
	if !ok {
		return false, nil
	}

	if err := p.store.Put(ctx, p.packagesPath(), graph.Value{name: nil}); err != nil {
		return false, fmt.Errorf("uninstall %s: %w", name, err)
	}
	p.log.Info().Str("package", name).Msg("uninstalled package")

	if p.feed != nil {
		if err := p.feed.RemoveOnePackage(name + "@" + version); err != nil {
			return true, err
		}
	}
	return true, nil
}

// ListTopics returns the subscribed topics in lexical order.
func (p *Profile) ListTopics(ctx context.Context) ([]string, error) {
	v, err := p.store.Once(ctx, p.topicsPath())
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}

	var out []string
	for _, topic := range graph.SortedKeys(v) {
		if on, _ := v[topic].(bool); on && topic != item.MetaKey {
			out = append(out, topic)
		}
	}
	return out, nil
}

// Subscribe records the topic subscription and raises the feed topic flag.
func (p *Profile) Subscribe(ctx context.Context, topic string) error {
	return p.setTopic(ctx, topic, true)
}

// Unsubscribe clears the topic subscription and lowers the feed topic flag.
func (p *Profile) Unsubscribe(ctx context.Context, topic string) error {
	return p.setTopic(ctx, topic, false)
}

func (p *Profile) setTopic(ctx context.Context, topic string, on bool) error {
	topic = strings.TrimSpace(topic)
	if err := validate.Topic(topic); err != nil {
		return err
	}

	if err := p.store.Put(ctx, p.topicsPath(), graph.Value{topic: on}); err != nil {
		return fmt.Errorf("set topic %s: %w", topic, err)
	}

	if on {
		p.log.Info().Str("topic", topic).Msg("subscribe to topic")
	} else {
		p.log.Info().Str("topic", topic).Msg("unsubscribe from topic")
	}

	if p.feed == nil {
		return nil
	}
	if on {
		return p.feed.AddOneTopic(topic)
	}
	return p.feed.RemoveOneTopic(topic)
}

// Marker returns the id and record of the user's marker. ok is false when no
// marker is set. A malformed marker reference is cleared.
func (p *Profile) Marker(ctx context.Context) (id string, record graph.Value, ok bool, err error) {
	v, err := p.store.Once(ctx, p.Path())
	if err != nil {
		return "", nil, false, fmt.Errorf("get marker: %w", err)
	}

	raw := v["marker"]
	if raw == nil {
		return "", nil, false, nil
	}

	id, isString := raw.(string)
	if !isString || id == "" {
		p.log.Warn().Interface("marker", raw).Msg("clearing invalid marker format")
		if err := p.store.Put(ctx, p.Path(), graph.Value{"marker": nil}); err != nil {
			return "", nil, false, fmt.Errorf("clear marker: %w", err)
		}
		return "", nil, false, nil
	}

	record, err = p.store.Once(ctx, graph.Join(MarkerRoot, id))
	if err != nil {
		return id, nil, true, fmt.Errorf("get marker %s: %w", id, err)
	}
	return id, record, true, nil
}

// SetMarker points the profile at the marker record id, writing data to the
// record when it is non-nil.
func (p *Profile) SetMarker(ctx context.Context, id string, data graph.Value) error {
	if err := validate.MarkerID(id); err != nil {
		return err
	}

	if data != nil {
		if err := p.store.Put(ctx, graph.Join(MarkerRoot, id), data); err != nil {
			return fmt.Errorf("set marker %s: %w", id, err)
		}
	}
	if err := p.store.Put(ctx, p.Path(), graph.Value{"marker": id}); err != nil {
		return fmt.Errorf("set marker %s: %w", id, err)
	}
	p.log.Debug().Str("marker", id).Msg("set marker")
	return nil
}

// ClearMarker removes the marker reference and tombstones its record.
func (p *Profile) ClearMarker(ctx context.Context) error {
	v, err := p.store.Once(ctx, p.Path())
	if err != nil {
		return fmt.Errorf("clear marker: %w", err)
	}

	raw := v["marker"]
	if raw == nil {
		return nil
	}

	if err := p.store.Put(ctx, p.Path(), graph.Value{"marker": nil}); err != nil {
		return fmt.Errorf("clear marker: %w", err)
	}
	if id, ok := raw.(string); ok && id != "" {
		if err := p.store.Put(ctx, graph.Join(MarkerRoot, id), nil); err != nil {
			return fmt.Errorf("clear marker %s: %w", id, err)
		}
	}
	p.log.Debug().Msg("cleared marker")
	return nil
}
