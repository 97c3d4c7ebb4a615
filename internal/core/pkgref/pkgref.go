// Package pkgref defines the identifier of a watchable package instance.
package pkgref

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidIdentifier is returned when a package identifier cannot be split
// into a name and a version.
var ErrInvalidIdentifier = errors.New("invalid package identifier")

// Ref identifies one package version. The canonical string form is name@version.
type Ref struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// New builds a Ref from its parts, validating both.
func New(name, version string) (Ref, error) {
	return Parse(name + "@" + version)
}

// Parse splits id into name and version.
func Parse(id string) (Ref, error) {
	name, version, ok := strings.Cut(id, "@")
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q has no version", ErrInvalidIdentifier, id)
	}

	if name == "" || version == "" {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}

	if strings.Contains(version, "@") {
		return Ref{}, fmt.Errorf("%w: %q has more than one version separator", ErrInvalidIdentifier, id)
	}

	// name and version become graph path segments
	if strings.ContainsAny(name, "/ ") || strings.ContainsAny(version, "/ ") {
		return Ref{}, fmt.Errorf("%w: %q contains a path separator or space", ErrInvalidIdentifier, id)
	}

	return Ref{Name: name, Version: version}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(id string) Ref {
	ref, err := Parse(id)
	if err != nil {
		panic(err)
	}
	return ref
}

// ParseMany parses every id. Bad entries are skipped and reported together in
// the returned error; the good ones are returned in input order.
func ParseMany(ids []string) ([]Ref, error) {
	refs := make([]Ref, 0, len(ids))
	var errs []error
	for _, id := range ids {
		ref, err := Parse(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs, errors.Join(errs...)
}

// String returns name@version.
func (r Ref) String() string {
	return r.Name + "@" + r.Version
}

// IsZero reports whether r is the zero Ref.
func (r Ref) IsZero() bool {
	return r.Name == "" && r.Version == ""
}

// DataPath is the graph node listing the items of this package version.
func (r Ref) DataPath() string {
	return "pkg/" + r.Name + "/data/" + r.Version
}

// ItemPath is the graph node of item id within this package version.
func (r Ref) ItemPath(id string) string {
	return r.DataPath() + "/" + id
}
