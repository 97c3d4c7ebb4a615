// Package validate provides shared validation functions for names that end up
// as graph path segments.
package validate

import (
	"fmt"
	"strings"

	"github.com/hay-kot/criterio"
)

// Segment validates that s can be used as a single path segment: non-empty
// after trimming whitespace and free of '/'.
func Segment(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.Contains(s, "/") {
		return fmt.Errorf("name cannot contain '/'")
	}
	return nil
}

// Topic validates a topic name.
func Topic(name string) error {
	if err := Segment(name); err != nil {
		return fmt.Errorf("invalid topic %q: %w", name, err)
	}
	return nil
}

// User validates a profile user name. Empty names are allowed and mean no
// profile.
func User(name string) error {
	if name == "" {
		return nil
	}
	if err := Segment(name); err != nil {
		return fmt.Errorf("invalid user name %q: %w", name, err)
	}
	return nil
}

// MarkerID validates the id of a marker record.
func MarkerID(id string) error {
	if err := Segment(id); err != nil {
		return fmt.Errorf("invalid marker id %q: %w", id, err)
	}
	return nil
}

// TopicsField returns a criterio validator for a list of topics.
func TopicsField(field string, topics []string) error {
	var errs criterio.FieldErrorsBuilder
	for i, topic := range topics {
		if err := Topic(topic); err != nil {
			errs = errs.Append(fmt.Sprintf("%s[%d]", field, i), err)
		}
	}
	return errs.ToError()
}

// UserField returns a criterio validator for a user name.
func UserField(field, name string) error {
	return criterio.Run(field, name, User)
}
