package config

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/colonyops/lxfeed/internal/core/pkgref"
	"github.com/colonyops/lxfeed/internal/core/validate"
	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration including
// package identifiers, allow patterns, and file accessibility. The configPath
// argument specifies the config file location to validate (empty string skips
// config file check). This calls Validate() first for basic structural
// validation, then adds I/O checks.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		c.validateFileAccess(configPath),
		c.validateAllow(),
		c.validatePackages(),
		validate.TopicsField("feed.topics", c.Feed.Topics),
		validate.UserField("profile.user", c.Profile.User),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	for i, id := range c.Feed.Packages {
		ref, err := pkgref.Parse(id)
		if err != nil || c.Allowed(ref) {
			continue
		}
		warnings = append(warnings, ValidationWarning{
			Category: "Feed",
			Item:     fmt.Sprintf("packages[%d]", i),
			Message:  fmt.Sprintf("package %s is not matched by any allow pattern and will be ignored", id),
		})
	}

	if c.Store.Driver == DriverMemory {
		warnings = append(warnings, ValidationWarning{
			Category: "Store",
			Message:  "memory store keeps no data between runs",
		})
	}

	return warnings
}

// Allowed reports whether ref matches the allow list. An empty list allows
// every package.
func (c *Config) Allowed(ref pkgref.Ref) bool {
	if len(c.Feed.Allow) == 0 {
		return true
	}
	for _, pattern := range c.Feed.Allow {
		if ok, _ := doublestar.Match(pattern, ref.String()); ok {
			return true
		}
	}
	return false
}

// validateFileAccess checks config file and data directory.
func (c *Config) validateFileAccess(configPath string) error {
	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

func (c *Config) validateAllow() error {
	var errs criterio.FieldErrorsBuilder
	for i, pattern := range c.Feed.Allow {
		if !doublestar.ValidatePattern(pattern) {
			errs = errs.Append(fmt.Sprintf("feed.allow[%d]", i), fmt.Errorf("invalid pattern %q", pattern))
		}
	}
	return errs.ToError()
}

func (c *Config) validatePackages() error {
	var errs criterio.FieldErrorsBuilder
	seen := make(map[string]bool, len(c.Feed.Packages))
	for i, id := range c.Feed.Packages {
		field := fmt.Sprintf("feed.packages[%d]", i)
		if _, err := pkgref.Parse(id); err != nil {
			errs = errs.Append(field, err)
			continue
		}
		if seen[id] {
			errs = errs.Append(field, fmt.Errorf("duplicate package %q", id))
			continue
		}
		seen[id] = true
	}
	return errs.ToError()
}
