// SPDX-License-Identifier: MPL-2.0

package profile

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the sentinel error wrapped by ConfigurationError.
var ErrConfiguration = errors.New("invalid profile configuration")

// ConfigurationError reports a profile that cannot be used to build anything:
// a malformed file, a bad file name, an unknown dependency or a cycle.
// It is always raised before any build starts.
type ConfigurationError struct {
	Path    string
	Package string
	Err     error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	switch {
	case e.Package != "":
		return fmt.Sprintf("%s: package %q: %v", e.Path, e.Package, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	default:
		return e.Err.Error()
	}
}

// Unwrap exposes both ErrConfiguration and the underlying cause, so callers
// can match the sentinel or extract e.g. a *dag.CycleError.
func (e *ConfigurationError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

func configErr(path, pkg string, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Path: path, Package: pkg, Err: fmt.Errorf(format, args...)}
}
