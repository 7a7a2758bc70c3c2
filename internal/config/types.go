// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// RuntimeNative runs recipes with the host /bin/sh.
	RuntimeNative RuntimeMode = "native"
	// RuntimeVirtual runs recipes in the embedded mvdan/sh interpreter.
	RuntimeVirtual RuntimeMode = "virtual"

	// KeepNever removes build directories after every build.
	KeepNever KeepPolicy = "never"
	// KeepError keeps build directories of failed builds.
	KeepError KeepPolicy = "error"
	// KeepAlways keeps every build directory.
	KeepAlways KeepPolicy = "always"

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// LogLevelDebug logs everything, including each recipe command.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs build progress.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs errors only.
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidRuntimeMode is returned when a RuntimeMode value is not recognized.
	ErrInvalidRuntimeMode = errors.New("invalid runtime mode")
	// ErrInvalidKeepPolicy is returned when a KeepPolicy value is not recognized.
	ErrInvalidKeepPolicy = errors.New("invalid keep policy")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidDirPath is returned when a DirPath is empty or whitespace-only.
	ErrInvalidDirPath = errors.New("invalid directory path")
	// ErrInvalidTimeout is returned when a Timeout does not parse as a duration.
	ErrInvalidTimeout = errors.New("invalid timeout")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// RuntimeMode selects the recipe runner for packages.
	// Defined locally to avoid coupling config to internal/recipe.
	RuntimeMode string

	// KeepPolicy selects build directory retention.
	// Defined locally to avoid coupling config to internal/store; the
	// composition root converts it with store.ParseKeepPolicy.
	KeepPolicy string

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// LogLevel is the minimum level of log records written to stderr.
	LogLevel string

	// DirPath is a directory path that may start with "~/".
	DirPath string

	// Timeout is a Go duration string; empty means no limit.
	Timeout string

	// InvalidValueError is returned when a typed value is not recognized.
	// It wraps the sentinel of its type for errors.Is() compatibility.
	InvalidValueError struct {
		Field    string
		Value    string
		Valid    string
		sentinel error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		Store StoreConfig `json:"store" mapstructure:"store"`
		Build BuildConfig `json:"build" mapstructure:"build"`
		UI    UIConfig    `json:"ui" mapstructure:"ui"`
		Log   LogConfig   `json:"log" mapstructure:"log"`
	}

	// StoreConfig locates the on-disk state.
	StoreConfig struct {
		// ArtifactRoot holds published artifacts.
		ArtifactRoot DirPath `json:"artifact_root" mapstructure:"artifact_root"`
		// BuildRoot holds private build directories and preserved logs.
		BuildRoot DirPath `json:"build_root" mapstructure:"build_root"`
		// SourceCache holds fetched sources.
		SourceCache DirPath `json:"source_cache" mapstructure:"source_cache"`
	}

	// BuildConfig holds the build defaults that command-line flags override.
	BuildConfig struct {
		// Jobs is the parallelism hint passed to recipes as $JOBS.
		Jobs int `json:"jobs" mapstructure:"jobs"`
		// Keep is the build directory retention policy.
		Keep KeepPolicy `json:"keep" mapstructure:"keep"`
		// Parallel is the number of packages built at once.
		Parallel int `json:"parallel" mapstructure:"parallel"`
		// Runtime selects the recipe runner.
		Runtime RuntimeMode `json:"runtime" mapstructure:"runtime"`
		// Timeout bounds each recipe run.
		Timeout Timeout `json:"timeout" mapstructure:"timeout"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables verbose output
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// LogConfig configures logging.
	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level"`
	}
)

// Error implements the error interface for InvalidValueError.
func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s %q (valid: %s)", e.Field, e.Value, e.Valid)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidValueError) Unwrap() error { return e.sentinel }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// String returns the string representation of the RuntimeMode.
func (m RuntimeMode) String() string { return string(m) }

// IsValid returns whether the RuntimeMode is one of the defined runtime modes,
// and a list of validation errors if it is not.
func (m RuntimeMode) IsValid() (bool, []error) {
	switch m {
	case RuntimeNative, RuntimeVirtual:
		return true, nil
	default:
		return false, []error{&InvalidValueError{Field: "runtime", Value: string(m), Valid: "virtual, native", sentinel: ErrInvalidRuntimeMode}}
	}
}

// String returns the string representation of the KeepPolicy.
func (p KeepPolicy) String() string { return string(p) }

// IsValid returns whether the KeepPolicy is recognized.
func (p KeepPolicy) IsValid() (bool, []error) {
	switch p {
	case KeepNever, KeepError, KeepAlways:
		return true, nil
	default:
		return false, []error{&InvalidValueError{Field: "keep policy", Value: string(p), Valid: "never, error, always", sentinel: ErrInvalidKeepPolicy}}
	}
}

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes,
// and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidValueError{Field: "color scheme", Value: string(cs), Valid: "auto, dark, light", sentinel: ErrInvalidColorScheme}}
	}
}

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is recognized.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidValueError{Field: "log level", Value: string(l), Valid: "debug, info, warn, error", sentinel: ErrInvalidLogLevel}}
	}
}

// String returns the string representation of the DirPath.
func (p DirPath) String() string { return string(p) }

// IsValid returns whether the DirPath is non-empty.
func (p DirPath) IsValid() (bool, []error) {
	if strings.TrimSpace(string(p)) == "" {
		return false, []error{&InvalidValueError{Field: "directory path", Value: string(p), Valid: "a non-empty path", sentinel: ErrInvalidDirPath}}
	}
	return true, nil
}

// Expand resolves a leading "~" against home.
func (p DirPath) Expand(home string) string {
	s := string(p)
	if s == "~" {
		return home
	}
	if rest, ok := strings.CutPrefix(s, "~/"); ok {
		return filepath.Join(home, filepath.FromSlash(rest))
	}
	return s
}

// Duration parses the timeout; the zero value means no limit.
func (t Timeout) Duration() (time.Duration, error) {
	if t == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(string(t))
	if err != nil || d < 0 {
		return 0, &InvalidValueError{Field: "timeout", Value: string(t), Valid: `a non-negative duration such as "30m"`, sentinel: ErrInvalidTimeout}
	}
	return d, nil
}

// String returns the duration string, empty when there is no limit.
func (t Timeout) String() string { return string(t) }

// IsValid returns whether the Timeout parses.
func (t Timeout) IsValid() (bool, []error) {
	if _, err := t.Duration(); err != nil {
		return false, []error{err}
	}
	return true, nil
}

// IsValid returns whether the Config has valid fields, collecting every
// field error.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	for _, v := range []interface{ IsValid() (bool, []error) }{
		c.Store.ArtifactRoot, c.Store.BuildRoot, c.Store.SourceCache,
		c.Build.Keep, c.Build.Runtime, c.Build.Timeout,
		c.UI.ColorScheme, c.Log.Level,
	} {
		if valid, fieldErrs := v.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if c.Build.Jobs < 1 {
		errs = append(errs, fmt.Errorf("build.jobs must be at least 1, got %d", c.Build.Jobs))
	}
	if c.Build.Parallel < 1 {
		errs = append(errs, fmt.Errorf("build.parallel must be at least 1, got %d", c.Build.Parallel))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			ArtifactRoot: "~/.hit/bld",
			BuildRoot:    "~/.hit/tmp",
			SourceCache:  "~/.hit/src",
		},
		Build: BuildConfig{
			Jobs:     1,
			Keep:     KeepNever,
			Parallel: 1,
			Runtime:  RuntimeVirtual,
			Timeout:  "",
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
			Verbose:     false,
		},
		Log: LogConfig{
			Level: LogLevelInfo,
		},
	}
}
