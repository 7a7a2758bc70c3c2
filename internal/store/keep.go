// SPDX-License-Identifier: MPL-2.0

package store

// KeepPolicy decides whether a private build directory survives a build.
// The staging install directory never survives: it is either published or
// removed.
type KeepPolicy string

const (
	// KeepAlways retains the build directory after success and failure.
	KeepAlways KeepPolicy = "always"
	// KeepNever removes the build directory after success and failure.
	KeepNever KeepPolicy = "never"
	// KeepError retains the build directory only when the build failed.
	KeepError KeepPolicy = "error"
)

// ParseKeepPolicy validates a keep policy name.
func ParseKeepPolicy(s string) (KeepPolicy, error) {
	switch p := KeepPolicy(s); p {
	case KeepAlways, KeepNever, KeepError:
		return p, nil
	default:
		return "", &InvalidKeepPolicyError{Value: s}
	}
}

// String implements fmt.Stringer.
func (p KeepPolicy) String() string { return string(p) }

// Retain reports whether a build directory is kept for the given outcome.
// Timeouts and cancellations count as failures.
func (p KeepPolicy) Retain(failed bool) bool {
	switch p {
	case KeepAlways:
		return true
	case KeepError:
		return failed
	default:
		return false
	}
}
