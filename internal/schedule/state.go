// SPDX-License-Identifier: MPL-2.0

package schedule

import (
	"errors"
	"fmt"
)

// State is the build state of one package.
type State int

const (
	// Unresolved packages have at least one dependency that is not built.
	Unresolved State = iota
	// Ready packages are unbuilt and every dependency is built.
	Ready
	// Building packages have a build in flight.
	Building
	// Built packages have a published artifact.
	Built
	// Failed packages failed to build; they stay failed until Reset.
	Failed
)

// ErrInvalidTransition is the sentinel error wrapped by TransitionError.
var ErrInvalidTransition = errors.New("invalid state transition")

// TransitionError reports a rejected state change.
type TransitionError struct {
	Package string
	From    State
	To      State
	// Current is the state the package was actually in.
	Current State
}

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Ready:
		return "ready"
	case Building:
		return "building"
	case Built:
		return "built"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	if e.Current != e.From {
		return fmt.Sprintf("package %q: cannot move %s -> %s, it is %s", e.Package, e.From, e.To, e.Current)
	}
	return fmt.Sprintf("package %q: transition %s -> %s is not allowed", e.Package, e.From, e.To)
}

// Unwrap returns ErrInvalidTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Allowed reports whether a package may move from one state to another.
func Allowed(from, to State) bool {
	switch from {
	case Unresolved:
		return to == Ready || to == Built
	case Ready:
		return to == Building || to == Unresolved || to == Built
	case Building:
		return to == Built || to == Failed
	case Failed:
		return to == Unresolved
	default:
		return false
	}
}
