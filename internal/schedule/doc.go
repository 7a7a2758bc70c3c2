// SPDX-License-Identifier: MPL-2.0

// Package schedule tracks the build state of every package in a profile and
// derives the ready set: the unbuilt packages whose dependencies are all
// built.
//
// Each package moves through Unresolved, Ready, Building and then Built or
// Failed. Refresh recomputes every state that is not in flight from the
// committed store state, so a single publish can unlock many dependents at
// once.
package schedule
