// SPDX-License-Identifier: MPL-2.0

// Package builder drives the build of a profile: it derives the build spec of
// every package, asks the scheduler for the ready set, builds ready packages
// through the artifact store, and finally composes the profile.
package builder
