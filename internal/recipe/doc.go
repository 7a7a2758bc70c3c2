// SPDX-License-Identifier: MPL-2.0

// Package recipe renders and runs build recipes.
//
// A recipe is the shell text of a package's build field. RenderScript turns
// it into a standalone POSIX script with the static exports prepended, and
// Environ computes the full environment a recipe runs with. Runners execute
// a Job: VirtualRunner interprets the script in-process with mvdan/sh,
// NativeRunner hands it to the host's /bin/sh, and ComposeRunner realizes a
// profile by linking its dependency artifacts together. Mux picks a runner by
// the kind of the build spec.
package recipe
