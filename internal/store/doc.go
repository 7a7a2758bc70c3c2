// SPDX-License-Identifier: MPL-2.0

// Package store is the content-addressed artifact store.
//
// Layout under the artifact root:
//
//	<name>/<hash>/                       published artifact
//	<name>/<hash>/_hit/artifact.toml     completion marker and metadata
//	<name>/.staging-<hash>-<uuid>/       in-flight install target
//	<name>/.corrupt-<hash>-<uuid>/       quarantined incomplete artifact
//	<name>/.<hash>.lock                  cross-process build lock
//
// An artifact is published by renaming a fully populated staging directory,
// marker included, to its final path; the rename is the commit point. A
// final directory without a marker is never trusted: it is reported as a
// *CorruptionError, moved aside and rebuilt. Private build directories live
// under the build root and are retained according to a KeepPolicy.
package store
