// SPDX-License-Identifier: MPL-2.0

// Package buildspec derives content-addressed identities for builds.
//
// A BuildSpec is the canonical document of everything that goes into a
// build: the recipe text, the content keys of the sources, the artifact IDs
// of the dependencies and the parameters. The document is put into canonical
// order, serialized as JSON and hashed; the hash names the artifact. Two
// packages with the same inputs therefore share an artifact, and any change
// to an input yields a new one.
package buildspec
