// SPDX-License-Identifier: MPL-2.0

// Package profile loads hit profile files.
//
// A profile is a YAML document listing packages, their sources, their
// dependencies and their build recipes. Load decodes the YAML, validates it
// against the embedded #Profile CUE schema and then checks the cross-package
// rules the schema cannot express: unique names, known dependencies and an
// acyclic dependency graph. Every such failure is a *ConfigurationError.
package profile
