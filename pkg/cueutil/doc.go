// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides shared CUE validation utilities.
//
// Both hit input formats go through the same three steps:
//
//  1. Compile the embedded schema
//  2. Compile (or encode) the user data and unify it with the schema
//  3. Validate and decode into a Go struct
//
// CUE sources (config.cue) use ParseAndDecode. Documents that arrive in another
// syntax (profile YAML decoded by gopkg.in/yaml.v3) use DecodeValue, which
// encodes the already-decoded Go value into CUE before unification.
//
// # Usage
//
//	//go:embed profile_schema.cue
//	var schemaBytes []byte
//
//	result, err := cueutil.DecodeValue[document](
//	    schemaBytes,
//	    raw,
//	    "#Profile",
//	    cueutil.WithFilename("default.yaml"),
//	)
//	if err != nil {
//	    return nil, err // error includes the CUE path of the offending field
//	}
//	return result.Value, nil
package cueutil
