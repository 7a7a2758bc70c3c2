// SPDX-License-Identifier: MPL-2.0

// Package benchmark holds the benchmarks used for PGO profile generation.
// They cover the hot paths of a build:
//   - profile parsing and CUE schema validation
//   - build spec derivation and hashing
//   - recipe execution in the virtual runtime
//   - an end-to-end profile build against a temporary store
//
// To generate a PGO profile, run:
//
//	go test -run '^$' -bench . -cpuprofile default.pgo ./internal/benchmark
package benchmark
