// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by hit's tests: environment and
// working directory changes with cleanup (MustSetenv, MustChdir, SetHomeDir),
// fixture files (WriteFile, ReadFile, SourceKey) and a controllable clock
// (FakeClock).
package testutil
