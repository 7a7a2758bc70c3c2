// SPDX-License-Identifier: MPL-2.0

// Package config handles hit configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/hit/config.cue (or the XDG equivalent on Linux,
// ~/Library/Application Support/hit/config.cue on macOS, %APPDATA%\hit\config.cue on
// Windows), validated against the embedded CUE schema (config_schema.cue), and overlaid
// with HIT_-prefixed environment variables such as HIT_BUILD_JOBS.
package config
