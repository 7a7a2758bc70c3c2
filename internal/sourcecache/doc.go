// SPDX-License-Identifier: MPL-2.0

// Package sourcecache fetches package sources into a content-addressed
// directory and unpacks them into build directories.
//
// Sources are stored as <root>/sha256/<hex digest>. A download is written to
// a temporary file, hashed while it streams, and only renamed into place when
// the digest matches the source key, so the cache never holds a file under
// the wrong key.
package sourcecache
