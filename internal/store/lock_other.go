// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package store

import "errors"

// errFlockUnavailable tells the caller to rely on the in-process mutex alone.
var errFlockUnavailable = errors.New("flock not available on this platform")

// fileLock is the non-Linux stub.
type fileLock struct{}

func acquireFileLock(string) (*fileLock, error) {
	return nil, errFlockUnavailable
}

// Release is a no-op on non-Linux platforms.
func (l *fileLock) Release() {}
