package common

import (
	"errors"
	"fmt"
)

const (
	major = 0
	minor = 1
	patch = 0

	// Versions from which an existing store can be opened without migration.
	// These should be used in a group (so prevMinor can be equal to minor if there are
	// any migration routines.
	prevMajor = 0
	prevMinor = 1
	prevPatch = 0

	Version = major*1_000_000 + minor*1_000 + patch

	PrevVersion = prevMajor*1_000_000 + prevMinor*1_000 + prevPatch
)

var (
	// ErrVersionMismatch is returned by CheckVersion in case of error.
	ErrVersionMismatch = errors.New("store version mismatch")
)

// CheckVersion checks that the store layout version is in [PrevVersion; Version]
// range, so the store can be served by the current code.
func CheckVersion(from uint64) error {
	if from < PrevVersion {
		return fmt.Errorf("%w: expected >=%d, got %d", ErrVersionMismatch, PrevVersion, from)
	}
	if from > Version {
		return fmt.Errorf("%w: store is newer than %d (%d)", ErrVersionMismatch, Version, from)
	}
	return nil
}

// VersionString returns dot-separated form of the encoded version.
func VersionString(v uint64) string {
	return fmt.Sprintf("%d.%d.%d", v/1_000_000, v/1_000%1_000, v%1_000)
}
