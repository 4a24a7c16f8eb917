package common

import "fmt"

const (
	major = 1
	minor = 1
	patch = 0

	// Versions from which an upgrade should be performed.
	// These should be used in a group (so prevMinor can be equal to minor if there are
	// any migration routines.
	prevMajor = 1
	prevMinor = 0
	prevPatch = 0

	Version = major*1_000_000 + minor*1_000 + patch

	PrevVersion = prevMajor*1_000_000 + prevMinor*1_000 + prevPatch
)

var (
	// ErrVersionMismatch is returned by CheckVersion in case of error.
	ErrVersionMismatch = NewError(ErrConfiguration, "previous version mismatch")

	// ErrAlreadyUpdated is returned by CheckVersion if current version equals
	// to version implementation is being upgraded from.
	ErrAlreadyUpdated = NewError(ErrConfiguration, "implementation is already of the latest version")
)

// CheckVersion checks that previous version is more than PrevVersion to ensure
// migrating data was done successfully.
func CheckVersion(from int) error {
	if from < PrevVersion {
		return fmt.Errorf("%w: expected >=%d, got %d", ErrVersionMismatch, PrevVersion, from)
	}
	if from == Version {
		return fmt.Errorf("%w: %d", ErrAlreadyUpdated, Version)
	}
	return nil
}

// AppendVersion appends given implementation version to the list of
// deployment arguments.
func AppendVersion(data []any, version int) []any {
	return append(data, version)
}

// VersionFromData extracts version appended by AppendVersion.
func VersionFromData(data []any) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: missing version argument", ErrVersionMismatch)
	}
	v, ok := data[len(data)-1].(int)
	if !ok {
		return 0, fmt.Errorf("%w: version argument is %T", ErrVersionMismatch, data[len(data)-1])
	}
	return v, nil
}
