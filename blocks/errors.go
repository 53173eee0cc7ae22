package blocks

import "github.com/pkg/errors"

var (
	// ErrNotTrusted is returned when the directory or the requested partition is not currently valid.
	ErrNotTrusted = errors.New("partition is not trusted")

	// ErrUnknownPartition is returned for partition identifiers outside of the Home Record.
	ErrUnknownPartition = errors.New("unknown partition")

	// ErrOutOfRange is returned when an index or offset lies beyond the partition bounds.
	ErrOutOfRange = errors.New("out of range")

	// ErrDataError is returned when the caller violates a record layout precondition.
	ErrDataError = errors.New("data error")

	// ErrNotFound is returned by scans which did not find a matching slot.
	ErrNotFound = errors.New("not found")
)
