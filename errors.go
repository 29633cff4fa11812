package blkreader

import "errors"

// Error kinds surfaced by read operations. Callers match them with errors.Is;
// the wrapped error carries the underlying cause. None of these are retried
// internally. A short read is not an error unless Options.ReadExact is set.
var (
	// ErrExtentQuery means the file's extent layout could not be enumerated,
	// for example because the filesystem does not support extent mapping.
	ErrExtentQuery = errors.New("extent query failed")

	// ErrDeviceResolution means no block device could be identified for the
	// file's filesystem.
	ErrDeviceResolution = errors.New("block device resolution failed")

	// ErrDeviceOpen means the resolved block device node could not be opened,
	// typically permission denied or a missing node. Failed opens are never
	// cached.
	ErrDeviceOpen = errors.New("block device open failed")

	// ErrAlignment means a device-level read was requested with an offset or
	// length that is not a multiple of the device I/O granularity. The read
	// is rejected before any bytes are transferred.
	ErrAlignment = errors.New("unaligned device read")

	// ErrDeviceRead means a positioned read on the block device failed.
	// Distinct from a short read, which is reported via ReadState.BytesRead.
	ErrDeviceRead = errors.New("block device read failed")

	// ErrShortRead is returned when Options.ReadExact is set and fewer bytes
	// than requested were produced.
	ErrShortRead = errors.New("short read")
)
