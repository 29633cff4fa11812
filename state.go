package blkreader

// ReadState reports what a read operation actually did. It is constructed
// once per call and returned by value semantics; callers may inspect or
// persist the extent list themselves.
type ReadState struct {
	// BlockDevicePath is the resolved device node the read went through.
	// Empty when the read was served by fallback file I/O or produced no
	// device access at all.
	BlockDevicePath string

	// Extents is the extent list the read was planned against, returned
	// verbatim.
	Extents []Extent

	// BytesRead is the total number of bytes written into the destination
	// buffer. It may be less than the buffer length when the read stopped at
	// a hole or hit a genuine short read; that is not an error.
	BytesRead int

	// UsedFallback is true iff the read was served by ordinary file I/O
	// instead of direct block device access.
	UsedFallback bool
}
