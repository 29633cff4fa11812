package blkreader

// Options controls how a read is planned and executed. The zero value is not
// the default configuration; use DefaultOptions or the With* builders.
type Options struct {
	// EnableCache shares block device handles process-wide, keyed by the
	// device ID of the filesystem the file lives on.
	EnableCache bool

	// FillHoles zero-fills hole regions instead of stopping the read at the
	// first hole (early end-of-data).
	FillHoles bool

	// ZeroUnwritten zero-fills unwritten (preallocated) extents instead of
	// reading the raw bytes at their physical location. Off by default:
	// reading the raw bytes back is the point of this package.
	ZeroUnwritten bool

	// AllowFallback permits serving the read with ordinary file I/O when the
	// requested range is fully covered by normal written extents. This avoids
	// the need for elevated privileges in the common fully-written case.
	AllowFallback bool

	// ReadExact turns a short result into an error, mirroring io.ReadFull
	// semantics. When unset, partial reads are returned as successes.
	ReadExact bool

	// DryRun resolves and validates extents but performs no device or file
	// I/O; the result reports the byte count a real run would produce.
	DryRun bool
}

// DefaultOptions returns the conservative raw-recovery defaults: caching on,
// everything else off.
func DefaultOptions() Options {
	return Options{EnableCache: true}
}

// WithCache returns a copy with the device handle cache enabled or disabled.
func (o Options) WithCache(enable bool) Options {
	o.EnableCache = enable
	return o
}

// WithFillHoles returns a copy with hole zero-filling enabled or disabled.
func (o Options) WithFillHoles(fill bool) Options {
	o.FillHoles = fill
	return o
}

// WithZeroUnwritten returns a copy that zero-fills unwritten extents instead
// of reading their raw device bytes.
func (o Options) WithZeroUnwritten(zero bool) Options {
	o.ZeroUnwritten = zero
	return o
}

// WithAllowFallback returns a copy that permits regular file I/O when safe.
func (o Options) WithAllowFallback(allow bool) Options {
	o.AllowFallback = allow
	return o
}

// WithReadExact returns a copy that fails reads shorter than the buffer.
func (o Options) WithReadExact(exact bool) Options {
	o.ReadExact = exact
	return o
}

// WithDryRun returns a copy with dry run mode enabled or disabled.
func (o Options) WithDryRun(dry bool) Options {
	o.DryRun = dry
	return o
}
