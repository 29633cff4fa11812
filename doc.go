// Package blkreader reads file data directly from the underlying block
// device using the file's extent map.
//
// It exists for crash-recovery and data-salvage workflows where storage was
// preallocated (fallocate + fdatasync) and the intended write pattern is
// known, but the filesystem's record of which extents were written may not
// have survived a crash. The file's reported size and holes cannot be
// trusted, yet the physical bytes on disk are real and recoverable: the
// extent map says where they live, and this package reads them back with
// unbuffered positioned reads on the device node.
//
// Usage:
//
//	buf := make([]byte, 4096)
//	n, err := blkreader.ReadAt("/data/journal.wal", buf, 0)
//
//	opts := blkreader.DefaultOptions().WithFillHoles(true)
//	state, err := blkreader.ReadAtOptions("/data/journal.wal", buf, 0, opts)
//
// Direct device reads require the offset and length of each read to be
// multiples of SectorSize, and reading device nodes normally requires root.
// With Options.AllowFallback, ranges fully covered by written extents are
// served with ordinary file I/O instead, which needs no privileges.
//
// Linux only: extent maps come from the FIEMAP ioctl and device nodes are
// resolved through sysfs.
package blkreader
