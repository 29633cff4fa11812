// Package fiemap queries a file's extent layout through the Linux FIEMAP
// ioctl. Results come back in ascending logical order with holes implicit,
// exactly as the kernel reports them.
package fiemap

import (
	"fmt"
	"os"

	fibmap "github.com/rancher/go-fibmap"
)

// batchCount is how many extents are requested per ioctl. Large files fragment
// into thousands of extents, so the walk loops until the range is covered.
const batchCount = 256

// QueryRange returns the extents overlapping [offset, offset+length) of the
// file, in ascending logical order. The first extent may begin before offset
// and the final one may extend past the end of the range; callers clip.
// Filesystems without FIEMAP support return an errno error (ENOTSUP).
func QueryRange(f *os.File, offset, length uint64) ([]fibmap.Extent, error) {
	if length == 0 {
		return nil, nil
	}

	end := offset + length
	start := offset
	var out []fibmap.Extent

	for start < end {
		extents, errno := fibmap.Fiemap(f.Fd(), start, end-start, batchCount)
		if errno != 0 {
			return nil, fmt.Errorf("fiemap ioctl on %s: %w", f.Name(), errno)
		}
		if len(extents) == 0 {
			break
		}
		out = append(out, extents...)

		last := extents[len(extents)-1]
		if last.Flags&fibmap.FIEMAP_EXTENT_LAST != 0 {
			break
		}
		next := last.Logical + last.Length
		if next <= start {
			break
		}
		start = next
	}
	return out, nil
}
