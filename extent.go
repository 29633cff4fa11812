package blkreader

import (
	"fmt"
	"strings"

	fibmap "github.com/rancher/go-fibmap"
)

// ExtentFlags is the FIEMAP flag set attached to an extent.
type ExtentFlags uint32

// Flag values match <linux/fiemap.h> FIEMAP_EXTENT_*.
const (
	// FlagLast marks the final extent of the file.
	FlagLast ExtentFlags = 0x0001
	// FlagUnknown means the data location is unknown; treated as a hole.
	FlagUnknown ExtentFlags = 0x0002
	// FlagDelalloc means allocation is still pending; treated as a hole.
	FlagDelalloc ExtentFlags = 0x0004
	// FlagUnwritten means space is allocated but was never written. The
	// filesystem reports zeros for it, yet the physical bytes may be stale,
	// garbage, or the data this package is trying to recover.
	FlagUnwritten ExtentFlags = 0x0800
)

// IsLast reports whether this is the file's final extent.
func (f ExtentFlags) IsLast() bool { return f&FlagLast != 0 }

// IsUnwritten reports whether the extent is allocated but unwritten.
func (f ExtentFlags) IsUnwritten() bool { return f&FlagUnwritten != 0 }

// IsHoleLike reports whether the extent has no readable physical location.
func (f ExtentFlags) IsHoleLike() bool { return f&(FlagUnknown|FlagDelalloc) != 0 }

func (f ExtentFlags) String() string {
	var names []string
	if f.IsLast() {
		names = append(names, "LAST")
	}
	if f&FlagUnknown != 0 {
		names = append(names, "UNKNOWN")
	}
	if f&FlagDelalloc != 0 {
		names = append(names, "DELALLOC")
	}
	if f.IsUnwritten() {
		names = append(names, "UNWRITTEN")
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, "|")
}

// Extent is one contiguous run of a file's logical address space mapped to a
// contiguous physical region on the block device. Extents in a list are
// disjoint and ordered by Logical; gaps between them are implicit holes.
type Extent struct {
	// Logical is the byte offset of the run within the file.
	Logical uint64
	// Physical is the byte offset of the run on the block device.
	// Meaningless for hole-like extents.
	Physical uint64
	// Length is the run length in bytes.
	Length uint64
	// Flags classifies the extent.
	Flags ExtentFlags
}

func (e Extent) String() string {
	return fmt.Sprintf("logical=0x%x physical=0x%x length=0x%x flags=%s",
		e.Logical, e.Physical, e.Length, e.Flags)
}

// end returns the exclusive logical end of the extent.
func (e Extent) end() uint64 { return e.Logical + e.Length }

// extentsFromFibmap converts raw FIEMAP results into the extent model.
func extentsFromFibmap(raw []fibmap.Extent) []Extent {
	extents := make([]Extent, 0, len(raw))
	for _, r := range raw {
		extents = append(extents, Extent{
			Logical:  r.Logical,
			Physical: r.Physical,
			Length:   r.Length,
			Flags:    ExtentFlags(r.Flags),
		})
	}
	return extents
}

// segmentKind classifies one homogeneous piece of a requested range.
type segmentKind int

const (
	segHole segmentKind = iota
	segUnwritten
	segNormal
)

// segment is a clipped, homogeneous sub-range of a read request. For
// segUnwritten and segNormal, physical is the device offset corresponding to
// the segment start.
type segment struct {
	kind       segmentKind
	start, end uint64 // logical, half-open
	physical   uint64
}

func (s segment) length() uint64 { return s.end - s.start }

// coverRange walks the requested range [offset, offset+length) against the
// extent list and produces an ordered covering of homogeneous segments.
// Gaps between extents and the tail past the last extent come out as holes,
// so the segments always partition the full requested range. Adjacent holes
// are merged; data segments stay one-per-extent because their physical
// locations need not be contiguous.
func coverRange(extents []Extent, offset, length uint64) []segment {
	end := offset + length
	cur := offset
	var segs []segment

	emit := func(s segment) {
		if s.kind == segHole && len(segs) > 0 && segs[len(segs)-1].kind == segHole {
			segs[len(segs)-1].end = s.end
			return
		}
		segs = append(segs, s)
	}

	for _, e := range extents {
		if cur >= end {
			break
		}
		if e.end() <= cur {
			continue
		}
		if e.Logical > cur {
			holeEnd := min64(e.Logical, end)
			emit(segment{kind: segHole, start: cur, end: holeEnd})
			cur = holeEnd
			if cur >= end {
				break
			}
		}
		segStart := max64(cur, e.Logical)
		segEnd := min64(e.end(), end)
		kind := segNormal
		switch {
		case e.Flags.IsHoleLike():
			kind = segHole
		case e.Flags.IsUnwritten():
			kind = segUnwritten
		}
		emit(segment{
			kind:     kind,
			start:    segStart,
			end:      segEnd,
			physical: e.Physical + (segStart - e.Logical),
		})
		cur = segEnd
	}

	if cur < end {
		emit(segment{kind: segHole, start: cur, end: end})
	}
	return segs
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
