package blkreader

// stepKind tags one instruction of a read plan.
type stepKind int

const (
	// stepHole zero-fills its buffer range without touching the device.
	stepHole stepKind = iota
	// stepUnwritten reads raw bytes of an unwritten extent from the device.
	stepUnwritten
	// stepNormal reads written data from the device.
	stepNormal
	// stepFallback serves the entire request with regular file I/O.
	stepFallback
)

func (k stepKind) String() string {
	switch k {
	case stepHole:
		return "hole"
	case stepUnwritten:
		return "unwritten"
	case stepNormal:
		return "normal"
	case stepFallback:
		return "fallback"
	}
	return "unknown"
}

// planStep is one instruction: fill or read buf[bufStart:bufEnd]. For device
// steps, deviceOffset is the physical byte offset to read from.
type planStep struct {
	kind             stepKind
	bufStart, bufEnd int
	deviceOffset     uint64
}

func (s planStep) length() int { return s.bufEnd - s.bufStart }

// readPlan is the ordered instruction sequence for one call. fallback is true
// iff the plan consists of the single stepFallback instruction.
type readPlan struct {
	steps    []planStep
	fallback bool
}

// needsDevice reports whether executing the plan requires a device handle.
func (p readPlan) needsDevice() bool {
	for _, s := range p.steps {
		if s.kind == stepNormal || s.kind == stepUnwritten {
			return true
		}
	}
	return false
}

// fallbackEligible reports whether the whole range is covered by normal
// written extents. Only then does a regular filesystem read return byte-for-
// byte what raw device access would, making it safe to skip the device path.
func fallbackEligible(segs []segment) bool {
	for _, s := range segs {
		if s.kind != segNormal {
			return false
		}
	}
	return len(segs) > 0
}

// buildPlan turns the classified covering of [offset, offset+length) into an
// ordered step sequence. Pure function of its inputs: no I/O, no shared
// state, deterministic.
//
// When FillHoles is off, planning stops at the first hole segment: the caller
// receives only the prefix that physically exists (early end-of-data). That
// truncation is the only way a plan accounts for less than the full range.
func buildPlan(extents []Extent, offset, length uint64, opts Options) readPlan {
	segs := coverRange(extents, offset, length)

	if opts.AllowFallback && fallbackEligible(segs) {
		return readPlan{
			steps:    []planStep{{kind: stepFallback, bufStart: 0, bufEnd: int(length)}},
			fallback: true,
		}
	}

	var steps []planStep
	for _, seg := range segs {
		step := planStep{
			bufStart: int(seg.start - offset),
			bufEnd:   int(seg.end - offset),
		}
		switch seg.kind {
		case segHole:
			if !opts.FillHoles {
				return readPlan{steps: steps}
			}
			step.kind = stepHole
		case segUnwritten:
			if opts.ZeroUnwritten {
				step.kind = stepHole
			} else {
				step.kind = stepUnwritten
				step.deviceOffset = seg.physical
			}
		case segNormal:
			step.kind = stepNormal
			step.deviceOffset = seg.physical
		}
		steps = append(steps, step)
	}
	return readPlan{steps: steps}
}
