package blkreader

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/SF-Zhou/blkreader/internal/blockdev"
	"github.com/SF-Zhou/blkreader/internal/fiemap"
)

// SectorSize is the minimum I/O granularity for direct device reads. Device
// offsets and lengths must be multiples of it; destination buffers should be
// allocated on a 4096-byte boundary for best performance.
const SectorSize = 512

// ReadAt reads len(buf) bytes at offset from the file at path, going through
// the underlying block device, with default options. It returns the number of
// bytes read; a short count means the read stopped at a hole or end of data.
func ReadAt(path string, buf []byte, offset uint64) (int, error) {
	state, err := ReadAtOptions(path, buf, offset, DefaultOptions())
	if err != nil {
		return 0, err
	}
	return state.BytesRead, nil
}

// ReadAtOptions reads len(buf) bytes at offset from the file at path with the
// given options and reports the full read state.
func ReadAtOptions(path string, buf []byte, offset uint64, opts Options) (*ReadState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return ReadFileAt(f, buf, offset, opts)
}

// ReadFileAt is ReadAtOptions for an already-open file.
func ReadFileAt(f *os.File, buf []byte, offset uint64, opts Options) (*ReadState, error) {
	return newSession(f, opts).run(buf, offset)
}

// QueryExtents returns the extents overlapping [offset, offset+length) of the
// file, ordered by logical offset. Holes are implicit gaps between extents.
func QueryExtents(f *os.File, offset, length uint64) ([]Extent, error) {
	raw, err := fiemap.QueryRange(f, offset, length)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtentQuery, err)
	}
	return extentsFromFibmap(raw), nil
}

// ResolveDevice returns the path of the block device node backing the file's
// filesystem.
func ResolveDevice(f *os.File) (string, error) {
	path, _, err := blockdev.ResolveDevice(f)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDeviceResolution, err)
	}
	return path, nil
}

// readSession carries one call's collaborators. The function fields exist so
// tests can substitute stub extent sources and counting stub devices; real
// calls get the Linux implementations from newSession.
type readSession struct {
	file *os.File
	opts Options

	query   func(f *os.File, offset, length uint64) ([]Extent, error)
	resolve func(f *os.File) (path string, devID uint64, err error)
	// device returns a positioned reader for the block device plus an
	// optional cleanup. Cached handles return a nil cleanup and stay open.
	device func(devID uint64, path string) (io.ReaderAt, func() error, error)
}

func newSession(f *os.File, opts Options) *readSession {
	s := &readSession{
		file:    f,
		opts:    opts,
		resolve: blockdev.ResolveDevice,
	}
	s.query = func(f *os.File, offset, length uint64) ([]Extent, error) {
		raw, err := fiemap.QueryRange(f, offset, length)
		if err != nil {
			return nil, err
		}
		return extentsFromFibmap(raw), nil
	}
	s.device = func(devID uint64, path string) (io.ReaderAt, func() error, error) {
		if opts.EnableCache {
			d, err := blockdev.Acquire(devID, path)
			if err != nil {
				return nil, nil, err
			}
			return d, nil, nil
		}
		d, err := blockdev.OpenUncached(path)
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	}
	return s
}

func (s *readSession) run(buf []byte, offset uint64) (*ReadState, error) {
	if len(buf) == 0 {
		return &ReadState{}, nil
	}
	length := uint64(len(buf))

	logger := log.WithFields(log.Fields{
		"trace":  uuid.NewString(),
		"file":   s.file.Name(),
		"offset": offset,
		"length": length,
	})

	extents, err := s.query(s.file, offset, length)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtentQuery, err)
	}
	logger.WithField("extents", len(extents)).Debug("extent map resolved")

	plan := buildPlan(extents, offset, length, s.opts)
	state := &ReadState{Extents: extents}

	if plan.fallback {
		state.UsedFallback = true
		n, err := s.fallbackRead(buf, offset)
		if err != nil {
			return nil, err
		}
		state.BytesRead = n
		logger.WithField("bytes", n).Debug("served by fallback file read")
		if err := s.checkExact(state, len(buf)); err != nil {
			return nil, err
		}
		return state, nil
	}

	var dev io.ReaderAt
	if plan.needsDevice() {
		path, devID, err := s.resolve(s.file)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDeviceResolution, err)
		}
		state.BlockDevicePath = path
		logger = logger.WithField("device", path)

		if !s.opts.DryRun {
			d, cleanup, err := s.device(devID, path)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrDeviceOpen, err)
			}
			if cleanup != nil {
				defer cleanup()
			}
			dev = d
		}
	}

	n, err := s.execute(plan, dev, buf, logger)
	state.BytesRead = n
	if err != nil {
		return nil, err
	}
	if err := s.checkExact(state, len(buf)); err != nil {
		return nil, err
	}
	return state, nil
}

// fallbackRead serves the request with ordinary buffered file I/O.
func (s *readSession) fallbackRead(buf []byte, offset uint64) (int, error) {
	if s.opts.DryRun {
		return len(buf), nil
	}
	n, err := s.file.ReadAt(buf, int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: file read at %d: %w", ErrDeviceRead, offset, err)
	}
	return n, nil
}

// execute carries out the plan in ascending order, writing each step's bytes
// into its slice of buf. A short read on a device step ends the plan with
// partial success; a failed read or an alignment violation is an error.
func (s *readSession) execute(plan readPlan, dev io.ReaderAt, buf []byte, logger *log.Entry) (int, error) {
	bytesRead := 0
	for _, step := range plan.steps {
		switch step.kind {
		case stepHole:
			zeroFill(buf[step.bufStart:step.bufEnd])
			bytesRead = step.bufEnd

		case stepNormal, stepUnwritten:
			if s.opts.DryRun {
				bytesRead = step.bufEnd
				continue
			}
			if step.deviceOffset%SectorSize != 0 || uint64(step.length())%SectorSize != 0 {
				return bytesRead, fmt.Errorf("%w: device offset %d length %d, granularity %d",
					ErrAlignment, step.deviceOffset, step.length(), SectorSize)
			}
			n, err := dev.ReadAt(buf[step.bufStart:step.bufEnd], int64(step.deviceOffset))
			bytesRead = step.bufStart + n
			if err != nil && !errors.Is(err, io.EOF) {
				return bytesRead, fmt.Errorf("%w: %s read at %d: %w",
					ErrDeviceRead, step.kind, step.deviceOffset, err)
			}
			if n < step.length() {
				logger.WithFields(log.Fields{"step": step.kind.String(), "got": n, "want": step.length()}).
					Debug("short device read, returning partial result")
				return bytesRead, nil
			}
		}
	}
	return bytesRead, nil
}

func (s *readSession) checkExact(state *ReadState, want int) error {
	if s.opts.ReadExact && state.BytesRead < want {
		return fmt.Errorf("%w: read %d of %d bytes", ErrShortRead, state.BytesRead, want)
	}
	return nil
}

func zeroFill(p []byte) {
	for i := range p {
		p[i] = 0
	}
}
