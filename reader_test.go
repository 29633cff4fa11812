package blkreader

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDevice is a fake block device backed by a byte slice, counting reads so
// tests can prove when no I/O happened.
type stubDevice struct {
	mu    sync.Mutex
	data  []byte
	reads int
	err   error
}

func (d *stubDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	d.reads++
	d.mu.Unlock()
	if d.err != nil {
		return 0, d.err
	}
	if off >= int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *stubDevice) readCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// patternDevice builds stub contents where every byte holds a value derived
// from its offset, so reads can be traced back to their physical location.
func patternDevice(size int) *stubDevice {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i >> 9) // one value per 512-byte sector
	}
	return &stubDevice{data: data}
}

func tempFile(t *testing.T, content []byte) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func stubSession(t *testing.T, extents []Extent, dev *stubDevice, opts Options) *readSession {
	t.Helper()
	s := &readSession{file: tempFile(t, nil), opts: opts}
	s.query = func(*os.File, uint64, uint64) ([]Extent, error) {
		return extents, nil
	}
	s.resolve = func(*os.File) (string, uint64, error) {
		return "/dev/stub0", 42, nil
	}
	s.device = func(uint64, string) (io.ReaderAt, func() error, error) {
		return dev, nil, nil
	}
	return s
}

func TestReadHoleTruncation(t *testing.T) {
	// Hole at [512, 1024), data on both sides.
	extents := []Extent{
		{Logical: 0, Physical: 0, Length: 512},
		{Logical: 1024, Physical: 4096, Length: 512, Flags: FlagLast},
	}
	dev := patternDevice(1 << 20)

	t.Run("StopAtHole", func(t *testing.T) {
		buf := make([]byte, 1536)
		s := stubSession(t, extents, dev, DefaultOptions())
		state, err := s.run(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, 512, state.BytesRead)
		assert.Equal(t, dev.data[:512], buf[:512])
	})

	t.Run("FillHoles", func(t *testing.T) {
		buf := make([]byte, 1536)
		s := stubSession(t, extents, dev, DefaultOptions().WithFillHoles(true))
		state, err := s.run(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, 1536, state.BytesRead)
		assert.Equal(t, dev.data[:512], buf[:512])
		assert.Equal(t, make([]byte, 512), buf[512:1024], "hole must read as zeros")
		assert.Equal(t, dev.data[4096:4608], buf[1024:1536])
	})
}

func TestReadUnwritten(t *testing.T) {
	extents := []Extent{
		{Logical: 0, Physical: 8192, Length: 512, Flags: FlagUnwritten | FlagLast},
	}
	dev := &stubDevice{data: bytes.Repeat([]byte{0xAA}, 16384)}

	t.Run("RawBytesByDefault", func(t *testing.T) {
		buf := make([]byte, 512)
		s := stubSession(t, extents, dev, DefaultOptions())
		state, err := s.run(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, 512, state.BytesRead)
		assert.Equal(t, bytes.Repeat([]byte{0xAA}, 512), buf)
	})

	t.Run("ZeroUnwritten", func(t *testing.T) {
		buf := bytes.Repeat([]byte{0xFF}, 512)
		s := stubSession(t, extents, dev, DefaultOptions().WithZeroUnwritten(true))
		before := dev.readCount()
		state, err := s.run(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, 512, state.BytesRead)
		assert.Equal(t, make([]byte, 512), buf)
		assert.Equal(t, before, dev.readCount(), "zero-filling must not touch the device")
	})
}

func TestReadFallback(t *testing.T) {
	content := bytes.Repeat([]byte{0x5A}, 4096)
	extents := []Extent{
		{Logical: 0, Physical: 1 << 20, Length: 4096, Flags: FlagLast},
	}

	deviceCalls := 0
	s := &readSession{
		file: tempFile(t, content),
		opts: DefaultOptions().WithAllowFallback(true),
	}
	s.query = func(*os.File, uint64, uint64) ([]Extent, error) { return extents, nil }
	s.resolve = func(*os.File) (string, uint64, error) {
		t.Fatal("fallback read must not resolve the device")
		return "", 0, nil
	}
	s.device = func(uint64, string) (io.ReaderAt, func() error, error) {
		deviceCalls++
		return nil, nil, nil
	}

	buf := make([]byte, 4096)
	state, err := s.run(buf, 0)
	require.NoError(t, err)
	assert.True(t, state.UsedFallback)
	assert.Equal(t, 4096, state.BytesRead)
	assert.Equal(t, content, buf)
	assert.Empty(t, state.BlockDevicePath)
	assert.Equal(t, 0, deviceCalls)
	assert.Equal(t, extents, state.Extents, "extent list is returned verbatim")
}

func TestReadDryRun(t *testing.T) {
	extents := []Extent{
		{Logical: 0, Physical: 0, Length: 4096, Flags: FlagLast},
	}
	dev := patternDevice(8192)

	buf := make([]byte, 4096)
	s := stubSession(t, extents, dev, DefaultOptions().WithDryRun(true))
	deviceCalls := 0
	s.device = func(uint64, string) (io.ReaderAt, func() error, error) {
		deviceCalls++
		return dev, nil, nil
	}

	state, err := s.run(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 4096, state.BytesRead, "dry run reports what a real run would read")
	assert.False(t, state.UsedFallback)
	assert.Equal(t, "/dev/stub0", state.BlockDevicePath, "extents and device are still resolved")
	assert.Equal(t, 0, dev.readCount())
	assert.Equal(t, 0, deviceCalls, "dry run must not open the device")
}

func TestReadAlignmentRejection(t *testing.T) {
	dev := patternDevice(1 << 20)

	t.Run("UnalignedPhysicalOffset", func(t *testing.T) {
		extents := []Extent{
			{Logical: 0, Physical: 100, Length: 512, Flags: FlagLast},
		}
		buf := bytes.Repeat([]byte{0xEE}, 512)
		s := stubSession(t, extents, dev, DefaultOptions())
		_, err := s.run(buf, 0)
		require.ErrorIs(t, err, ErrAlignment)
		assert.Equal(t, bytes.Repeat([]byte{0xEE}, 512), buf, "rejected step must not mutate the buffer")
	})

	t.Run("UnalignedLength", func(t *testing.T) {
		extents := []Extent{
			{Logical: 0, Physical: 512, Length: 100, Flags: FlagLast},
		}
		s := stubSession(t, extents, dev, DefaultOptions())
		_, err := s.run(make([]byte, 100), 0)
		require.ErrorIs(t, err, ErrAlignment)
	})
}

func TestReadEndToEnd(t *testing.T) {
	// 4 KiB file: first half written, second half preallocated but unwritten.
	// Default options must hand back the raw device bytes of the unwritten
	// half; that is the whole point of the tool.
	extents := []Extent{
		{Logical: 0, Physical: 4096, Length: 2048},
		{Logical: 2048, Physical: 65536, Length: 2048, Flags: FlagUnwritten | FlagLast},
	}
	dev := patternDevice(1 << 20)

	buf := make([]byte, 4096)
	s := stubSession(t, extents, dev, DefaultOptions())
	state, err := s.run(buf, 0)
	require.NoError(t, err)

	assert.Equal(t, 4096, state.BytesRead)
	assert.False(t, state.UsedFallback)
	assert.Equal(t, "/dev/stub0", state.BlockDevicePath)
	assert.Equal(t, dev.data[4096:6144], buf[:2048])
	assert.Equal(t, dev.data[65536:67584], buf[2048:4096])
}

func TestReadShortDeviceRead(t *testing.T) {
	// The device claims 1 KiB but only 512 bytes exist: partial success, not
	// an error, same as a short file read.
	extents := []Extent{
		{Logical: 0, Physical: 0, Length: 1024, Flags: FlagLast},
	}
	dev := &stubDevice{data: make([]byte, 512)}

	s := stubSession(t, extents, dev, DefaultOptions())
	state, err := s.run(make([]byte, 1024), 0)
	require.NoError(t, err)
	assert.Equal(t, 512, state.BytesRead)
}

func TestReadExact(t *testing.T) {
	extents := []Extent{
		{Logical: 0, Physical: 0, Length: 512, Flags: FlagLast},
	}
	dev := patternDevice(4096)

	t.Run("ShortIsError", func(t *testing.T) {
		s := stubSession(t, extents, dev, DefaultOptions().WithReadExact(true))
		_, err := s.run(make([]byte, 1024), 0)
		require.ErrorIs(t, err, ErrShortRead)
	})

	t.Run("FullIsFine", func(t *testing.T) {
		s := stubSession(t, extents, dev, DefaultOptions().WithReadExact(true))
		state, err := s.run(make([]byte, 512), 0)
		require.NoError(t, err)
		assert.Equal(t, 512, state.BytesRead)
	})
}

func TestReadEmptyBuffer(t *testing.T) {
	s := stubSession(t, nil, nil, DefaultOptions())
	state, err := s.run(nil, 0)
	require.NoError(t, err)
	assert.Zero(t, state.BytesRead)
	assert.False(t, state.UsedFallback)
}

func TestReadBeyondEOF(t *testing.T) {
	extents := []Extent{
		{Logical: 0, Physical: 0, Length: 512, Flags: FlagLast},
	}
	dev := patternDevice(4096)

	t.Run("DefaultStops", func(t *testing.T) {
		s := stubSession(t, extents, dev, DefaultOptions())
		state, err := s.run(make([]byte, 1024), 4096)
		require.NoError(t, err)
		assert.Zero(t, state.BytesRead)
	})

	t.Run("FillHolesZeroes", func(t *testing.T) {
		buf := bytes.Repeat([]byte{0xCC}, 1024)
		s := stubSession(t, extents, dev, DefaultOptions().WithFillHoles(true))
		state, err := s.run(buf, 4096)
		require.NoError(t, err)
		assert.Equal(t, 1024, state.BytesRead)
		assert.Equal(t, make([]byte, 1024), buf)
	})
}

func TestReadErrorKinds(t *testing.T) {
	extents := []Extent{
		{Logical: 0, Physical: 0, Length: 512, Flags: FlagLast},
	}

	t.Run("ExtentQuery", func(t *testing.T) {
		s := stubSession(t, nil, nil, DefaultOptions())
		s.query = func(*os.File, uint64, uint64) ([]Extent, error) {
			return nil, errors.New("fiemap not supported")
		}
		_, err := s.run(make([]byte, 512), 0)
		require.ErrorIs(t, err, ErrExtentQuery)
	})

	t.Run("DeviceResolution", func(t *testing.T) {
		s := stubSession(t, extents, nil, DefaultOptions())
		s.resolve = func(*os.File) (string, uint64, error) {
			return "", 0, errors.New("no mapping")
		}
		_, err := s.run(make([]byte, 512), 0)
		require.ErrorIs(t, err, ErrDeviceResolution)
	})

	t.Run("DeviceOpen", func(t *testing.T) {
		s := stubSession(t, extents, nil, DefaultOptions())
		s.device = func(uint64, string) (io.ReaderAt, func() error, error) {
			return nil, nil, os.ErrPermission
		}
		_, err := s.run(make([]byte, 512), 0)
		require.ErrorIs(t, err, ErrDeviceOpen)
		require.ErrorIs(t, err, os.ErrPermission)
	})

	t.Run("DeviceRead", func(t *testing.T) {
		dev := &stubDevice{err: errors.New("I/O error")}
		s := stubSession(t, extents, dev, DefaultOptions())
		_, err := s.run(make([]byte, 512), 0)
		require.ErrorIs(t, err, ErrDeviceRead)
	})
}

func TestReadUncachedCleanup(t *testing.T) {
	extents := []Extent{
		{Logical: 0, Physical: 0, Length: 512, Flags: FlagLast},
	}
	dev := patternDevice(4096)

	closed := false
	s := stubSession(t, extents, dev, DefaultOptions().WithCache(false))
	s.device = func(uint64, string) (io.ReaderAt, func() error, error) {
		return dev, func() error { closed = true; return nil }, nil
	}

	_, err := s.run(make([]byte, 512), 0)
	require.NoError(t, err)
	assert.True(t, closed, "uncached handles are closed when the call completes")
}
