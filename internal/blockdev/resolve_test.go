package blockdev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// Resolution needs a file on a real block-device-backed filesystem; tmpfs and
// friends have anonymous device numbers with no sysfs entry. Skip there.
func TestResolveDeviceRealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	devPath, devID, err := ResolveDevice(f)
	if err != nil {
		t.Skipf("no block device mapping here: %v", err)
	}

	assert.NotZero(t, devID)
	assert.True(t, filepath.IsAbs(devPath))

	var st unix.Stat_t
	require.NoError(t, unix.Stat(devPath, &st))
	assert.Equal(t, devID, uint64(st.Rdev), "resolved node must carry the file's device number")
}
