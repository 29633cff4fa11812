package blockdev

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const sysDevBlock = "/sys/dev/block"

// ResolveDevice identifies the block device node backing the file's
// filesystem. It returns the /dev path and the filesystem's device ID, which
// keys the handle cache.
//
// The mapping goes through sysfs: st_dev gives major:minor, and
// /sys/dev/block/<major>:<minor> links to the device's kernel name. The
// resulting /dev node is verified to carry the same device number before it
// is trusted, since /dev and sysfs can disagree on oddly configured systems.
func ResolveDevice(f *os.File) (string, uint64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return "", 0, fmt.Errorf("fstat %s: %w", f.Name(), err)
	}
	devID := uint64(st.Dev)
	if devID == 0 {
		return "", 0, fmt.Errorf("%s has no backing device", f.Name())
	}

	link := filepath.Join(sysDevBlock, fmt.Sprintf("%d:%d", unix.Major(devID), unix.Minor(devID)))
	target, err := os.Readlink(link)
	if err != nil {
		return "", 0, fmt.Errorf("no block device mapping for %s: %w", f.Name(), err)
	}

	devPath := filepath.Join("/dev", filepath.Base(target))
	var dst unix.Stat_t
	if err := unix.Stat(devPath, &dst); err != nil {
		return "", 0, fmt.Errorf("stat %s: %w", devPath, err)
	}
	if uint64(dst.Rdev) != devID {
		return "", 0, fmt.Errorf("%s is device %d:%d, expected %d:%d",
			devPath, unix.Major(uint64(dst.Rdev)), unix.Minor(uint64(dst.Rdev)),
			unix.Major(devID), unix.Minor(devID))
	}
	return devPath, devID, nil
}
