package blockdev

import (
	"fmt"
	"sync"
)

// The registry is keyed by the filesystem's device ID (st_dev), not by path:
// paths may alias, device numbers do not. Entries are never evicted; the set
// of distinct block devices a process touches is small and bounded, so
// handles simply live until process exit.
var (
	cacheMu sync.RWMutex
	cache   = make(map[uint64]*Device)
)

// Acquire returns the shared handle for the given device ID, opening the
// device node on first use. Concurrent callers for the same device block only
// on the lookup/insert critical section; the lock is never held across reads.
// Failed opens are not cached.
func Acquire(devID uint64, path string) (*Device, error) {
	cacheMu.RLock()
	if d, ok := cache[devID]; ok {
		cacheMu.RUnlock()
		return d, nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if d, ok := cache[devID]; ok {
		return d, nil
	}
	f, err := openDevice(path)
	if err != nil {
		return nil, fmt.Errorf("opening block device %s: %w", path, err)
	}
	d := &Device{path: path, file: f}
	cache[devID] = d
	return d, nil
}

// cached reports whether a handle for the device ID is registered. Test hook.
func cached(devID uint64) bool {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	_, ok := cache[devID]
	return ok
}

// resetCache drops all registered handles without closing them. Test hook.
func resetCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = make(map[uint64]*Device)
}
