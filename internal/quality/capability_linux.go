//go:build linux

package quality

import "golang.org/x/sys/unix"

// totalMemoryBytes reads the physical memory ceiling via sysinfo.
func totalMemoryBytes() (uint64, bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, false
	}
	return uint64(info.Totalram) * uint64(info.Unit), true
}
