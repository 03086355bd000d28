//go:build linux

package sysmem

import "golang.org/x/sys/unix"

func available() (int, bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, false
	}

	free := uint64(info.Freeram) + uint64(info.Bufferram)
	return int(free * uint64(info.Unit)), true
}
