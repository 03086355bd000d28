//go:build !linux && !windows

package sysmem

func available() (int, bool) {
	return 0, false
}
