// Package sysmem reports available system physical memory, feeding the host
// side of the texture residency budget policy.
package sysmem

// Available returns the system's available physical memory in bytes. The
// second return is false on platforms where the measurement is unsupported.
func Available() (int, bool) {
	return available()
}
