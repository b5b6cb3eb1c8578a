//go:build !cgo

package machdesc

// HostLoader reports ErrProbeUnavailable: without cgo there is no C compiler
// to ask.
func HostLoader() (Prober, error) {
	return nil, ErrProbeUnavailable
}
