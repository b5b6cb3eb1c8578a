//go:build linux || darwin || freebsd

package platform

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// hostNames returns the kernel's sysname and machine strings.
func hostNames() (string, string) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return runtime.GOOS, runtime.GOARCH
	}
	return unix.ByteSliceToString(u.Sysname[:]), unix.ByteSliceToString(u.Machine[:])
}
