//go:build !(linux || darwin || freebsd)

package platform

import "runtime"

func hostNames() (string, string) {
	return runtime.GOOS, runtime.GOARCH
}
