//go:build unix

package machdesc

import "golang.org/x/sys/unix"

func pageSize() int64 {
	return int64(unix.Getpagesize())
}
