//go:build !unix

package machdesc

import "os"

func pageSize() int64 {
	return int64(os.Getpagesize())
}
