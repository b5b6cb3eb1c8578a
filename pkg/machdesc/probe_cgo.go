//go:build cgo

package machdesc

/*
#include <stddef.h>
#include <stdint.h>

#define RL_ALIGN(name, T) \
	struct rl_align_##name { char c; T v; }; \
	static int rl_align_of_##name(void) { return (int)offsetof(struct rl_align_##name, v); }

RL_ALIGN(int8, int8_t)
RL_ALIGN(int16, int16_t)
RL_ALIGN(int32, int32_t)
RL_ALIGN(int64, int64_t)
RL_ALIGN(int, int)
RL_ALIGN(long, long)
RL_ALIGN(float, float)
RL_ALIGN(double, double)
RL_ALIGN(longdouble, long double)
RL_ALIGN(pointer, void *)

static int rl_size_of_int(void) { return (int)sizeof(int); }
static int rl_size_of_long(void) { return (int)sizeof(long); }
static int rl_size_of_float(void) { return (int)sizeof(float); }
static int rl_size_of_double(void) { return (int)sizeof(double); }
static int rl_size_of_longdouble(void) { return (int)sizeof(long double); }
static int rl_size_of_pointer(void) { return (int)sizeof(void *); }
*/
import "C"

import "golang.org/x/sys/cpu"

// cgoProber asks the C compiler the process was built with.
type cgoProber struct{}

func (cgoProber) PointerSizeInBytes() int {
	return int(C.rl_size_of_pointer())
}

func (cgoProber) PageSizeInBytes() int64 {
	return pageSize()
}

func (cgoProber) LittleEndian() bool {
	return !cpu.IsBigEndian
}

func (cgoProber) SizeOf(p Primitive) int {
	switch p {
	case Int8:
		return 1
	case Int16:
		return 2
	case Int32:
		return 4
	case Int64:
		return 8
	case Int:
		return int(C.rl_size_of_int())
	case Long:
		return int(C.rl_size_of_long())
	case Float:
		return int(C.rl_size_of_float())
	case Double:
		return int(C.rl_size_of_double())
	case LongDouble:
		return int(C.rl_size_of_longdouble())
	case Pointer:
		return int(C.rl_size_of_pointer())
	}
	return 0
}

func (cgoProber) AlignmentOf(p Primitive) int {
	switch p {
	case Int8:
		return int(C.rl_align_of_int8())
	case Int16:
		return int(C.rl_align_of_int16())
	case Int32:
		return int(C.rl_align_of_int32())
	case Int64:
		return int(C.rl_align_of_int64())
	case Int:
		return int(C.rl_align_of_int())
	case Long:
		return int(C.rl_align_of_long())
	case Float:
		return int(C.rl_align_of_float())
	case Double:
		return int(C.rl_align_of_double())
	case LongDouble:
		return int(C.rl_align_of_longdouble())
	case Pointer:
		return int(C.rl_align_of_pointer())
	}
	return 0
}

// HostLoader loads the cgo-backed probe.
func HostLoader() (Prober, error) {
	return cgoProber{}, nil
}
