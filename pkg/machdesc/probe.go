package machdesc

import (
	"errors"
	"fmt"
	"math"
)

// Primitive names a C type whose size or alignment a Prober reports.
type Primitive int

const (
	Int8 Primitive = iota
	Int16
	Int32
	Int64
	Int
	Long
	Float
	Double
	LongDouble
	Pointer
)

func (p Primitive) String() string {
	names := []string{"int8", "int16", "int32", "int64", "int", "long", "float", "double", "long double", "pointer"}
	if int(p) >= 0 && int(p) < len(names) {
		return names[p]
	}
	return "?"
}

// Prober queries the native ABI of the running process.
type Prober interface {
	PointerSizeInBytes() int
	PageSizeInBytes() int64
	SizeOf(p Primitive) int
	AlignmentOf(p Primitive) int
	LittleEndian() bool
}

// Loader initializes the probing facility. Returning ErrProbeUnavailable
// means the process cannot be probed, which is not a failure.
type Loader func() (Prober, error)

var (
	// ErrProbeUnavailable reports that no native probe can be loaded.
	ErrProbeUnavailable = errors.New("machdesc: native probe unavailable")
	// ErrUnsupportedPointerSize is matched by UnsupportedPointerSizeError.
	ErrUnsupportedPointerSize = errors.New("unsupported pointer size")
	// ErrPageSizeOverflow is matched by PageSizeOverflowError.
	ErrPageSizeOverflow = errors.New("page size overflow")
	// ErrProfileMismatch reports a static profile contradicting the probe.
	ErrProfileMismatch = errors.New("static profile disagrees with runtime probe")
)

// UnsupportedPointerSizeError reports a probed pointer size other than 4 or 8.
type UnsupportedPointerSizeError struct {
	Size int
}

func (e *UnsupportedPointerSizeError) Error() string {
	return fmt.Sprintf("unsupported pointer size %d bytes", e.Size)
}

// Is reports whether target is ErrUnsupportedPointerSize.
func (e *UnsupportedPointerSizeError) Is(target error) bool {
	return target == ErrUnsupportedPointerSize
}

// PageSizeOverflowError reports a probed page size beyond int32.
type PageSizeOverflowError struct {
	Size int64
}

func (e *PageSizeOverflowError) Error() string {
	return fmt.Sprintf("page size %d exceeds %d", e.Size, math.MaxInt32)
}

// Is reports whether target is ErrPageSizeOverflow.
func (e *PageSizeOverflowError) Is(target error) bool {
	return target == ErrPageSizeOverflow
}

// Probe reads a full machine description from p.
func Probe(p Prober) (*MachineDescription, error) {
	ptr := p.PointerSizeInBytes()
	switch ptr {
	case 4, 8:
	default:
		return nil, &UnsupportedPointerSizeError{Size: ptr}
	}

	page := p.PageSizeInBytes()
	if page > math.MaxInt32 {
		return nil, &PageSizeOverflowError{Size: page}
	}

	size := func(k Primitive) int64 { return int64(p.SizeOf(k)) }
	align := func(k Primitive) int64 { return int64(p.AlignmentOf(k)) }
	return &MachineDescription{
		RuntimeValidated: true,
		LittleEndian:     p.LittleEndian(),

		IntSize:        size(Int),
		LongSize:       size(Long),
		FloatSize:      size(Float),
		DoubleSize:     size(Double),
		LongDoubleSize: size(LongDouble),
		PointerSize:    int64(ptr),
		PageSize:       page,

		Int8Alignment:       align(Int8),
		Int16Alignment:      align(Int16),
		Int32Alignment:      align(Int32),
		Int64Alignment:      align(Int64),
		IntAlignment:        align(Int),
		LongAlignment:       align(Long),
		FloatAlignment:      align(Float),
		DoubleAlignment:     align(Double),
		LongDoubleAlignment: align(LongDouble),
		PointerAlignment:    align(Pointer),
	}, nil
}
