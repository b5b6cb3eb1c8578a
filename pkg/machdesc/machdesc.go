// Package machdesc describes the primitive sizes and alignments of a target
// machine. Descriptions come either from a fixed table of named profiles or
// from probing the running process.
package machdesc

import (
	"fmt"

	"github.com/raymyers/ralph-layout/pkg/sizeexpr"
)

// MachineDescription holds the concrete facts for one target platform.
type MachineDescription struct {
	RuntimeValidated bool `yaml:"runtime_validated"`
	LittleEndian     bool `yaml:"little_endian"`

	IntSize        int64 `yaml:"int_size"`
	LongSize       int64 `yaml:"long_size"`
	FloatSize      int64 `yaml:"float_size"`
	DoubleSize     int64 `yaml:"double_size"`
	LongDoubleSize int64 `yaml:"long_double_size"`
	PointerSize    int64 `yaml:"pointer_size"`
	PageSize       int64 `yaml:"page_size"`

	Int8Alignment       int64 `yaml:"int8_alignment"`
	Int16Alignment      int64 `yaml:"int16_alignment"`
	Int32Alignment      int64 `yaml:"int32_alignment"`
	Int64Alignment      int64 `yaml:"int64_alignment"`
	IntAlignment        int64 `yaml:"int_alignment"`
	LongAlignment       int64 `yaml:"long_alignment"`
	FloatAlignment      int64 `yaml:"float_alignment"`
	DoubleAlignment     int64 `yaml:"double_alignment"`
	LongDoubleAlignment int64 `yaml:"long_double_alignment"`
	PointerAlignment    int64 `yaml:"pointer_alignment"`
}

// Lookup implements sizeexpr.Binding.
func (md *MachineDescription) Lookup(v sizeexpr.Var) (int64, bool) {
	switch v {
	case sizeexpr.Int:
		return md.IntSize, true
	case sizeexpr.Long:
		return md.LongSize, true
	case sizeexpr.Float:
		return md.FloatSize, true
	case sizeexpr.Double:
		return md.DoubleSize, true
	case sizeexpr.LongDouble:
		return md.LongDoubleSize, true
	case sizeexpr.Pointer:
		return md.PointerSize, true
	}
	return 0, false
}

// Is32Bit reports whether pointers are 4 bytes.
func (md *MachineDescription) Is32Bit() bool {
	return md.PointerSize == 4
}

// Compatible reports whether md and other agree on every primitive size, so
// that any size expression evaluates identically against both.
func (md *MachineDescription) Compatible(other *MachineDescription) bool {
	for _, v := range sizeexpr.AllVars {
		a, _ := md.Lookup(v)
		b, _ := other.Lookup(v)
		if a != b {
			return false
		}
	}
	return true
}

// ShortString summarizes the description on one line.
func (md *MachineDescription) ShortString() string {
	endian := "big"
	if md.LittleEndian {
		endian = "little"
	}
	source := "static"
	if md.RuntimeValidated {
		source = "runtime"
	}
	return fmt.Sprintf("MachineDescription[%s, %s-endian, %d-bit, page %d]",
		source, endian, md.PointerSize*8, md.PageSize)
}

func (md *MachineDescription) String() string {
	return fmt.Sprintf("%s sizes(int %d, long %d, float %d, double %d, long double %d, pointer %d) "+
		"alignments(int8 %d, int16 %d, int32 %d, int64 %d, int %d, long %d, float %d, double %d, long double %d, pointer %d)",
		md.ShortString(),
		md.IntSize, md.LongSize, md.FloatSize, md.DoubleSize, md.LongDoubleSize, md.PointerSize,
		md.Int8Alignment, md.Int16Alignment, md.Int32Alignment, md.Int64Alignment,
		md.IntAlignment, md.LongAlignment, md.FloatAlignment, md.DoubleAlignment,
		md.LongDoubleAlignment, md.PointerAlignment)
}
