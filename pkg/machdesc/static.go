package machdesc

import (
	"fmt"
	"strings"

	"github.com/raymyers/ralph-layout/pkg/platform"
)

// StaticConfig names a fixed machine description profile.
type StaticConfig int

const (
	X86_32Unix StaticConfig = iota
	X86_32MacOS
	SPARC32SunOS
	ARMleEABI
	X86_32Windows
	LP64Unix
	X86_64Windows
)

// staticProfile lists sizes then alignments, in MachineDescription field order.
type staticProfile struct {
	name   string
	little bool
	// int, long, float, double, long double, pointer, page
	sizes [7]int64
	// int8, int16, int32, int64, int, long, float, double, long double, pointer
	aligns [10]int64
}

var staticProfiles = []staticProfile{
	X86_32Unix: {"x86-32-unix", true,
		[7]int64{4, 4, 4, 8, 12, 4, 4096},
		[10]int64{1, 2, 4, 4, 4, 4, 4, 4, 4, 4}},
	X86_32MacOS: {"x86-32-macos", true,
		[7]int64{4, 4, 4, 8, 16, 4, 4096},
		[10]int64{1, 2, 4, 4, 4, 4, 4, 4, 16, 4}},
	SPARC32SunOS: {"sparc-32-sunos", false,
		[7]int64{4, 4, 4, 8, 16, 4, 8192},
		[10]int64{1, 2, 4, 8, 4, 4, 4, 8, 8, 4}},
	ARMleEABI: {"armle-eabi", true,
		[7]int64{4, 4, 4, 8, 8, 4, 4096},
		[10]int64{1, 2, 4, 8, 4, 4, 4, 8, 8, 4}},
	X86_32Windows: {"x86-32-windows", true,
		[7]int64{4, 4, 4, 8, 8, 4, 4096},
		[10]int64{1, 2, 4, 8, 4, 4, 4, 8, 8, 4}},
	LP64Unix: {"lp64-unix", true,
		[7]int64{4, 8, 4, 8, 16, 8, 4096},
		[10]int64{1, 2, 4, 8, 4, 8, 4, 8, 16, 8}},
	X86_64Windows: {"x86-64-windows", true,
		[7]int64{4, 4, 4, 8, 8, 8, 4096},
		[10]int64{1, 2, 4, 8, 4, 4, 4, 8, 8, 8}},
}

// StaticConfigs lists every profile.
func StaticConfigs() []StaticConfig {
	out := make([]StaticConfig, len(staticProfiles))
	for i := range staticProfiles {
		out[i] = StaticConfig(i)
	}
	return out
}

func (c StaticConfig) String() string {
	if int(c) >= 0 && int(c) < len(staticProfiles) {
		return staticProfiles[c].name
	}
	return fmt.Sprintf("StaticConfig(%d)", int(c))
}

// Description returns a fresh copy of the profile's machine description.
func (c StaticConfig) Description() *MachineDescription {
	p := staticProfiles[c]
	return &MachineDescription{
		LittleEndian: p.little,

		IntSize:        p.sizes[0],
		LongSize:       p.sizes[1],
		FloatSize:      p.sizes[2],
		DoubleSize:     p.sizes[3],
		LongDoubleSize: p.sizes[4],
		PointerSize:    p.sizes[5],
		PageSize:       p.sizes[6],

		Int8Alignment:       p.aligns[0],
		Int16Alignment:      p.aligns[1],
		Int32Alignment:      p.aligns[2],
		Int64Alignment:      p.aligns[3],
		IntAlignment:        p.aligns[4],
		LongAlignment:       p.aligns[5],
		FloatAlignment:      p.aligns[6],
		DoubleAlignment:     p.aligns[7],
		LongDoubleAlignment: p.aligns[8],
		PointerAlignment:    p.aligns[9],
	}
}

// LookupStaticConfig finds a profile by name, case-insensitively.
func LookupStaticConfig(name string) (StaticConfig, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, p := range staticProfiles {
		if p.name == n {
			return StaticConfig(i), true
		}
	}
	return 0, false
}

// Static selects the profile for an OS, CPU and byte order. It never fails:
// 32-bit targets without a dedicated profile use X86_32Unix, and every
// 64-bit target other than Windows uses LP64Unix.
func Static(o platform.OSType, a platform.CPUArch, littleEndian bool) StaticConfig {
	if a.Is32Bit() {
		switch {
		case a.Family() == platform.ARM && littleEndian:
			return ARMleEABI
		case o == platform.Windows:
			return X86_32Windows
		case o == platform.MacOS:
			return X86_32MacOS
		case o == platform.SunOS && a == platform.SPARC_32:
			return SPARC32SunOS
		}
		return X86_32Unix
	}
	if o == platform.Windows {
		return X86_64Windows
	}
	return LP64Unix
}

// Family32And64 returns the 32-bit and 64-bit profiles of an OS family, the
// pair code generators usually emit accessors for.
func Family32And64(o platform.OSType) (StaticConfig, StaticConfig) {
	switch o {
	case platform.Windows:
		return X86_32Windows, X86_64Windows
	case platform.MacOS:
		return X86_32MacOS, LP64Unix
	}
	return X86_32Unix, LP64Unix
}
