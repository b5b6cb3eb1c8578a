// Package platform identifies target operating systems and CPU architectures
// and selects the aggregate alignment rule used by the layout engine.
package platform

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// OSType identifies an operating system family.
type OSType int

const (
	UnknownOS OSType = iota
	Windows
	Linux
	Android
	MacOS
	SunOS
	FreeBSD
	HPUX
)

func (o OSType) String() string {
	names := []string{"unknown", "windows", "linux", "android", "macos", "sunos", "freebsd", "hpux"}
	if int(o) >= 0 && int(o) < len(names) {
		return names[o]
	}
	return "unknown"
}

// CPUFamily groups architectures sharing an instruction set lineage.
type CPUFamily int

const (
	UnknownFamily CPUFamily = iota
	X86
	IA64Family
	ARM
	PPCFamily
	SPARC
	PARISC
	MIPS
)

func (f CPUFamily) String() string {
	names := []string{"unknown", "x86", "ia64", "arm", "ppc", "sparc", "pa-risc", "mips"}
	if int(f) >= 0 && int(f) < len(names) {
		return names[f]
	}
	return "unknown"
}

// CPUArch identifies a CPU architecture and data model.
type CPUArch int

const (
	UnknownArch CPUArch = iota
	X86_32
	X86_64
	IA64
	ARM_32
	ARM_64
	PPC
	PPC_64
	SPARC_32
	SPARCV9_64
	PA_RISC2_0
	MIPS_32
	MIPS_64
)

type archInfo struct {
	name   string
	family CPUFamily
	is32   bool
}

var archs = map[CPUArch]archInfo{
	UnknownArch: {"unknown", UnknownFamily, false},
	X86_32:      {"x86_32", X86, true},
	X86_64:      {"x86_64", X86, false},
	IA64:        {"ia64", IA64Family, false},
	ARM_32:      {"arm_32", ARM, true},
	ARM_64:      {"arm_64", ARM, false},
	PPC:         {"ppc", PPCFamily, true},
	PPC_64:      {"ppc_64", PPCFamily, false},
	SPARC_32:    {"sparc_32", SPARC, true},
	SPARCV9_64:  {"sparcv9_64", SPARC, false},
	PA_RISC2_0:  {"pa_risc2.0", PARISC, true},
	MIPS_32:     {"mips_32", MIPS, true},
	MIPS_64:     {"mips_64", MIPS, false},
}

func (a CPUArch) String() string {
	if info, ok := archs[a]; ok {
		return info.name
	}
	return "unknown"
}

// Family returns the CPU family of a.
func (a CPUArch) Family() CPUFamily {
	return archs[a].family
}

// Is32Bit reports whether a uses 32-bit pointers.
func (a CPUArch) Is32Bit() bool {
	return archs[a].is32
}

// ErrUnsupportedPlatform is matched by every UnsupportedPlatformError.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// UnsupportedPlatformError names an OS/CPU pair missing from a selection table.
type UnsupportedPlatformError struct {
	OS  string
	CPU string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform: os %q, cpu %q", e.OS, e.CPU)
}

// Is reports whether target is ErrUnsupportedPlatform.
func (e *UnsupportedPlatformError) Is(target error) bool {
	return target == ErrUnsupportedPlatform
}

// ParseOS maps an OS name to an OSType. It accepts GOOS values, JVM os.name
// values and uname sysnames, case-insensitively.
func ParseOS(name string) (OSType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(n, "windows"):
		return Windows, nil
	case n == "android":
		return Android, nil
	case strings.HasPrefix(n, "linux"):
		return Linux, nil
	case strings.HasPrefix(n, "mac os"), strings.HasPrefix(n, "macos"),
		strings.HasPrefix(n, "darwin"), n == "ios":
		return MacOS, nil
	case strings.HasPrefix(n, "sunos"), n == "solaris", n == "illumos":
		return SunOS, nil
	case strings.HasPrefix(n, "freebsd"):
		return FreeBSD, nil
	case strings.HasPrefix(n, "hp-ux"), n == "hpux":
		return HPUX, nil
	}
	return UnknownOS, &UnsupportedPlatformError{OS: name}
}

// ParseArch maps a CPU name to a CPUArch. It accepts GOARCH values, JVM
// os.arch values and uname machine names, case-insensitively.
func ParseArch(name string) (CPUArch, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "386", "x86", "i386", "i486", "i586", "i686", "x86_32":
		return X86_32, nil
	case "amd64", "x86_64", "x86-64", "em64t":
		return X86_64, nil
	case "ia64", "ia64w", "itanium64":
		return IA64, nil
	case "arm", "armv5l", "armv6l", "armv7l", "armv7", "armhf", "armel", "arm_32":
		return ARM_32, nil
	case "arm64", "aarch64", "armv8", "arm_64":
		return ARM_64, nil
	case "ppc", "powerpc":
		return PPC, nil
	case "ppc64", "ppc64le", "powerpc64", "ppc_64":
		return PPC_64, nil
	case "sparc", "sparc_32":
		return SPARC_32, nil
	case "sparcv9", "sparc64", "sparcv9_64":
		return SPARCV9_64, nil
	case "pa_risc2.0", "pa-risc2.0", "parisc":
		return PA_RISC2_0, nil
	case "mips", "mipsle", "mips_32":
		return MIPS_32, nil
	case "mips64", "mips64le", "mips_64":
		return MIPS_64, nil
	}
	return UnknownArch, &UnsupportedPlatformError{CPU: name}
}

// Parse maps an OS and CPU name pair, reporting both names on failure.
func Parse(osName, cpuName string) (OSType, CPUArch, error) {
	o, oerr := ParseOS(osName)
	a, aerr := ParseArch(cpuName)
	if oerr != nil || aerr != nil {
		return o, a, &UnsupportedPlatformError{OS: osName, CPU: cpuName}
	}
	return o, a, nil
}

// Host returns the platform of the running process. Either value may be
// unknown when the Go port has no counterpart here.
func Host() (OSType, CPUArch) {
	o, _ := ParseOS(runtime.GOOS)
	a, _ := ParseArch(runtime.GOARCH)
	return o, a
}

type platformKey struct {
	os  OSType
	cpu CPUArch
}

var eightByteAligned = map[platformKey]bool{
	{Windows, X86_64}:   true,
	{Linux, X86_32}:     true,
	{Linux, X86_64}:     true,
	{Linux, IA64}:       true,
	{SunOS, SPARC_32}:   true,
	{SunOS, SPARCV9_64}: true,
	{SunOS, X86_32}:     true,
	{SunOS, X86_64}:     true,
	{MacOS, PPC}:        true,
	{MacOS, X86_32}:     true,
	{MacOS, X86_64}:     true,
	{FreeBSD, X86_32}:   true,
	{FreeBSD, X86_64}:   true,
	{HPUX, PA_RISC2_0}:  true,
}

// StructAlignment returns the alignment used when an aggregate is embedded in
// another aggregate. Pairs outside the table are an error; no default is
// guessed.
func StructAlignment(o OSType, a CPUArch) (int64, error) {
	// Windows packs 32-bit x86 aggregates at 4 bytes.
	if (o == Windows && a == X86_32) || a == ARM_32 {
		return 4, nil
	}
	if eightByteAligned[platformKey{o, a}] {
		return 8, nil
	}
	return 0, &UnsupportedPlatformError{OS: o.String(), CPU: a.String()}
}
