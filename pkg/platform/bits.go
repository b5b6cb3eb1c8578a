package platform

import (
	"strings"
	"unsafe"
)

// PointerBitsProbe reports the native pointer width in bits, or any other
// value when it cannot tell.
type PointerBitsProbe interface {
	PointerSizeInBits() int
}

// PointerBitsFunc adapts a function to PointerBitsProbe.
type PointerBitsFunc func() int

// PointerSizeInBits implements PointerBitsProbe.
func (f PointerBitsFunc) PointerSizeInBits() int {
	return f()
}

// HostPointerBits probes the Go runtime's pointer width.
var HostPointerBits PointerBitsFunc = func() int {
	return int(unsafe.Sizeof(uintptr(0))) * 8
}

// bitWidthRule matches an OS name prefix and an exact CPU name.
type bitWidthRule struct {
	osPrefixes []string
	cpu        string
	bits       int
}

var macOSPrefixes = []string{"mac os", "macos"}

var bitWidthTable = []bitWidthRule{
	{[]string{"windows"}, "x86", 32},
	{[]string{"windows"}, "arm", 32},
	{[]string{"linux"}, "i386", 32},
	{[]string{"linux"}, "x86", 32},
	{macOSPrefixes, "ppc", 32},
	{macOSPrefixes, "i386", 32},
	{[]string{"darwin"}, "ppc", 32},
	{[]string{"darwin"}, "i386", 32},
	{[]string{"sunos"}, "sparc", 32},
	{[]string{"sunos"}, "x86", 32},
	{[]string{"freebsd"}, "i386", 32},
	{[]string{"hp-ux"}, "pa_risc2.0", 32},

	{[]string{"windows"}, "amd64", 64},
	{[]string{"linux"}, "amd64", 64},
	{[]string{"linux"}, "x86_64", 64},
	{[]string{"linux"}, "ia64", 64},
	{macOSPrefixes, "x86_64", 64},
	{[]string{"darwin"}, "x86_64", 64},
	{[]string{"sunos"}, "sparcv9", 64},
	{[]string{"sunos"}, "amd64", 64},
}

// BitWidth returns 32 or 64. The probe is consulted first and trusted when
// it answers 32 or 64; otherwise the OS and CPU names are looked up in a
// fixed table.
func BitWidth(probe PointerBitsProbe, osName, cpu string) (int, error) {
	if probe != nil {
		if bits := probe.PointerSizeInBits(); bits == 32 || bits == 64 {
			return bits, nil
		}
	}
	o := strings.ToLower(osName)
	c := strings.ToLower(cpu)
	for _, rule := range bitWidthTable {
		if c != rule.cpu {
			continue
		}
		for _, prefix := range rule.osPrefixes {
			if strings.HasPrefix(o, prefix) {
				return rule.bits, nil
			}
		}
	}
	return 0, &UnsupportedPlatformError{OS: osName, CPU: cpu}
}

// HostBitWidth returns the bit width of the running process.
func HostBitWidth() (int, error) {
	osName, cpu := hostNames()
	return BitWidth(HostPointerBits, osName, cpu)
}
