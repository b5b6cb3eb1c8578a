package dwarfimport

import (
	"debug/elf"
	"debug/macho"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/blacktop/go-dwarf"

	"github.com/raymyers/ralph-layout/pkg/platform"
)

// ErrUnknownFormat is returned for files that are neither ELF nor Mach-O.
var ErrUnknownFormat = errors.New("not an ELF or Mach-O file")

// ErrNoDebugInfo is returned when a binary carries no DWARF type information.
var ErrNoDebugInfo = errors.New("no DWARF debug info")

// Binary is an object file's target platform and raw DWARF sections.
type Binary struct {
	Path         string
	OS           platform.OSType
	CPU          platform.CPUArch
	LittleEndian bool

	sections map[string][]byte
}

// debugSections are the sections dwarf.New consumes.
var debugSections = []string{"abbrev", "info", "str", "line", "ranges"}

// Open reads the target platform and DWARF sections of an ELF or Mach-O
// binary.
func Open(path string) (*Binary, error) {
	if ef, err := elf.Open(path); err == nil {
		defer ef.Close()
		return fromELF(path, ef)
	}
	if mf, err := macho.Open(path); err == nil {
		defer mf.Close()
		return fromMachO(path, mf)
	}
	return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

func fromELF(path string, f *elf.File) (*Binary, error) {
	b := &Binary{
		Path:         path,
		OS:           elfOS(f.OSABI),
		CPU:          elfArch(f.Machine, f.Class),
		LittleEndian: f.ByteOrder == binary.LittleEndian,
		sections:     make(map[string][]byte),
	}
	for _, name := range debugSections {
		s := f.Section(".debug_" + name)
		if s == nil {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("%s: section %s: %w", path, s.Name, err)
		}
		b.sections[name] = data
	}
	return b, nil
}

func fromMachO(path string, f *macho.File) (*Binary, error) {
	b := &Binary{
		Path:         path,
		OS:           platform.MacOS,
		CPU:          machoArch(f.Cpu),
		LittleEndian: f.ByteOrder == binary.LittleEndian,
		sections:     make(map[string][]byte),
	}
	for _, s := range f.Sections {
		name, ok := strings.CutPrefix(s.Name, "__debug_")
		if !ok {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("%s: section %s: %w", path, s.Name, err)
		}
		b.sections[name] = data
	}
	return b, nil
}

// DWARF parses the binary's debug sections.
func (b *Binary) DWARF() (*dwarf.Data, error) {
	if len(b.sections["info"]) == 0 {
		return nil, fmt.Errorf("%s: %w", b.Path, ErrNoDebugInfo)
	}
	s := b.sections
	d, err := dwarf.New(s["abbrev"], nil, nil, s["info"], s["line"], nil, s["ranges"], s["str"])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Path, err)
	}
	return d, nil
}

func elfOS(abi elf.OSABI) platform.OSType {
	switch abi {
	case elf.ELFOSABI_FREEBSD:
		return platform.FreeBSD
	case elf.ELFOSABI_SOLARIS:
		return platform.SunOS
	case elf.ELFOSABI_HPUX:
		return platform.HPUX
	}
	return platform.Linux
}

func elfArch(m elf.Machine, class elf.Class) platform.CPUArch {
	is64 := class == elf.ELFCLASS64
	switch m {
	case elf.EM_386:
		return platform.X86_32
	case elf.EM_X86_64:
		return platform.X86_64
	case elf.EM_IA_64:
		return platform.IA64
	case elf.EM_ARM:
		return platform.ARM_32
	case elf.EM_AARCH64:
		return platform.ARM_64
	case elf.EM_PPC:
		return platform.PPC
	case elf.EM_PPC64:
		return platform.PPC_64
	case elf.EM_SPARC, elf.EM_SPARC32PLUS:
		return platform.SPARC_32
	case elf.EM_SPARCV9:
		return platform.SPARCV9_64
	case elf.EM_PARISC:
		return platform.PA_RISC2_0
	case elf.EM_MIPS:
		if is64 {
			return platform.MIPS_64
		}
		return platform.MIPS_32
	}
	return platform.UnknownArch
}

func machoArch(c macho.Cpu) platform.CPUArch {
	switch c {
	case macho.Cpu386:
		return platform.X86_32
	case macho.CpuAmd64:
		return platform.X86_64
	case macho.CpuArm:
		return platform.ARM_32
	case macho.CpuArm64:
		return platform.ARM_64
	case macho.CpuPpc:
		return platform.PPC
	case macho.CpuPpc64:
		return platform.PPC_64
	}
	return platform.UnknownArch
}
