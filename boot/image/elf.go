package image

import (
	"bytes"
	"debug/elf"

	"github.com/queso-fuego/uefi-dev-sub000/boot"
)

var (
	errBadELF         = &boot.Error{Module: "image", Message: "malformed ELF header", Kind: boot.KindFormat}
	errUnsupportedELF = &boot.Error{Module: "image", Message: "ELF image is not a 64-bit little-endian file", Kind: boot.KindFormat}
	errNotExecutable  = &boot.Error{Module: "image", Message: "image is not an executable", Kind: boot.KindFormat}
)

func elfMachine(m elf.Machine) Machine {
	switch m {
	case elf.EM_X86_64:
		return MachineAMD64
	case elf.EM_AARCH64:
		return MachineARM64
	default:
		return MachineUnknown
	}
}

// parseELF reduces the PT_LOAD program headers of an ELF64 executable to
// a segment table.
func parseELF(data []byte) (*Image, *boot.Error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errBadELF
	}

	if f.Class != elf.ELFCLASS64 || f.Data != elf.ELFDATA2LSB {
		return nil, errUnsupportedELF
	}

	if f.Type != elf.ET_EXEC {
		return nil, errNotExecutable
	}

	img := &Image{
		Format:  FormatELF,
		Machine: elfMachine(f.Machine),
		Entry:   f.Entry,
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		// Loadable segments must satisfy vaddr = offset (mod align).
		if prog.Align > 1 {
			if prog.Align&(prog.Align-1) != 0 || prog.Vaddr%prog.Align != prog.Off%prog.Align {
				return nil, errSegmentAlign
			}
		}

		var flags SegmentFlag
		if prog.Flags&elf.PF_R != 0 {
			flags |= SegmentRead
		}
		if prog.Flags&elf.PF_W != 0 {
			flags |= SegmentWrite
		}
		if prog.Flags&elf.PF_X != 0 {
			flags |= SegmentExec
		}

		img.Segments = append(img.Segments, Segment{
			VirtAddr:   prog.Vaddr,
			PhysAddr:   prog.Paddr,
			FileOffset: prog.Off,
			FileSize:   prog.Filesz,
			MemSize:    prog.Memsz,
			Align:      prog.Align,
			Flags:      flags,
		})
	}

	return img, nil
}
