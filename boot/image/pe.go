package image

import (
	"bytes"
	"debug/pe"

	"github.com/queso-fuego/uefi-dev-sub000/boot"
)

var (
	errBadPE       = &boot.Error{Module: "image", Message: "malformed PE header", Kind: boot.KindFormat}
	errNotPE32Plus = &boot.Error{Module: "image", Message: "PE image is not PE32+", Kind: boot.KindFormat}
)

func peMachine(m uint16) Machine {
	switch m {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return MachineAMD64
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return MachineARM64
	default:
		return MachineUnknown
	}
}

// parsePE reduces a PE32+ executable to a segment table. The headers form
// a read-only segment at ImageBase and every section is placed at
// ImageBase+VirtualAddress. Base relocations are not applied so the image
// must be loaded at its preferred base.
func parsePE(data []byte) (*Image, *boot.Error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errBadPE
	}

	oh, ok := f.OptionalHeader.(*pe.OptionalHeader64)
	if !ok {
		return nil, errNotPE32Plus
	}

	if f.Characteristics&pe.IMAGE_FILE_EXECUTABLE_IMAGE == 0 {
		return nil, errNotExecutable
	}

	img := &Image{
		Format:  FormatPE,
		Machine: peMachine(f.Machine),
		Entry:   oh.ImageBase + uint64(oh.AddressOfEntryPoint),
	}

	if oh.SizeOfHeaders != 0 {
		img.Segments = append(img.Segments, Segment{
			VirtAddr: oh.ImageBase,
			PhysAddr: oh.ImageBase,
			FileSize: min(uint64(oh.SizeOfHeaders), uint64(len(data))),
			MemSize:  uint64(oh.SizeOfHeaders),
			Align:    uint64(oh.SectionAlignment),
			Flags:    SegmentRead,
		})
	}

	for _, sec := range f.Sections {
		memSize := uint64(sec.VirtualSize)
		if memSize == 0 {
			memSize = uint64(sec.Size)
		}
		if memSize == 0 {
			continue
		}

		fileSize := min(uint64(sec.Size), memSize)
		if sec.Offset == 0 {
			fileSize = 0
		}

		var flags SegmentFlag
		if sec.Characteristics&pe.IMAGE_SCN_MEM_READ != 0 {
			flags |= SegmentRead
		}
		if sec.Characteristics&pe.IMAGE_SCN_MEM_WRITE != 0 {
			flags |= SegmentWrite
		}
		if sec.Characteristics&pe.IMAGE_SCN_MEM_EXECUTE != 0 {
			flags |= SegmentExec
		}

		img.Segments = append(img.Segments, Segment{
			VirtAddr:   oh.ImageBase + uint64(sec.VirtualAddress),
			PhysAddr:   oh.ImageBase + uint64(sec.VirtualAddress),
			FileOffset: uint64(sec.Offset),
			FileSize:   fileSize,
			MemSize:    memSize,
			Align:      uint64(oh.SectionAlignment),
			Flags:      flags,
		})
	}

	return img, nil
}
