// Package imagetest builds synthetic ELF and PE/COFF kernel images for
// tests.
package imagetest

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"encoding/binary"
)

// Segment describes a PT_LOAD program header. A zero Align selects the page
// size.
type Segment struct {
	Vaddr uint64
	Memsz uint64
	Flags elf.ProgFlag
	Data  []byte
	Align uint64
}

// BuildELF assembles an ELF64 executable containing one PT_LOAD program
// header per segment. Segment data is laid out so that file offsets are
// congruent to the virtual addresses modulo the page size.
func BuildELF(machine elf.Machine, entry uint64, segs []Segment) []byte {
	const (
		ehdrSize = 64
		phdrSize = 56
	)

	var (
		progs  = make([]elf.Prog64, len(segs))
		cursor = uint64(ehdrSize + phdrSize*len(segs))
	)

	for i, seg := range segs {
		align := seg.Align
		if align == 0 {
			align = 0x1000
		}

		off := cursor
		if align > 1 {
			for off%align != seg.Vaddr%align {
				off++
			}
		}
		cursor = off + uint64(len(seg.Data))

		progs[i] = elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(seg.Flags),
			Off:    off,
			Vaddr:  seg.Vaddr,
			Paddr:  seg.Vaddr,
			Filesz: uint64(len(seg.Data)),
			Memsz:  seg.Memsz,
			Align:  align,
		}
	}

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     ehdrSize,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(len(segs)),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, &hdr)
	binary.Write(buf, binary.LittleEndian, progs)

	out := make([]byte, cursor)
	copy(out, buf.Bytes())
	for i, seg := range segs {
		copy(out[progs[i].Off:], seg.Data)
	}
	return out
}

// Section describes a PE section. Sections without Data have no raw data.
type Section struct {
	Name            string
	RVA             uint32
	VirtualSize     uint32
	Characteristics uint32
	Data            []byte
}

// BuildPE assembles a PE32+ executable with the supplied sections. Raw
// section data starts at file offset 0x200.
func BuildPE(machine uint16, imageBase uint64, entryRVA uint32, secs []Section) []byte {
	const (
		peOffset    = 0x40
		headersSize = 0x200
	)

	fh := pe.FileHeader{
		Machine:              machine,
		NumberOfSections:     uint16(len(secs)),
		SizeOfOptionalHeader: uint16(binary.Size(pe.OptionalHeader64{})),
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_LARGE_ADDRESS_AWARE,
	}

	oh := pe.OptionalHeader64{
		Magic:               0x20b,
		AddressOfEntryPoint: entryRVA,
		ImageBase:           imageBase,
		SectionAlignment:    0x1000,
		FileAlignment:       0x200,
		SizeOfHeaders:       headersSize,
		Subsystem:           pe.IMAGE_SUBSYSTEM_EFI_APPLICATION,
		NumberOfRvaAndSizes: 16,
	}

	var (
		headers = make([]pe.SectionHeader32, len(secs))
		cursor  = uint32(headersSize)
	)

	for i, sec := range secs {
		copy(headers[i].Name[:], sec.Name)
		headers[i].VirtualSize = sec.VirtualSize
		headers[i].VirtualAddress = sec.RVA
		headers[i].Characteristics = sec.Characteristics
		if len(sec.Data) != 0 {
			headers[i].SizeOfRawData = uint32(len(sec.Data))
			headers[i].PointerToRawData = cursor
			cursor += (uint32(len(sec.Data)) + 0x1ff) &^ 0x1ff
		}
	}

	buf := new(bytes.Buffer)
	buf.Write([]byte{'M', 'Z'})
	buf.Write(make([]byte, 0x3c-2))
	binary.Write(buf, binary.LittleEndian, uint32(peOffset))
	buf.Write([]byte{'P', 'E', 0, 0})
	binary.Write(buf, binary.LittleEndian, &fh)
	binary.Write(buf, binary.LittleEndian, &oh)
	binary.Write(buf, binary.LittleEndian, headers)

	out := make([]byte, cursor)
	copy(out, buf.Bytes())
	for i, sec := range secs {
		copy(out[headers[i].PointerToRawData:], sec.Data)
	}
	return out
}

// Pattern returns size bytes counting up from seed.
func Pattern(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = seed + byte(i)
	}
	return data
}
