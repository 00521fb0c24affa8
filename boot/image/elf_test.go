package image

import (
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/image/imagetest"
)

func TestParseELF(t *testing.T) {
	data := imagetest.BuildELF(elf.EM_X86_64, 0xffffffff80100010, []imagetest.Segment{
		{Vaddr: 0xffffffff80100000, Memsz: 0x200, Flags: elf.PF_R | elf.PF_X, Data: imagetest.Pattern(0x200, 1)},
		{Vaddr: 0xffffffff80101000, Memsz: 0x3000, Flags: elf.PF_R | elf.PF_W, Data: imagetest.Pattern(0x100, 2)},
	})

	img, err := ParseFor(data, MachineAMD64)
	if err != nil {
		t.Fatal(err)
	}

	if img.Format != FormatELF || img.Machine != MachineAMD64 {
		t.Fatalf("expected an amd64 ELF image; got %s/%s", img.Format, img.Machine)
	}

	if exp := uint64(0xffffffff80100010); img.Entry != exp {
		t.Fatalf("expected entry 0x%x; got 0x%x", exp, img.Entry)
	}

	specs := []struct {
		virt     uint64
		fileSize uint64
		memSize  uint64
		flags    string
	}{
		{0xffffffff80100000, 0x200, 0x200, "r-x"},
		{0xffffffff80101000, 0x100, 0x3000, "rw-"},
	}

	if len(img.Segments) != len(specs) {
		t.Fatalf("expected %d segments; got %d", len(specs), len(img.Segments))
	}

	for specIndex, spec := range specs {
		seg := img.Segments[specIndex]
		if seg.VirtAddr != spec.virt || seg.FileSize != spec.fileSize || seg.MemSize != spec.memSize {
			t.Errorf("[spec %d] unexpected segment %+v", specIndex, seg)
		}
		if got := seg.Flags.String(); got != spec.flags {
			t.Errorf("[spec %d] expected flags %q; got %q", specIndex, spec.flags, got)
		}
		if seg.FileOffset%0x1000 != seg.VirtAddr%0x1000 {
			t.Errorf("[spec %d] expected offset to be congruent to the virtual address", specIndex)
		}
	}

	lo, hi := img.Extent()
	if lo != 0xffffffff80100000 || hi != 0xffffffff80104000 {
		t.Fatalf("unexpected extent [0x%x, 0x%x)", lo, hi)
	}
}

func TestParseELFErrors(t *testing.T) {
	valid := func() []byte {
		return imagetest.BuildELF(elf.EM_X86_64, 0x1000, []imagetest.Segment{
			{Vaddr: 0x1000, Memsz: 0x200, Flags: elf.PF_R | elf.PF_X, Data: imagetest.Pattern(0x200, 0)},
		})
	}

	// Offsets into the ELF64 header and the first program header.
	const (
		typeOffset    = 16
		entryOffset   = 24
		classOffset   = elf.EI_CLASS
		phdrOffset    = 64
		phFlagsOffset = phdrOffset + 4
		phOffOffset   = phdrOffset + 8
		phFileSzOff   = phdrOffset + 32
		phMemSzOff    = phdrOffset + 40
		phAlignOff    = phdrOffset + 48
	)

	specs := []struct {
		descr   string
		mutate  func([]byte) []byte
		machine Machine
		expErr  *boot.Error
	}{
		{
			"truncated header",
			func(b []byte) []byte { return b[:20] },
			MachineAMD64,
			errBadELF,
		},
		{
			"32-bit class",
			func(b []byte) []byte { b[classOffset] = byte(elf.ELFCLASS32); return b },
			MachineAMD64,
			errBadELF,
		},
		{
			"relocatable object",
			func(b []byte) []byte {
				binary.LittleEndian.PutUint16(b[typeOffset:], uint16(elf.ET_REL))
				return b
			},
			MachineAMD64,
			errNotExecutable,
		},
		{
			"machine mismatch",
			func(b []byte) []byte { return b },
			MachineARM64,
			errMachineMismatch,
		},
		{
			"file size exceeds memory size",
			func(b []byte) []byte {
				binary.LittleEndian.PutUint64(b[phMemSzOff:], 0x100)
				return b
			},
			MachineAMD64,
			errSegmentSize,
		},
		{
			"segment data outside file",
			func(b []byte) []byte {
				binary.LittleEndian.PutUint64(b[phFileSzOff:], 0x200)
				binary.LittleEndian.PutUint64(b[phMemSzOff:], 0x200)
				binary.LittleEndian.PutUint64(b[phOffOffset:], uint64(len(b)))
				binary.LittleEndian.PutUint64(b[phAlignOff:], 0)
				return b
			},
			MachineAMD64,
			errSegmentBounds,
		},
		{
			"alignment not a power of two",
			func(b []byte) []byte {
				binary.LittleEndian.PutUint64(b[phAlignOff:], 0x3000)
				return b
			},
			MachineAMD64,
			errSegmentAlign,
		},
		{
			"offset not congruent to vaddr",
			func(b []byte) []byte {
				binary.LittleEndian.PutUint64(b[phOffOffset:], binary.LittleEndian.Uint64(b[phOffOffset:])-8)
				return b
			},
			MachineAMD64,
			errSegmentAlign,
		},
		{
			"entry outside segments",
			func(b []byte) []byte {
				binary.LittleEndian.PutUint64(b[entryOffset:], 0x5000)
				return b
			},
			MachineAMD64,
			errBadEntry,
		},
		{
			"entry in non-executable segment",
			func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[phFlagsOffset:], uint32(elf.PF_R|elf.PF_W))
				return b
			},
			MachineAMD64,
			errBadEntry,
		},
	}

	for specIndex, spec := range specs {
		img, err := ParseFor(spec.mutate(valid()), spec.machine)
		if err != spec.expErr {
			t.Errorf("[spec %d] %s: expected error %v; got %v", specIndex, spec.descr, spec.expErr, err)
			continue
		}
		if img != nil {
			t.Errorf("[spec %d] %s: expected a nil image on error", specIndex, spec.descr)
		}
		if err.Kind != boot.KindFormat {
			t.Errorf("[spec %d] %s: expected a format error; got kind %s", specIndex, spec.descr, err.Kind)
		}
	}
}

func TestParseNoLoadSegments(t *testing.T) {
	data := imagetest.BuildELF(elf.EM_X86_64, 0x1000, nil)
	if _, err := ParseFor(data, MachineAMD64); err != errNoSegments {
		t.Fatalf("expected errNoSegments; got %v", err)
	}
}

func TestParseUnknownFormat(t *testing.T) {
	specs := [][]byte{
		nil,
		[]byte("#!/bin/sh"),
		{0x7f, 'E', 'L'},
	}

	for specIndex, data := range specs {
		if _, err := Parse(data); err != errUnknownFormat {
			t.Errorf("[spec %d] expected errUnknownFormat; got %v", specIndex, err)
		}
	}
}
