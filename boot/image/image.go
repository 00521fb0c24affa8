// Package image reduces ELF and PE/COFF kernel images to a common table of
// loadable segments and loads them into an address space.
package image

import (
	"github.com/queso-fuego/uefi-dev-sub000/boot"
)

// Format identifies the container format of a kernel image.
type Format uint8

// The supported image formats.
const (
	FormatUnknown Format = iota
	FormatELF
	FormatPE
)

// String implements fmt.Stringer for Format.
func (f Format) String() string {
	switch f {
	case FormatELF:
		return "ELF"
	case FormatPE:
		return "PE"
	default:
		return "unknown"
	}
}

// Machine identifies the processor architecture an image was built for.
type Machine uint8

// The machines known to the loader.
const (
	MachineUnknown Machine = iota
	MachineAMD64
	MachineARM64
)

// String implements fmt.Stringer for Machine.
func (m Machine) String() string {
	switch m {
	case MachineAMD64:
		return "amd64"
	case MachineARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// SegmentFlag describes the access permissions of a segment.
type SegmentFlag uint8

// The segment permission bits.
const (
	SegmentRead SegmentFlag = 1 << iota
	SegmentWrite
	SegmentExec
)

// String returns the permissions in "rwx" notation.
func (f SegmentFlag) String() string {
	perm := []byte("---")
	if f&SegmentRead != 0 {
		perm[0] = 'r'
	}
	if f&SegmentWrite != 0 {
		perm[1] = 'w'
	}
	if f&SegmentExec != 0 {
		perm[2] = 'x'
	}
	return string(perm)
}

// Segment is a loadable region of an image.
type Segment struct {
	VirtAddr uint64
	PhysAddr uint64

	// FileOffset and FileSize locate the bytes backing the segment
	// inside the image. Memory past FileSize up to MemSize is
	// zero-filled when the segment is loaded.
	FileOffset uint64
	FileSize   uint64
	MemSize    uint64

	Align uint64
	Flags SegmentFlag
}

// End returns the first virtual address past the segment.
func (s *Segment) End() uint64 {
	return s.VirtAddr + s.MemSize
}

// Image is a parsed kernel image.
type Image struct {
	Format   Format
	Machine  Machine
	Entry    uint64
	Segments []Segment

	data []byte
}

var (
	errUnknownFormat   = &boot.Error{Module: "image", Message: "unrecognized image format", Kind: boot.KindFormat}
	errMachineMismatch = &boot.Error{Module: "image", Message: "image machine does not match the running architecture", Kind: boot.KindFormat}
	errNoSegments      = &boot.Error{Module: "image", Message: "image has no loadable segments", Kind: boot.KindFormat}
	errSegmentSize     = &boot.Error{Module: "image", Message: "segment file size exceeds its memory size", Kind: boot.KindFormat}
	errSegmentBounds   = &boot.Error{Module: "image", Message: "segment data lies outside the image", Kind: boot.KindFormat}
	errSegmentAlign    = &boot.Error{Module: "image", Message: "segment alignment is invalid", Kind: boot.KindFormat}
	errSegmentWraps    = &boot.Error{Module: "image", Message: "segment wraps around the address space", Kind: boot.KindFormat}
	errBadEntry        = &boot.Error{Module: "image", Message: "entry point is not inside an executable segment", Kind: boot.KindFormat}
)

// Parse detects the format of data and parses it for the machine the loader
// is running on.
func Parse(data []byte) (*Image, *boot.Error) {
	return ParseFor(data, hostMachine)
}

// ParseFor detects the format of data and parses it, rejecting images that
// were not built for machine. Parsing never allocates frames or touches
// memory outside data.
func ParseFor(data []byte, machine Machine) (*Image, *boot.Error) {
	var (
		img *Image
		err *boot.Error
	)

	switch {
	case len(data) >= 4 && data[0] == 0x7f && data[1] == 'E' && data[2] == 'L' && data[3] == 'F':
		img, err = parseELF(data)
	case len(data) >= 2 && data[0] == 'M' && data[1] == 'Z':
		img, err = parsePE(data)
	default:
		return nil, errUnknownFormat
	}

	if err != nil {
		return nil, err
	}

	if img.Machine != machine {
		return nil, errMachineMismatch
	}

	img.data = data
	if err = img.validate(); err != nil {
		return nil, err
	}

	return img, nil
}

// validate checks the format independent segment table invariants.
func (img *Image) validate() *boot.Error {
	if len(img.Segments) == 0 {
		return errNoSegments
	}

	entryOK := false
	for i := range img.Segments {
		seg := &img.Segments[i]

		if seg.FileSize > seg.MemSize {
			return errSegmentSize
		}

		if seg.FileOffset+seg.FileSize < seg.FileOffset || seg.FileOffset+seg.FileSize > uint64(len(img.data)) {
			return errSegmentBounds
		}

		if seg.End() < seg.VirtAddr {
			return errSegmentWraps
		}

		if seg.Align > 1 && seg.Align&(seg.Align-1) != 0 {
			return errSegmentAlign
		}

		if seg.Flags&SegmentExec != 0 && img.Entry >= seg.VirtAddr && img.Entry < seg.End() {
			entryOK = true
		}
	}

	if !entryOK {
		return errBadEntry
	}

	return nil
}

// Extent returns the lowest and the first past the highest virtual address
// covered by the image segments.
func (img *Image) Extent() (uint64, uint64) {
	if len(img.Segments) == 0 {
		return 0, 0
	}

	lo, hi := img.Segments[0].VirtAddr, img.Segments[0].End()
	for _, seg := range img.Segments[1:] {
		if seg.VirtAddr < lo {
			lo = seg.VirtAddr
		}
		if seg.End() > hi {
			hi = seg.End()
		}
	}
	return lo, hi
}
