package image

import (
	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm/vmm"
)

// Mapper is implemented by address spaces that segments can be loaded into.
type Mapper interface {
	Map(page mm.Page, frame mm.Frame, flags vmm.PageTableEntryFlag) *boot.Error
	Lookup(page mm.Page) (mm.Frame, vmm.PageTableEntryFlag, *boot.Error)
	Protect(page mm.Page, flags vmm.PageTableEntryFlag) *boot.Error
}

var errSegmentOverlap = &boot.Error{Module: "image", Message: "segment overlaps a page that is already mapped", Kind: boot.KindMappingConflict}

// pageFlags returns the page table flags for a segment. Segments are always
// mapped supervisor-only.
func (f SegmentFlag) pageFlags() vmm.PageTableEntryFlag {
	flags := vmm.FlagPresent
	if f&SegmentWrite != 0 {
		flags |= vmm.FlagRW
	}
	return flags
}

// Load maps every segment into mapper at its virtual address. Pages mapped
// by a previous segment of the image are reused and their flags widened; all
// other pages of a segment are backed by one contiguous run of frames
// obtained from alloc. A page that mapper already maps on entry fails the
// load with a KindMappingConflict error. The file bytes are copied in and
// the remainder of each segment up to its memory size is zero-filled.
func (img *Image) Load(mapper Mapper, alloc mm.FrameAllocator) *boot.Error {
	loaded := make(map[mm.Page]struct{})
	for i := range img.Segments {
		if err := img.loadSegment(&img.Segments[i], mapper, alloc, loaded); err != nil {
			return err
		}
	}
	return nil
}

// loadSegment loads seg and records the pages it maps in loaded.
func (img *Image) loadSegment(seg *Segment, mapper Mapper, alloc mm.FrameAllocator, loaded map[mm.Page]struct{}) *boot.Error {
	if seg.MemSize == 0 {
		return nil
	}

	var (
		firstPage = mm.PageFromAddress(uintptr(seg.VirtAddr))
		lastPage  = mm.PageFromAddress(uintptr(seg.End() - 1))
		frames    = make([]mm.Frame, lastPage-firstPage+1)
		wantFlags = seg.Flags.pageFlags()
		fresh     uintptr
	)

	for i := range frames {
		page := firstPage + mm.Page(i)
		frame, flags, err := mapper.Lookup(page)
		if err != nil {
			frames[i] = mm.InvalidFrame
			fresh++
			continue
		}

		if _, ok := loaded[page]; !ok {
			return errSegmentOverlap
		}

		frames[i] = frame
		if flags&wantFlags != wantFlags {
			if err = mapper.Protect(page, flags|wantFlags); err != nil {
				return err
			}
		}
	}

	if fresh != 0 {
		run, err := alloc.AllocFrames(fresh)
		if err != nil {
			return err
		}
		boot.Memset(run.Address(), 0, fresh*mm.PageSize)

		for i := range frames {
			if frames[i].Valid() {
				continue
			}

			frames[i] = run
			run++
			if err = mapper.Map(firstPage+mm.Page(i), frames[i], wantFlags); err != nil {
				return err
			}
			loaded[firstPage+mm.Page(i)] = struct{}{}
		}
	}

	fileData := img.data[seg.FileOffset : seg.FileOffset+seg.FileSize]
	visitRange(frames, firstPage, uintptr(seg.VirtAddr), uintptr(seg.FileSize), func(dst, off, size uintptr) {
		boot.CopyIn(dst, fileData[off:off+size])
	})
	visitRange(frames, firstPage, uintptr(seg.VirtAddr+seg.FileSize), uintptr(seg.MemSize-seg.FileSize), func(dst, _, size uintptr) {
		boot.Memset(dst, 0, size)
	})

	return nil
}

// visitRange splits [virtAddr, virtAddr+size) at page boundaries and invokes
// fn with the physical address backing each piece, its offset from virtAddr
// and its length.
func visitRange(frames []mm.Frame, firstPage mm.Page, virtAddr, size uintptr, fn func(dst, off, size uintptr)) {
	for off := uintptr(0); off < size; {
		addr := virtAddr + off
		pageOff := addr & (mm.PageSize - 1)
		n := min(size-off, mm.PageSize-pageOff)

		frame := frames[mm.PageFromAddress(addr)-firstPage]
		fn(frame.Address()+pageOff, off, n)
		off += n
	}
}
