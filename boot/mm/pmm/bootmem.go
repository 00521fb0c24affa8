// Package pmm implements the physical frame allocator that the loader uses
// to build page tables and stage the kernel image.
package pmm

import (
	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/kfmt"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
	"github.com/queso-fuego/uefi-dev-sub000/efi"
)

// lowMemoryLimit is the first physical address the allocator will hand out.
// The area below it holds real-mode structures that firmware, option ROMs
// and application processor trampolines expect to find untouched.
const lowMemoryLimit = 0x100000

var (
	errOutOfMemory  = &boot.Error{Module: "boot_mem_alloc", Message: "out of memory", Kind: boot.KindResourceExhaustion}
	errInvalidCount = &boot.Error{Module: "boot_mem_alloc", Message: "frame count must be greater than zero"}
)

// Run describes a range of contiguous frames issued by the allocator.
type Run struct {
	Frame mm.Frame
	Count uintptr
}

// Address returns the physical address of the first frame in the run.
func (r Run) Address() uintptr {
	return r.Frame.Address()
}

// BootMemAllocator is a forward-only physical frame allocator that carves
// frames out of the EfiConventionalMemory regions of a firmware memory map.
//
// Allocations are tracked via a cursor that points to the first frame that
// has not been issued yet. Frames are never freed: every frame handed out
// either backs a page table or the kernel image and has to survive the
// transfer of control to the kernel.
//
// The allocator is not safe for concurrent use.
type BootMemAllocator struct {
	memMap *efi.MemoryMap

	// next is the lowest frame that may be issued.
	next mm.Frame

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	runs []Run
}

// New returns an allocator that issues frames from the usable regions of
// memMap. The map may be unsorted.
func New(memMap *efi.MemoryMap) *BootMemAllocator {
	return &BootMemAllocator{
		memMap: memMap,
		next:   mm.FrameFromAddress(lowMemoryLimit),
	}
}

// AllocFrame reserves a single frame.
func (alloc *BootMemAllocator) AllocFrame() (mm.Frame, *boot.Error) {
	return alloc.AllocFrames(1)
}

// AllocFrames reserves count contiguous frames inside a single usable region
// and returns the first one. Among all the candidate runs at or above the
// cursor the one with the lowest address is selected so that the returned
// addresses always increase.
func (alloc *BootMemAllocator) AllocFrames(count uintptr) (mm.Frame, *boot.Error) {
	if count == 0 {
		return mm.InvalidFrame, errInvalidCount
	}

	found := mm.InvalidFrame
	alloc.memMap.Visit(func(region *efi.MemoryDescriptor) bool {
		if region.Type != efi.EfiConventionalMemory {
			return true
		}

		// Reported addresses may not be page-aligned; round up to get
		// the start frame and round down to get the end frame.
		pageSizeMinus1 := uint64(mm.PageSize - 1)
		startFrame := mm.Frame(((region.PhysicalStart + pageSizeMinus1) &^ pageSizeMinus1) >> mm.PageShift)
		endFrame := mm.Frame((region.PhysicalEnd() &^ pageSizeMinus1) >> mm.PageShift)

		// Skip over already allocated frames
		if startFrame < alloc.next {
			startFrame = alloc.next
		}

		if endFrame <= startFrame || uintptr(endFrame-startFrame) < count {
			return true
		}

		if startFrame < found {
			found = startFrame
		}
		return true
	})

	if !found.Valid() {
		return mm.InvalidFrame, errOutOfMemory
	}

	alloc.next = found + mm.Frame(count)
	alloc.allocCount += uint64(count)
	alloc.recordRun(found, count)

	return found, nil
}

func (alloc *BootMemAllocator) recordRun(frame mm.Frame, count uintptr) {
	if n := len(alloc.runs); n != 0 {
		last := &alloc.runs[n-1]
		if last.Frame+mm.Frame(last.Count) == frame {
			last.Count += count
			return
		}
	}

	alloc.runs = append(alloc.runs, Run{Frame: frame, Count: count})
}

// Runs returns the issued frames as a list of runs sorted by address where
// physically adjacent allocations are coalesced.
func (alloc *BootMemAllocator) Runs() []Run {
	return alloc.runs
}

// AllocCount returns the number of frames issued so far.
func (alloc *BootMemAllocator) AllocCount() uint64 {
	return alloc.allocCount
}

// PrintMemoryMap prints the firmware memory map and the amount of memory
// the allocator may draw from.
func (alloc *BootMemAllocator) PrintMemoryMap() {
	kfmt.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree uint64
	alloc.memMap.Visit(func(region *efi.MemoryDescriptor) bool {
		kfmt.Printf("\t[0x%16x - 0x%16x], pages: %8d, type: %s\n", region.PhysicalStart, region.PhysicalEnd(), region.NumberOfPages, region.Type.String())

		if region.Type == efi.EfiConventionalMemory {
			totalFree += region.Size()
		}
		return true
	})
	kfmt.Printf("[boot_mem_alloc] available memory: %dKb\n", totalFree/1024)
}
