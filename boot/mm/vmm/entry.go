package vmm

import (
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uintptr

// pageTableEntry describes a page table entry. These entries encode
// a physical frame address and a set of flags.
type pageTableEntry uintptr

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) == uintptr(flags)
}

// Flags returns the flags stored in the entry.
func (pte pageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(uintptr(pte) & uintptr(entryFlagMask))
}

// SetFlags sets the input list of flags to the page table entry. Flags
// outside of the supported set are dropped.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uintptr(*pte) | uintptr(flags&entryFlagMask))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uintptr(*pte) &^ uintptr(flags))
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() mm.Frame {
	return mm.Frame((uintptr(pte) & ptePhysPageMask) >> mm.PageShift)
}

// SetFrame updates the page table entry to point to the given physical frame.
// Address bits not covered by physMask are dropped.
func (pte *pageTableEntry) SetFrame(frame mm.Frame, physMask uintptr) {
	*pte = (pageTableEntry)((uintptr(*pte) &^ ptePhysPageMask) | (frame.Address() & physMask))
}

// physAddrMask returns the mask that selects the page-aligned address bits
// of a physAddrBits wide physical address.
func physAddrMask(physAddrBits uint8) uintptr {
	if physAddrBits > maxPhysAddrBits {
		physAddrBits = maxPhysAddrBits
	}
	return ((uintptr(1) << physAddrBits) - 1) &^ (mm.PageSize - 1)
}
