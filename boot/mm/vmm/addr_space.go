// Package vmm builds the 4-level translation tables that the kernel starts
// executing with.
package vmm

import (
	"unsafe"

	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
)

var (
	// ptePtrFn returns a pointer to the supplied entry address. Tables are
	// reached through their physical address which the firmware keeps
	// identity-mapped while boot services are active.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}

	// ErrInvalidMapping is returned when trying to lookup a virtual memory
	// address that is not yet mapped.
	ErrInvalidMapping = &boot.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errMappingConflict = &boot.Error{Module: "vmm", Message: "virtual page already mapped to a different frame", Kind: boot.KindMappingConflict}
)

// AddressSpace owns a top-level page table and the hierarchy below it. New
// tables are drawn from the frame allocator the address space was created
// with and are never released.
type AddressSpace struct {
	root     mm.Frame
	alloc    mm.FrameAllocator
	physMask uintptr
}

// NewAddressSpace allocates and clears a top-level table. physAddrBits is
// the physical address width reported by the CPU; every address stored in
// an entry is masked to it.
func NewAddressSpace(alloc mm.FrameAllocator, physAddrBits uint8) (*AddressSpace, *boot.Error) {
	root, err := alloc.AllocFrames(1)
	if err != nil {
		return nil, err
	}

	boot.Memset(root.Address(), 0, mm.PageSize)

	return &AddressSpace{
		root:     root,
		alloc:    alloc,
		physMask: physAddrMask(physAddrBits),
	}, nil
}

// Root returns the frame that holds the top-level table. Its address is the
// value to load into the page table base register.
func (as *AddressSpace) Root() mm.Frame {
	return as.root
}

// PhysMask returns the mask applied to addresses stored in table entries.
func (as *AddressSpace) PhysMask() uintptr {
	return as.physMask
}

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address starting at
// the root table, calling walkFn with the entry that corresponds to each
// level. walkFn must make the entry it is given point to a table before
// returning true for any level but the last one.
func (as *AddressSpace) walk(virtAddr uintptr, walkFn pageTableWalker) {
	tableAddr := as.root.Address()
	for level := uint8(0); level < pageLevels; level++ {
		// Extract the bits from virtual address that correspond to the
		// index in this level's page table
		entryIndex := (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		pte := (*pageTableEntry)(ptePtrFn(tableAddr + (entryIndex << mm.PointerShift)))

		if !walkFn(level, pte) {
			return
		}

		tableAddr = pte.Frame().Address()
	}
}

// Map establishes a mapping between a virtual page and a physical frame.
// Missing tables are allocated and cleared on the way down.
//
// Mapping a page to the frame it already points to is a no-op; the entry
// keeps its flags. Use Protect to change them. Mapping a page that points to
// a different frame fails with a KindMappingConflict error and leaves the
// existing entry untouched.
func (as *AddressSpace) Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *boot.Error {
	var (
		err    *boot.Error
		target = mm.FrameFromAddress(frame.Address() & as.physMask)
	)

	flags = (flags | FlagPresent) & entryFlagMask

	as.walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			if pte.HasFlags(FlagPresent) {
				if pte.Frame() != target {
					err = errMappingConflict
				}
				return false
			}

			*pte = 0
			pte.SetFrame(target, as.physMask)
			pte.SetFlags(flags)
			return true
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents.
		if !pte.HasFlags(FlagPresent) {
			var tableFrame mm.Frame
			if tableFrame, err = as.alloc.AllocFrames(1); err != nil {
				return false
			}

			boot.Memset(tableFrame.Address(), 0, mm.PageSize)

			*pte = 0
			pte.SetFrame(tableFrame, as.physMask)
			pte.SetFlags(FlagPresent | FlagRW)
		}

		// Access rights are the intersection of all levels so the
		// intermediate entries must grant user access when a leaf does.
		if flags&FlagUserAccessible != 0 {
			pte.SetFlags(FlagUserAccessible)
		}

		return true
	})

	return err
}

// MapRange maps pageCount consecutive pages starting at virtAddr to the
// frames starting at physAddr. Both addresses are rounded down to a page
// boundary. A zero pageCount is a no-op.
func (as *AddressSpace) MapRange(virtAddr, physAddr, pageCount uintptr, flags PageTableEntryFlag) *boot.Error {
	page := mm.PageFromAddress(virtAddr)
	frame := mm.FrameFromAddress(physAddr)

	for ; pageCount > 0; pageCount, page, frame = pageCount-1, page+1, frame+1 {
		if err := as.Map(page, frame, flags); err != nil {
			return err
		}
	}

	return nil
}

// IdentityMapRegion establishes an identity mapping to the physical memory
// region which starts at the given frame and ends at frame + pages(size).
// The size argument is always rounded up to the nearest page boundary.
// IdentityMapRegion returns back the Page that corresponds to the region
// start.
func (as *AddressSpace) IdentityMapRegion(startFrame mm.Frame, size uintptr, flags PageTableEntryFlag) (mm.Page, *boot.Error) {
	if err := as.MapRange(startFrame.Address(), startFrame.Address(), mm.PageCount(size), flags); err != nil {
		return 0, err
	}

	return mm.Page(startFrame), nil
}

// Protect replaces the flags of the leaf entry for page. The page must
// already be mapped. FlagPresent is always kept.
func (as *AddressSpace) Protect(page mm.Page, flags PageTableEntryFlag) *boot.Error {
	pte, err := as.pteForAddress(page.Address())
	if err != nil {
		return err
	}

	pte.ClearFlags(entryFlagMask)
	pte.SetFlags(flags | FlagPresent)
	return nil
}

// Unmap clears the leaf entry for page. Tables that become empty are kept.
// The active TLB is not touched; address spaces are built before they are
// installed.
func (as *AddressSpace) Unmap(page mm.Page) *boot.Error {
	var err *boot.Error

	as.walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pteLevel == pageLevels-1 {
			*pte = 0
		}
		return true
	})

	return err
}

// Lookup returns the frame and flags of the leaf entry for page or
// ErrInvalidMapping if the page is not mapped.
func (as *AddressSpace) Lookup(page mm.Page) (mm.Frame, PageTableEntryFlag, *boot.Error) {
	pte, err := as.pteForAddress(page.Address())
	if err != nil {
		return mm.InvalidFrame, 0, err
	}

	return pte.Frame(), pte.Flags(), nil
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (as *AddressSpace) Translate(virtAddr uintptr) (uintptr, *boot.Error) {
	pte, err := as.pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return pte.Frame().Address() + PageOffset(virtAddr), nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1)
}

// pteForAddress returns the final page table entry that corresponds to a
// particular virtual address.
func (as *AddressSpace) pteForAddress(virtAddr uintptr) (*pageTableEntry, *boot.Error) {
	var (
		err   *boot.Error
		entry *pageTableEntry
	)

	as.walk(virtAddr, func(_ uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			entry = nil
			err = ErrInvalidMapping
			return false
		}

		entry = pte
		return true
	})

	return entry, err
}
