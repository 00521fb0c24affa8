package vmm

const (
	// pageLevels is the number of translation levels of the 4-level
	// paging scheme.
	pageLevels = 4

	// ptePhysPageMask extracts the physical address stored in a page table
	// entry. Bits 12-51 hold the address for the widest supported
	// physical address size.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// maxPhysAddrBits is the widest physical address the entry format can
	// hold.
	maxPhysAddrBits = 52
)

var (
	// pageLevelBits defines the number of virtual address bits that
	// correspond to each page level. Each level uses 9 bits which amounts
	// to 512 entries per table.
	pageLevelBits = [pageLevels]uint8{
		9,
		9,
		9,
		9,
	}

	// pageLevelShifts defines the shift required to access each page table
	// component of a virtual address.
	pageLevelShifts = [pageLevels]uint8{
		39,
		30,
		21,
		12,
	}
)

const (
	// FlagPresent is set when the entry points to a table or a frame.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode code can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// entryFlagMask is the set of flags that may be stored in an entry.
	entryFlagMask = FlagPresent | FlagRW | FlagUserAccessible
)
