// Package arch wraps the processor specific steps of handing control over
// to a kernel behind a common interface.
package arch

import (
	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm/vmm"
)

// Descriptors reports the descriptor tables prepared for the kernel.
type Descriptors struct {
	GDTBase  uint64
	GDTLimit uint16

	CodeSelector uint16
	DataSelector uint16
	TSSSelector  uint16

	// ExceptionStackTop is the stack used for ring transitions and by
	// the first interrupt stack table slot.
	ExceptionStackTop uint64
}

// Arch is implemented by each supported processor architecture.
type Arch interface {
	// Name returns the architecture name.
	Name() string

	// PhysAddrBits returns the supported physical address width.
	PhysAddrBits() uint8

	// SetupDescriptorTables builds the segment and task tables in frames
	// obtained from alloc. stackPages sets the size of the dedicated
	// exception stack. The tables are not loaded.
	SetupDescriptorTables(alloc mm.FrameAllocator, stackPages uintptr) *boot.Error

	// Descriptors describes the tables built by SetupDescriptorTables.
	Descriptors() Descriptors

	// LoadDescriptorTables activates the tables built by
	// SetupDescriptorTables. Interrupts must be disabled.
	LoadDescriptorTables()

	// InstallAddressSpace makes as the active translation hierarchy and
	// flushes every non-global TLB entry.
	InstallAddressSpace(as *vmm.AddressSpace)

	// DisableInterrupts masks maskable interrupts.
	DisableInterrupts()

	// Halt stops the processor with interrupts disabled. It never
	// returns.
	Halt()

	// MapPage maps page to frame in as.
	MapPage(as *vmm.AddressSpace, page mm.Page, frame mm.Frame, flags vmm.PageTableEntryFlag) *boot.Error

	// UnmapPage removes the mapping for page from as. If as is the active
	// address space its TLB entry is invalidated.
	UnmapPage(as *vmm.AddressSpace, page mm.Page) *boot.Error

	// Jump switches to stackTop and calls entry with arg as its first
	// argument. It never returns.
	Jump(entry, stackTop, arg uintptr)
}

var errNoDescriptorTables = &boot.Error{Module: "arch", Message: "descriptor tables have not been set up"}
