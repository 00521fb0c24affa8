package arch

import (
	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/cpu"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm/vmm"
)

var (
	// the following functions are mocked by tests.
	physAddrBitsFn      = cpu.PhysAddrBits
	loadGDTFn           = cpu.LoadGDT
	loadTaskRegisterFn  = cpu.LoadTaskRegister
	reloadSegmentsFn    = cpu.ReloadSegments
	switchPDTFn         = cpu.SwitchPDT
	activePDTFn         = cpu.ActivePDT
	flushTLBEntryFn     = cpu.FlushTLBEntry
	disableInterruptsFn = cpu.DisableInterrupts
	haltFn              = cpu.Halt
	jumpFn              = cpu.JumpToKernel
)

// X86_64 implements Arch for 64-bit x86 processors running in long mode.
type X86_64 struct {
	tables mm.Frame
	desc   Descriptors
}

// Current returns the Arch implementation for the processor the loader was
// built for.
func Current() Arch {
	return &X86_64{tables: mm.InvalidFrame}
}

// Name implements Arch.
func (a *X86_64) Name() string { return "amd64" }

// PhysAddrBits implements Arch.
func (a *X86_64) PhysAddrBits() uint8 { return physAddrBitsFn() }

// SetupDescriptorTables allocates one frame for the GDT, TSS and GDTR and
// stackPages frames for the exception stack, then fills them in. The GDT
// holds a null descriptor, a 64-bit ring 0 code segment, a ring 0 data
// segment and a 64-bit TSS descriptor.
func (a *X86_64) SetupDescriptorTables(alloc mm.FrameAllocator, stackPages uintptr) *boot.Error {
	if stackPages == 0 {
		stackPages = 1
	}

	tables, err := alloc.AllocFrames(1)
	if err != nil {
		return err
	}
	boot.Memset(tables.Address(), 0, mm.PageSize)

	stack, err := alloc.AllocFrames(stackPages)
	if err != nil {
		return err
	}
	boot.Memset(stack.Address(), 0, stackPages*mm.PageSize)

	stackTop := uint64(stack.Address() + stackPages*mm.PageSize)
	writeDescriptorTables(tables.Address(), stackTop)

	a.tables = tables
	a.desc = Descriptors{
		GDTBase:           uint64(tables.Address() + gdtOffset),
		GDTLimit:          uint16(segmentEnd*8 - 1),
		CodeSelector:      CodeSelector,
		DataSelector:      DataSelector,
		TSSSelector:       TSSSelector,
		ExceptionStackTop: stackTop,
	}

	return nil
}

// Descriptors implements Arch.
func (a *X86_64) Descriptors() Descriptors { return a.desc }

// LoadDescriptorTables loads GDTR, reloads the segment registers and loads
// the task register. FS and GS are left as they are. Calling it before
// SetupDescriptorTables is fatal.
func (a *X86_64) LoadDescriptorTables() {
	if !a.tables.Valid() {
		panicFn(errNoDescriptorTables)
		return
	}

	loadGDTFn(a.tables.Address() + gdtrOffset)
	reloadSegmentsFn(CodeSelector, DataSelector)
	loadTaskRegisterFn(TSSSelector)
}

// InstallAddressSpace implements Arch. Writing CR3 flushes every
// non-global TLB entry.
func (a *X86_64) InstallAddressSpace(as *vmm.AddressSpace) {
	switchPDTFn(as.Root().Address())
}

// DisableInterrupts implements Arch.
func (a *X86_64) DisableInterrupts() { disableInterruptsFn() }

// Halt implements Arch.
func (a *X86_64) Halt() { haltFn() }

// MapPage implements Arch.
func (a *X86_64) MapPage(as *vmm.AddressSpace, page mm.Page, frame mm.Frame, flags vmm.PageTableEntryFlag) *boot.Error {
	return as.Map(page, frame, flags)
}

// UnmapPage implements Arch.
func (a *X86_64) UnmapPage(as *vmm.AddressSpace, page mm.Page) *boot.Error {
	if err := as.Unmap(page); err != nil {
		return err
	}

	if activePDTFn() == as.Root().Address() {
		flushTLBEntryFn(page.Address())
	}
	return nil
}

// Jump implements Arch.
func (a *X86_64) Jump(entry, stackTop, arg uintptr) {
	jumpFn(entry, stackTop, arg)
}
