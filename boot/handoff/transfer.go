package handoff

import (
	"github.com/queso-fuego/uefi-dev-sub000/boot/arch"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm/vmm"
)

// Transfer hands the processor over to the kernel. It masks interrupts,
// loads the descriptor tables, installs as, switches to stackTop and calls
// entry with the address of params as its only argument.
//
// Transfer diverges. Control coming back from the kernel is a fatal
// condition and the processor is halted.
func Transfer(a arch.Arch, as *vmm.AddressSpace, entry, stackTop uintptr, params *Block) {
	a.DisableInterrupts()
	a.LoadDescriptorTables()
	a.InstallAddressSpace(as)
	a.Jump(entry, stackTop, params.Address())

	a.Halt()
}
