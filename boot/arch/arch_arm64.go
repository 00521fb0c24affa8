package arch

import (
	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/cpu"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm/vmm"
)

// AArch64 is a stand-in Arch for 64-bit ARM processors. The descriptor
// steps are no-ops; the translation tables built by vmm use the x86-64
// entry format and are never installed.
type AArch64 struct{}

// Current returns the Arch implementation for the processor the loader was
// built for.
func Current() Arch {
	return &AArch64{}
}

// Name implements Arch.
func (a *AArch64) Name() string { return "arm64" }

// PhysAddrBits implements Arch.
func (a *AArch64) PhysAddrBits() uint8 { return cpu.PhysAddrBits() }

// SetupDescriptorTables implements Arch.
func (a *AArch64) SetupDescriptorTables(_ mm.FrameAllocator, _ uintptr) *boot.Error { return nil }

// Descriptors implements Arch.
func (a *AArch64) Descriptors() Descriptors { return Descriptors{} }

// LoadDescriptorTables implements Arch.
func (a *AArch64) LoadDescriptorTables() {}

// InstallAddressSpace implements Arch.
func (a *AArch64) InstallAddressSpace(_ *vmm.AddressSpace) {}

// DisableInterrupts implements Arch.
func (a *AArch64) DisableInterrupts() { cpu.DisableInterrupts() }

// Halt implements Arch.
func (a *AArch64) Halt() { cpu.Halt() }

// MapPage implements Arch.
func (a *AArch64) MapPage(as *vmm.AddressSpace, page mm.Page, frame mm.Frame, flags vmm.PageTableEntryFlag) *boot.Error {
	return as.Map(page, frame, flags)
}

// UnmapPage implements Arch.
func (a *AArch64) UnmapPage(as *vmm.AddressSpace, page mm.Page) *boot.Error {
	return as.Unmap(page)
}

// Jump implements Arch.
func (a *AArch64) Jump(entry, stackTop, arg uintptr) {
	cpu.JumpToKernel(entry, stackTop, arg)
}
