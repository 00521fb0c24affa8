// Package cpu provides access to the privileged processor instructions
// needed while handing control over to a kernel.
package cpu

var (
	cpuidFn = ID
)

const (
	// extendedAddressLeaf is the CPUID leaf that reports the supported
	// physical and linear address widths.
	extendedAddressLeaf = 0x80000008

	// defaultPhysAddrBits is used when the CPU does not implement
	// extendedAddressLeaf.
	defaultPhysAddrBits = 36

	// maxPhysAddrBits is the architectural limit for 4-level paging.
	maxPhysAddrBits = 52
)

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt disables interrupts and stops instruction execution. Halt never
// returns.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// LoadGDT loads the 10-byte GDT pseudo-descriptor stored at gdtrAddr into
// the GDTR register.
func LoadGDT(gdtrAddr uintptr)

// LoadTaskRegister loads the task register with the supplied TSS selector.
func LoadTaskRegister(sel uint16)

// ReloadSegments reloads CS with the code selector (via a far return) and
// DS, ES and SS with the data selector. FS and GS are left untouched.
func ReloadSegments(code, data uint16)

// JumpToKernel switches the stack pointer to stackTop and calls entry
// passing arg in both RDI and RCX so that kernels built for either the
// System V or the Microsoft x64 calling convention receive it as their first
// argument. JumpToKernel halts the CPU if entry ever returns.
func JumpToKernel(entry, stackTop, arg uintptr)

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// Vendor returns the 12-character vendor identification string reported
// by CPUID leaf 0, for example "GenuineIntel" or "AuthenticAMD".
func Vendor() string {
	var id [12]byte

	_, ebx, ecx, edx := cpuidFn(0)
	for i, reg := range [3]uint32{ebx, edx, ecx} {
		for j := 0; j < 4; j++ {
			id[i*4+j] = byte(reg >> (8 * j))
		}
	}
	return string(id[:])
}

// PhysAddrBits returns the number of physical address bits supported by the
// CPU.
func PhysAddrBits() uint8 {
	maxLeaf, _, _, _ := cpuidFn(0x80000000)
	if maxLeaf < extendedAddressLeaf {
		return defaultPhysAddrBits
	}

	eax, _, _, _ := cpuidFn(extendedAddressLeaf)
	bits := uint8(eax & 0xff)
	switch {
	case bits == 0:
		return defaultPhysAddrBits
	case bits > maxPhysAddrBits:
		return maxPhysAddrBits
	}

	return bits
}
