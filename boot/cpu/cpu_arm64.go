// Package cpu provides access to the privileged processor instructions
// needed while handing control over to a kernel.
//
// The arm64 port is a stand-in: every primitive is a no-op until the
// EL1 translation table and exception level handling is implemented.
package cpu

// DisableInterrupts disables interrupt handling.
func DisableInterrupts() {}

// Halt stops instruction execution. Halt never returns.
func Halt() {
	for {
	}
}

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(_ uintptr) {}

// SwitchPDT sets the root translation table.
func SwitchPDT(_ uintptr) {}

// ActivePDT returns the physical address of the currently active
// translation table.
func ActivePDT() uintptr { return 0 }

// Vendor returns the CPU vendor identification string.
func Vendor() string { return "arm64" }

// PhysAddrBits returns the number of physical address bits supported by the
// CPU.
func PhysAddrBits() uint8 { return 48 }

// JumpToKernel transfers control to entry. Until the arm64 port is complete
// it halts instead.
func JumpToKernel(_, _, _ uintptr) {
	Halt()
}
