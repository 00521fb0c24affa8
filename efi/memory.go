package efi

import (
	"unsafe"

	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/u-root/u-root/pkg/boot/bzimage"
)

// PageSize is the EFI page size in bytes.
const PageSize = 4096

// MemoryType is an EFI_MEMORY_TYPE value.
type MemoryType uint32

// EFI_MEMORY_TYPE
const (
	EfiReservedMemoryType MemoryType = iota
	EfiLoaderCode
	EfiLoaderData
	EfiBootServicesCode
	EfiBootServicesData
	EfiRuntimeServicesCode
	EfiRuntimeServicesData
	EfiConventionalMemory
	EfiUnusableMemory
	EfiACPIReclaimMemory
	EfiACPIMemoryNVS
	EfiMemoryMappedIO
	EfiMemoryMappedIOPortSpace
	EfiPalCode
	EfiPersistentMemory
	EfiUnacceptedMemoryType
	EfiMaxMemoryType
)

// Memory types at or above OSMemoryTypeBase are reserved for use by the
// operating system loader.
const (
	OSMemoryTypeBase MemoryType = 0x80000000

	// KernelData marks frames that hold the kernel image, its stack,
	// the page tables and descriptor tables built for it and the handoff
	// parameters. They stay in use after the handoff.
	KernelData = OSMemoryTypeBase
)

var memoryTypeNames = [...]string{
	"reserved",
	"loader code",
	"loader data",
	"boot services code",
	"boot services data",
	"runtime services code",
	"runtime services data",
	"conventional",
	"unusable",
	"ACPI reclaim",
	"ACPI NVS",
	"MMIO",
	"MMIO port space",
	"PAL code",
	"persistent",
	"unaccepted",
}

// String implements fmt.Stringer for MemoryType.
func (t MemoryType) String() string {
	switch {
	case int(t) < len(memoryTypeNames):
		return memoryTypeNames[t]
	case t == KernelData:
		return "kernel data"
	case t >= OSMemoryTypeBase:
		return "OS defined"
	}
	return "unknown"
}

// Advanced Configuration and Power Interface Specification (ACPI)
// Version 6.0 - Table 15-312 Address Range Types
const addressRangePersistentMemory = 7

// MemoryDescriptor is an EFI_MEMORY_DESCRIPTOR. Firmware may report
// descriptors larger than this structure; always step through a map using
// its DescriptorSize.
type MemoryDescriptor struct {
	Type          MemoryType
	_             uint32
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// PhysicalEnd returns the first physical address past the descriptor.
func (d *MemoryDescriptor) PhysicalEnd() uint64 {
	return d.PhysicalStart + d.NumberOfPages*PageSize
}

// Size returns the descriptor length in bytes.
func (d *MemoryDescriptor) Size() uint64 {
	return d.NumberOfPages * PageSize
}

// E820 converts the descriptor to an x86 E820 entry describing the range
// after boot services have been exited.
func (d *MemoryDescriptor) E820() bzimage.E820Entry {
	e := bzimage.E820Entry{
		Addr: d.PhysicalStart,
		Size: d.Size(),
	}

	// Unified Extensible Firmware Interface (UEFI) Specification
	// Version 2.10 - Table 7.10: Memory Type Usage after ExitBootServices()
	switch d.Type {
	case EfiLoaderCode, EfiLoaderData, EfiBootServicesCode, EfiBootServicesData, EfiConventionalMemory:
		e.MemType = bzimage.RAM
	case EfiPersistentMemory:
		e.MemType = addressRangePersistentMemory
	case EfiACPIReclaimMemory:
		e.MemType = bzimage.ACPI
	case EfiACPIMemoryNVS:
		e.MemType = bzimage.NVS
	case KernelData:
		// Owned by the kernel; it must not be treated as free RAM.
		e.MemType = bzimage.Reserved
	default:
		e.MemType = bzimage.Reserved
	}

	return e
}

var errShortDescriptor = &boot.Error{Module: "efi", Message: "memory map descriptor size smaller than EFI_MEMORY_DESCRIPTOR", Kind: boot.KindService}

// MemoryMap is a snapshot of the firmware memory map held in a caller
// supplied buffer.
type MemoryMap struct {
	MapSize           uint64
	MapKey            uint64
	DescriptorSize    uint64
	DescriptorVersion uint32

	buf []byte
}

// NewMemoryMap returns a MemoryMap that receives descriptors into buf. buf
// must be 8-byte aligned.
func NewMemoryMap(buf []byte) *MemoryMap {
	return &MemoryMap{buf: buf}
}

// Buffer returns the backing buffer.
func (m *MemoryMap) Buffer() []byte {
	return m.buf
}

// Address returns the address of the first descriptor.
func (m *MemoryMap) Address() uintptr {
	if len(m.buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&m.buf[0]))
}

// Len returns the number of descriptors in the map.
func (m *MemoryMap) Len() int {
	if m.DescriptorSize == 0 {
		return 0
	}
	return int(m.MapSize / m.DescriptorSize)
}

// Descriptor returns the i-th descriptor. The returned pointer aliases the
// map buffer.
func (m *MemoryMap) Descriptor(i int) *MemoryDescriptor {
	return (*MemoryDescriptor)(unsafe.Pointer(&m.buf[uint64(i)*m.DescriptorSize]))
}

// Validate checks that the map layout can be safely iterated.
func (m *MemoryMap) Validate() *boot.Error {
	if m.DescriptorSize < uint64(unsafe.Sizeof(MemoryDescriptor{})) || m.MapSize > uint64(len(m.buf)) {
		return errShortDescriptor
	}
	return nil
}

// Visit invokes visitor for each descriptor in map order. Iteration stops
// when visitor returns false.
func (m *MemoryMap) Visit(visitor func(*MemoryDescriptor) bool) {
	for i, n := 0, m.Len(); i < n; i++ {
		if !visitor(m.Descriptor(i)) {
			return
		}
	}
}

// E820 appends the map, converted to E820 entries, to dst. Physically
// adjacent ranges of the same E820 type are merged.
func (m *MemoryMap) E820(dst []bzimage.E820Entry) []bzimage.E820Entry {
	start := len(dst)
	m.Visit(func(d *MemoryDescriptor) bool {
		if d.NumberOfPages == 0 {
			return true
		}

		e := d.E820()
		if n := len(dst); n > start {
			last := &dst[n-1]
			if last.MemType == e.MemType && last.Addr+last.Size == e.Addr {
				last.Size += e.Size
				return true
			}
		}
		dst = append(dst, e)
		return true
	})
	return dst
}
