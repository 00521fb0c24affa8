package efi

import "github.com/queso-fuego/uefi-dev-sub000/boot"

// EFI Boot Service offsets
const (
	allocatePages    = 0x28
	freePages        = 0x30
	getMemoryMap     = 0x38
	handleProtocol   = 0x98
	exitBootServices = 0xe8
	locateProtocol   = 0x140
)

// AllocateType is an EFI_ALLOCATE_TYPE value.
type AllocateType int

// EFI_ALLOCATE_TYPE
const (
	AllocateAnyPages AllocateType = iota
	AllocateMaxAddress
	AllocateAddress
	MaxAllocateType
)

// BootServices is the EFI_BOOT_SERVICES table.
type BootServices struct {
	base uintptr
}

// AllocatePages calls EFI_BOOT_SERVICES.AllocatePages() and returns the
// physical address of the allocation. For AllocateAddress, addr selects the
// range; for AllocateMaxAddress it is the highest acceptable address.
func (s *BootServices) AllocatePages(allocateType AllocateType, memoryType MemoryType, pages, addr uintptr) (uintptr, *boot.Error) {
	out.addr = uint64(addr)

	status := callServiceFn(s.base+allocatePages,
		uint64(allocateType),
		uint64(memoryType),
		uint64(pages),
		ptrval(&out.addr),
	)

	if err := parseStatus(status); err != nil {
		return 0, err
	}
	return uintptr(out.addr), nil
}

// FreePages calls EFI_BOOT_SERVICES.FreePages().
func (s *BootServices) FreePages(addr, pages uintptr) *boot.Error {
	return parseStatus(callServiceFn(s.base+freePages, uint64(addr), uint64(pages)))
}

// GetMemoryMap calls EFI_BOOT_SERVICES.GetMemoryMap() storing the
// descriptors in the buffer of m. When the buffer is too small the required
// size is left in m.MapSize and an error satisfying IsBufferTooSmall is
// returned.
func (s *BootServices) GetMemoryMap(m *MemoryMap) *boot.Error {
	m.MapSize = uint64(len(m.buf))

	var bufAddr uint64
	if len(m.buf) != 0 {
		bufAddr = ptrval(&m.buf[0])
	}

	status := callServiceFn(s.base+getMemoryMap,
		ptrval(&m.MapSize),
		bufAddr,
		ptrval(&m.MapKey),
		ptrval(&m.DescriptorSize),
		ptrval(&m.DescriptorVersion),
	)

	if err := parseStatus(status); err != nil {
		return err
	}
	return m.Validate()
}

// ExitBootServices calls EFI_BOOT_SERVICES.ExitBootServices(). After a
// successful return no other boot service may be used.
func (s *BootServices) ExitBootServices(imageHandle uintptr, mapKey uint64) *boot.Error {
	return parseStatus(callServiceFn(s.base+exitBootServices, uint64(imageHandle), mapKey))
}

// HandleProtocol calls EFI_BOOT_SERVICES.HandleProtocol() and returns the
// protocol interface pointer.
func (s *BootServices) HandleProtocol(handle uintptr, guid *GUID) (uintptr, *boot.Error) {
	out.iface = 0

	status := callServiceFn(s.base+handleProtocol,
		uint64(handle),
		ptrval(guid),
		ptrval(&out.iface),
	)

	if err := parseStatus(status); err != nil {
		return 0, err
	}
	return uintptr(out.iface), nil
}

// LocateProtocol calls EFI_BOOT_SERVICES.LocateProtocol() and returns the
// first matching protocol interface pointer.
func (s *BootServices) LocateProtocol(guid *GUID) (uintptr, *boot.Error) {
	out.iface = 0

	status := callServiceFn(s.base+locateProtocol,
		ptrval(guid),
		0,
		ptrval(&out.iface),
	)

	if err := parseStatus(status); err != nil {
		return 0, err
	}
	return uintptr(out.iface), nil
}
