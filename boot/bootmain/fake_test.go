package bootmain

import (
	"debug/elf"
	"runtime"
	"unsafe"

	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/arch"
	"github.com/queso-fuego/uefi-dev-sub000/boot/image/imagetest"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm/mmtest"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm/vmm"
	"github.com/queso-fuego/uefi-dev-sub000/efi"
)

const (
	testDescriptorSize = 48

	// Frames of the memory arena that are reported as usable. The frame
	// between the two regions is reported as reserved.
	lowRegionFrames  = 6
	memArenaFrames   = 192
	highRegionFrames = memArenaFrames - lowRegionFrames - 1

	// Frames backing firmware pool allocations.
	mapArenaFrames = 32

	testEntry = 0xffffffff80100000
)

var (
	errStaleMapKey = &boot.Error{Module: "fake_fw", Message: "stale map key", Kind: boot.KindService}
	errNoFile      = &boot.Error{Module: "fake_fw", Message: "no such file", Kind: boot.KindService}
	errNoGOP       = &boot.Error{Module: "fake_fw", Message: "no graphics output", Kind: boot.KindService}
	errReserve     = &boot.Error{Module: "fake_fw", Message: "reservation failed", Kind: boot.KindService}
)

type pageRange struct {
	addr  uintptr
	pages uintptr
}

// fakeFirmware reports a memory map whose usable regions are backed by a Go
// arena and records every service call.
type fakeFirmware struct {
	mem    *mmtest.Arena
	mapMem *mmtest.Arena

	files map[string][]byte
	fb    efi.Framebuffer
	noGOP bool

	mapKey uint64

	// tooSmallCalls GetMemoryMap calls report a buffer that is too small.
	tooSmallCalls int

	// exitFailures ExitBootServices calls fail and change the map key.
	exitFailures int

	// reserveFailAt selects the AllocateAddress call that fails; zero
	// disables the failure.
	reserveFailAt int

	getMapCalls int
	anyPages    []pageRange
	reserved    []pageRange
	reserveType []efi.MemoryType
	freed       []pageRange
	exitKeys    []uint64
}

func newFakeFirmware(kernel []byte) *fakeFirmware {
	return &fakeFirmware{
		mem:    mmtest.NewArena(memArenaFrames),
		mapMem: mmtest.NewArena(mapArenaFrames),
		files:  map[string][]byte{`\EFI\gopher\kernel.elf`: kernel},
		fb:     efi.Framebuffer{Base: 0xfd000000, Size: 0x3000, Width: 64, Height: 48, PixelsPerScanLine: 64},
		mapKey: 0x1000,
	}
}

func (f *fakeFirmware) descriptors() []efi.MemoryDescriptor {
	base := uint64(f.mem.Base())
	return []efi.MemoryDescriptor{
		{Type: efi.EfiConventionalMemory, PhysicalStart: base, NumberOfPages: lowRegionFrames},
		{Type: efi.EfiReservedMemoryType, PhysicalStart: base + uint64(lowRegionFrames*mm.PageSize), NumberOfPages: 1},
		{Type: efi.EfiConventionalMemory, PhysicalStart: base + uint64((lowRegionFrames+1)*mm.PageSize), NumberOfPages: highRegionFrames},
		{Type: efi.EfiLoaderData, PhysicalStart: uint64(f.mapMem.Base()), NumberOfPages: mapArenaFrames},
		{Type: efi.EfiMemoryMappedIO, PhysicalStart: 0xfee00000, NumberOfPages: 1},
	}
}

func (f *fakeFirmware) GetMemoryMap(m *efi.MemoryMap) *boot.Error {
	f.getMapCalls++

	descs := f.descriptors()
	size := uint64(len(descs) * testDescriptorSize)

	m.DescriptorSize = testDescriptorSize
	m.DescriptorVersion = 1

	buf := m.Buffer()
	if f.tooSmallCalls > 0 || uint64(len(buf)) < size {
		if f.tooSmallCalls > 0 {
			f.tooSmallCalls--
		}
		m.MapSize = uint64(len(buf)) + uint64(mm.PageSize)
		return efi.ErrBufferTooSmall
	}

	for i, d := range descs {
		*(*efi.MemoryDescriptor)(unsafe.Pointer(&buf[i*testDescriptorSize])) = d
	}
	m.MapSize = size
	m.MapKey = f.mapKey
	return nil
}

func (f *fakeFirmware) AllocatePages(allocateType efi.AllocateType, memType efi.MemoryType, pages, addr uintptr) (uintptr, *boot.Error) {
	if allocateType == efi.AllocateAddress {
		if f.reserveFailAt != 0 && len(f.reserved)+1 == f.reserveFailAt {
			return 0, errReserve
		}
		f.reserved = append(f.reserved, pageRange{addr, pages})
		f.reserveType = append(f.reserveType, memType)
		return addr, nil
	}

	frame, err := f.mapMem.AllocFrames(pages)
	if err != nil {
		return 0, err
	}
	f.anyPages = append(f.anyPages, pageRange{frame.Address(), pages})
	return frame.Address(), nil
}

func (f *fakeFirmware) FreePages(addr, pages uintptr) *boot.Error {
	f.freed = append(f.freed, pageRange{addr, pages})
	return nil
}

func (f *fakeFirmware) ExitBootServices(mapKey uint64) *boot.Error {
	f.exitKeys = append(f.exitKeys, mapKey)

	if f.exitFailures > 0 {
		f.exitFailures--
		f.mapKey++
		return errStaleMapKey
	}

	if mapKey != f.mapKey {
		return errStaleMapKey
	}
	return nil
}

func (f *fakeFirmware) ReadFile(path string) ([]byte, *boot.Error) {
	data, ok := f.files[path]
	if !ok {
		return nil, errNoFile
	}
	return data, nil
}

func (f *fakeFirmware) Framebuffer() (efi.Framebuffer, *boot.Error) {
	if f.noGOP {
		return efi.Framebuffer{}, errNoGOP
	}
	return f.fb, nil
}

func (f *fakeFirmware) RuntimeServicesTable() uintptr { return 0x7fee0000 }

func (f *fakeFirmware) ConfigurationTables() (uintptr, uint64) { return 0x7fef0000, 3 }

// fakeArch builds its descriptor frame with the supplied allocator and
// records the privileged operations instead of executing them.
type fakeArch struct {
	calls []string

	tables    mm.Frame
	installed *vmm.AddressSpace

	entry, stackTop, arg uintptr
}

func (a *fakeArch) Name() string        { return "fake" }
func (a *fakeArch) PhysAddrBits() uint8 { return 48 }

func (a *fakeArch) SetupDescriptorTables(alloc mm.FrameAllocator, stackPages uintptr) *boot.Error {
	frame, err := alloc.AllocFrames(1 + stackPages)
	if err != nil {
		return err
	}
	a.tables = frame
	return nil
}

func (a *fakeArch) Descriptors() arch.Descriptors {
	return arch.Descriptors{
		GDTBase:      uint64(a.tables.Address()),
		GDTLimit:     39,
		CodeSelector: 0x08,
		DataSelector: 0x10,
		TSSSelector:  0x18,
	}
}

func (a *fakeArch) LoadDescriptorTables() { a.calls = append(a.calls, "lgdt") }
func (a *fakeArch) InstallAddressSpace(as *vmm.AddressSpace) {
	a.installed = as
	a.calls = append(a.calls, "cr3")
}
func (a *fakeArch) DisableInterrupts() { a.calls = append(a.calls, "cli") }
func (a *fakeArch) Halt()              { a.calls = append(a.calls, "hlt") }

func (a *fakeArch) MapPage(as *vmm.AddressSpace, page mm.Page, frame mm.Frame, flags vmm.PageTableEntryFlag) *boot.Error {
	return as.Map(page, frame, flags)
}

func (a *fakeArch) UnmapPage(as *vmm.AddressSpace, page mm.Page) *boot.Error {
	return as.Unmap(page)
}

func (a *fakeArch) Jump(entry, stackTop, arg uintptr) {
	a.entry, a.stackTop, a.arg = entry, stackTop, arg
	a.calls = append(a.calls, "jmp")
}

func hostELFMachine() elf.Machine {
	if runtime.GOARCH == "arm64" {
		return elf.EM_AARCH64
	}
	return elf.EM_X86_64
}

var (
	testCode = imagetest.Pattern(0x200, 0x11)
	testData = imagetest.Pattern(0x10, 0x22)
)

func testKernel(machine elf.Machine) []byte {
	return imagetest.BuildELF(machine, testEntry, []imagetest.Segment{
		{Vaddr: testEntry, Memsz: 0x200, Flags: elf.PF_R | elf.PF_X, Data: testCode},
		{Vaddr: testEntry + 0x1000, Memsz: 0x2000, Flags: elf.PF_R | elf.PF_W, Data: testData},
	})
}
