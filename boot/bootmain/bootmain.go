// Package bootmain drives the loader from the firmware entry point to the
// kernel entry point.
package bootmain

import (
	"unsafe"

	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/arch"
	"github.com/queso-fuego/uefi-dev-sub000/boot/config"
	"github.com/queso-fuego/uefi-dev-sub000/boot/handoff"
	"github.com/queso-fuego/uefi-dev-sub000/boot/image"
	"github.com/queso-fuego/uefi-dev-sub000/boot/kfmt"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm/pmm"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm/vmm"
	"github.com/queso-fuego/uefi-dev-sub000/efi"
)

const (
	// KernelBase is the start of the higher half region kernels are
	// linked at. The kernel stack ends right below it.
	KernelBase = uintptr(0xffffffff80000000)

	// mapSlack is the number of descriptors reserved on top of the
	// current memory map size to absorb splits caused by later
	// allocations.
	mapSlack = 16

	// maxMapAttempts bounds the grow-and-retry loop of the initial
	// memory map query.
	maxMapAttempts = 4
)

// Firmware is the set of firmware services used by the boot pipeline.
type Firmware interface {
	GetMemoryMap(m *efi.MemoryMap) *boot.Error
	AllocatePages(allocateType efi.AllocateType, memoryType efi.MemoryType, pages, addr uintptr) (uintptr, *boot.Error)
	FreePages(addr, pages uintptr) *boot.Error
	ExitBootServices(mapKey uint64) *boot.Error

	ReadFile(path string) ([]byte, *boot.Error)
	Framebuffer() (efi.Framebuffer, *boot.Error)

	RuntimeServicesTable() uintptr
	ConfigurationTables() (uintptr, uint64)
}

var (
	errMapQueryFailed = &boot.Error{Module: "bootmain", Message: "unable to size the memory map buffer", Kind: boot.KindService}
	errStageOrder     = &boot.Error{Module: "bootmain", Message: "boot stage out of order"}
	errStackGuard     = &boot.Error{Module: "bootmain", Message: "kernel stack guard page is mapped", Kind: boot.KindMappingConflict}
)

// Loader carries the state threaded through the boot stages.
type Loader struct {
	fw   Firmware
	arch arch.Arch
	cfg  config.Config

	stage Stage

	memMap *efi.MemoryMap
	alloc  *pmm.BootMemAllocator
	img    *image.Image
	fb     efi.Framebuffer
	as     *vmm.AddressSpace
	block  *handoff.Block
}

// New returns a Loader that boots the kernel selected by cfg.
func New(fw Firmware, a arch.Arch, cfg config.Config) *Loader {
	return &Loader{fw: fw, arch: a, cfg: cfg}
}

// Stage returns the last stage the loader completed.
func (l *Loader) Stage() Stage {
	return l.stage
}

// Run executes every boot stage in order. On success control is handed to
// the kernel and Run does not return. An error leaves the loader at the
// last completed stage.
func (l *Loader) Run() *boot.Error {
	for _, step := range []func() *boot.Error{
		l.loadMap,
		l.setupDescriptors,
		l.buildAddressSpace,
		l.exitBootServices,
		l.transfer,
	} {
		if err := step(); err != nil {
			return err
		}
	}

	return nil
}

func (l *Loader) advance(next Stage) *boot.Error {
	if next != l.stage+1 {
		return errStageOrder
	}

	l.stage = next
	kfmt.Printf("[bootmain] stage: %s\n", next.String())
	return nil
}

// loadMap reads and parses the kernel image, queries the framebuffer and
// snapshots the memory map that the frame allocator works from.
func (l *Loader) loadMap() *boot.Error {
	kfmt.Printf("[bootmain] loading %s\n", l.cfg.KernelPath)
	data, err := l.fw.ReadFile(l.cfg.KernelPath)
	if err != nil {
		return err
	}

	if l.img, err = image.Parse(data); err != nil {
		return err
	}

	if l.fb, err = l.fw.Framebuffer(); err != nil {
		kfmt.Printf("[bootmain] no framebuffer: %s\n", err.Message)
		l.fb = efi.Framebuffer{}
	}

	if l.memMap, err = l.queryMemoryMap(); err != nil {
		return err
	}
	l.alloc = pmm.New(l.memMap)

	if l.cfg.Verbose {
		kfmt.Printf("[bootmain] %s cpu (%s), %d physical address bits\n", l.arch.Name(), vendorFn(), l.arch.PhysAddrBits())
		l.alloc.PrintMemoryMap()
		printSegments(l.img)
	}

	return l.advance(StageMapLoaded)
}

// queryMemoryMap fetches the memory map into pages obtained from the
// firmware, growing the buffer until the map fits.
func (l *Loader) queryMemoryMap() (*efi.MemoryMap, *boot.Error) {
	pages := uintptr(1)

	for attempt := 0; attempt < maxMapAttempts; attempt++ {
		addr, err := l.fw.AllocatePages(efi.AllocateAnyPages, efi.EfiLoaderData, pages, 0)
		if err != nil {
			return nil, err
		}

		m := efi.NewMemoryMap(unsafe.Slice((*byte)(unsafe.Pointer(addr)), pages*mm.PageSize))
		if err = l.fw.GetMemoryMap(m); err == nil {
			return m, nil
		}

		l.fw.FreePages(addr, pages)
		if !efi.IsBufferTooSmall(err) {
			return nil, err
		}

		descSize := uintptr(m.DescriptorSize)
		if descSize < unsafe.Sizeof(efi.MemoryDescriptor{}) {
			descSize = unsafe.Sizeof(efi.MemoryDescriptor{})
		}
		pages = mm.PageCount(uintptr(m.MapSize) + mapSlack*descSize)
	}

	return nil, errMapQueryFailed
}

func (l *Loader) setupDescriptors() *boot.Error {
	if err := l.arch.SetupDescriptorTables(l.alloc, l.cfg.ISTPages); err != nil {
		return err
	}

	return l.advance(StageDescriptorsReady)
}

// buildAddressSpace identity maps the firmware memory map and the
// framebuffer, loads the kernel segments, maps the kernel stack, allocates
// the handoff block and finally reserves every issued frame with the
// firmware.
func (l *Loader) buildAddressSpace() *boot.Error {
	as, err := vmm.NewAddressSpace(l.alloc, l.arch.PhysAddrBits())
	if err != nil {
		return err
	}

	l.memMap.Visit(func(d *efi.MemoryDescriptor) bool {
		if d.NumberOfPages == 0 {
			return true
		}

		err = as.MapRange(uintptr(d.PhysicalStart), uintptr(d.PhysicalStart), uintptr(d.NumberOfPages), vmm.FlagPresent|vmm.FlagRW)
		return err == nil
	})
	if err != nil {
		return err
	}

	if l.fb.Base != 0 && l.fb.Size != 0 {
		if _, err = as.IdentityMapRegion(mm.FrameFromAddress(uintptr(l.fb.Base)), uintptr(l.fb.Size), vmm.FlagPresent|vmm.FlagRW); err != nil {
			return err
		}
	}

	if err = l.img.Load(as, l.alloc); err != nil {
		return err
	}

	if err = l.mapStack(as); err != nil {
		return err
	}

	mapBytes := uintptr(l.memMap.MapSize + mapSlack*l.memMap.DescriptorSize)
	if l.block, err = handoff.Allocate(l.alloc, mapBytes); err != nil {
		return err
	}

	if err = l.reserveFrames(); err != nil {
		return err
	}

	kfmt.Printf("[bootmain] %d frames reserved for the kernel\n", l.alloc.AllocCount())

	l.as = as
	return l.advance(StageAddressSpaceBuilt)
}

// mapStack maps cfg.StackPages cleared frames right below KernelBase. The
// page below the stack is left unmapped so that an overflow faults.
func (l *Loader) mapStack(as *vmm.AddressSpace) *boot.Error {
	var (
		pages     = l.cfg.StackPages
		firstPage = mm.PageFromAddress(KernelBase - pages*mm.PageSize)
	)

	if _, _, err := as.Lookup(firstPage - 1); err == nil {
		return errStackGuard
	}

	frame, err := l.alloc.AllocFrames(pages)
	if err != nil {
		return err
	}
	boot.Memset(frame.Address(), 0, pages*mm.PageSize)

	for i := uintptr(0); i < pages; i++ {
		if err = l.arch.MapPage(as, firstPage+mm.Page(i), frame+mm.Frame(i), vmm.FlagPresent|vmm.FlagRW); err != nil {
			return err
		}
	}

	return nil
}

// reserveFrames marks every run issued by the frame allocator as kernel
// data so that the firmware does not hand it out and the final memory map
// tells the kernel which frames it already owns. Reservations are rolled
// back if one fails.
func (l *Loader) reserveFrames() *boot.Error {
	runs := l.alloc.Runs()

	for i, run := range runs {
		if _, err := l.fw.AllocatePages(efi.AllocateAddress, efi.KernelData, run.Count, run.Address()); err != nil {
			for _, reserved := range runs[:i] {
				l.fw.FreePages(reserved.Address(), reserved.Count)
			}
			return err
		}
	}

	return nil
}

// exitBootServices fetches the final memory map into the handoff block and
// exits the boot services. A failed exit is retried once with a freshly
// queried map key.
func (l *Loader) exitBootServices() *boot.Error {
	kfmt.Printf("[bootmain] exiting boot services\n")

	// The console is owned by the boot services.
	kfmt.SetOutputSink(nil)

	m := l.block.MemoryMap()
	err := l.exitWithMap(m)
	if err != nil && err.Kind == boot.KindService {
		kfmt.Printf("[bootmain] exit failed: %s; retrying\n", err.Message)
		err = l.exitWithMap(m)
	}
	if err != nil {
		return err
	}

	return l.advance(StageServicesExited)
}

func (l *Loader) exitWithMap(m *efi.MemoryMap) *boot.Error {
	if err := l.fw.GetMemoryMap(m); err != nil {
		return err
	}
	return l.fw.ExitBootServices(m.MapKey)
}

// transfer fills the handoff parameters and jumps to the kernel.
func (l *Loader) transfer() *boot.Error {
	params := l.block.Params()
	params.SetFramebuffer(l.fb)
	params.SetMemoryMap(l.block.MemoryMap())
	cfgTable, cfgEntries := l.fw.ConfigurationTables()
	params.SetFirmwareTables(l.fw.RuntimeServicesTable(), cfgTable, cfgEntries)
	params.SetDescriptors(l.arch.Descriptors())
	params.SetKernelStack(KernelBase, l.cfg.StackPages*mm.PageSize)

	if err := l.advance(StageTransferred); err != nil {
		return err
	}

	handoff.Transfer(l.arch, l.as, uintptr(l.img.Entry), KernelBase, l.block)
	return nil
}

// printSegments dumps the segment table of img to the active console.
func printSegments(img *image.Image) {
	sink := kfmt.GetOutputSink()
	if sink == nil {
		return
	}

	w := kfmt.PrefixWriter{Sink: sink, Prefix: []byte("[bootmain] ")}
	kfmt.Fprintf(&w, "%s image for %s, entry 0x%16x\n", img.Format.String(), img.Machine.String(), img.Entry)
	for _, seg := range img.Segments {
		kfmt.Fprintf(&w, "\t[0x%16x - 0x%16x], file: 0x%8x, %s\n", seg.VirtAddr, seg.End(), seg.FileSize, seg.Flags.String())
	}
}
