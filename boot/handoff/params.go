// Package handoff assembles the parameter block passed to the kernel and
// performs the final transfer of control.
package handoff

import (
	"unsafe"

	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/arch"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
	"github.com/queso-fuego/uefi-dev-sub000/efi"
	"github.com/u-root/u-root/pkg/boot/bzimage"
)

const (
	// Magic identifies a Parameters block ("GOPHBOOT").
	Magic = 0x544f4f4248504f47

	// Version is bumped whenever the Parameters layout changes.
	Version = 1

	// MaxE820Entries is the capacity of the E820 table.
	MaxE820Entries = 128
)

// Parameters is the block whose address is passed to the kernel entry
// point. Its layout is a contract with the kernel: fields may only be
// appended and every change bumps Version.
type Parameters struct {
	Magic   uint64
	Version uint32
	Size    uint32

	// Linear framebuffer of the active graphics mode. Base is zero when
	// no linear framebuffer is available.
	FramebufferBase   uint64
	FramebufferSize   uint64
	FramebufferWidth  uint32
	FramebufferHeight uint32
	FramebufferStride uint32
	FramebufferFormat uint32

	// Final UEFI memory map. The descriptors live in the frames that
	// follow the Parameters block and must be walked using
	// DescriptorSize.
	MemoryMap         uint64
	MemoryMapSize     uint64
	DescriptorSize    uint64
	DescriptorVersion uint32
	_                 uint32

	RuntimeServices    uint64
	ConfigTable        uint64
	ConfigTableEntries uint64

	GDTBase      uint64
	GDTLimit     uint16
	CodeSelector uint16
	DataSelector uint16
	TSSSelector  uint16

	KernelStackTop  uint64
	KernelStackSize uint64

	E820Entries uint32
	_           uint32
	E820        [MaxE820Entries]bzimage.E820Entry
}

// Block is a Parameters block together with the memory map buffer that
// follows it.
type Block struct {
	frame   mm.Frame
	pages   uintptr
	params  *Parameters
	memMap  *efi.MemoryMap
	mapSize uintptr
}

var errZeroMapSize = &boot.Error{Module: "handoff", Message: "memory map buffer size must be non-zero"}

// Allocate reserves one frame for a Parameters block followed by enough
// frames to hold mapBytes of memory map. All frames are cleared.
func Allocate(alloc mm.FrameAllocator, mapBytes uintptr) (*Block, *boot.Error) {
	if mapBytes == 0 {
		return nil, errZeroMapSize
	}

	pages := 1 + mm.PageCount(mapBytes)
	frame, err := alloc.AllocFrames(pages)
	if err != nil {
		return nil, err
	}
	boot.Memset(frame.Address(), 0, pages*mm.PageSize)

	mapAddr := frame.Address() + mm.PageSize
	mapSize := (pages - 1) * mm.PageSize

	b := &Block{
		frame:   frame,
		pages:   pages,
		params:  (*Parameters)(unsafe.Pointer(frame.Address())),
		memMap:  efi.NewMemoryMap(unsafe.Slice((*byte)(unsafe.Pointer(mapAddr)), mapSize)),
		mapSize: mapSize,
	}

	b.params.Magic = Magic
	b.params.Version = Version
	b.params.Size = uint32(unsafe.Sizeof(Parameters{}))

	return b, nil
}

// Address returns the physical address of the Parameters block.
func (b *Block) Address() uintptr { return b.frame.Address() }

// Frame returns the first frame of the block.
func (b *Block) Frame() mm.Frame { return b.frame }

// Pages returns the number of frames used by the block.
func (b *Block) Pages() uintptr { return b.pages }

// Params returns the Parameters stored in the block.
func (b *Block) Params() *Parameters { return b.params }

// MemoryMap returns the memory map whose buffer follows the Parameters
// block. The firmware writes the final map straight into it.
func (b *Block) MemoryMap() *efi.MemoryMap { return b.memMap }

// SetFramebuffer records the framebuffer of the active graphics mode.
func (p *Parameters) SetFramebuffer(fb efi.Framebuffer) {
	p.FramebufferBase = fb.Base
	p.FramebufferSize = fb.Size
	p.FramebufferWidth = fb.Width
	p.FramebufferHeight = fb.Height
	p.FramebufferStride = fb.PixelsPerScanLine
	p.FramebufferFormat = uint32(fb.PixelFormat)
}

// SetFirmwareTables records the runtime services table and the firmware
// configuration table.
func (p *Parameters) SetFirmwareTables(runtimeServices, configTable uintptr, configEntries uint64) {
	p.RuntimeServices = uint64(runtimeServices)
	p.ConfigTable = uint64(configTable)
	p.ConfigTableEntries = configEntries
}

// SetDescriptors records the descriptor tables loaded before the jump.
func (p *Parameters) SetDescriptors(d arch.Descriptors) {
	p.GDTBase = d.GDTBase
	p.GDTLimit = d.GDTLimit
	p.CodeSelector = d.CodeSelector
	p.DataSelector = d.DataSelector
	p.TSSSelector = d.TSSSelector
}

// SetKernelStack records the kernel stack.
func (p *Parameters) SetKernelStack(top, size uintptr) {
	p.KernelStackTop = uint64(top)
	p.KernelStackSize = uint64(size)
}

// SetMemoryMap records the location of m and converts it to an E820 table.
// Entries that do not fit in the table are dropped.
func (p *Parameters) SetMemoryMap(m *efi.MemoryMap) {
	p.MemoryMap = uint64(m.Address())
	p.MemoryMapSize = m.MapSize
	p.DescriptorSize = m.DescriptorSize
	p.DescriptorVersion = m.DescriptorVersion

	entries := m.E820(p.E820[:0])
	p.E820Entries = uint32(copy(p.E820[:], entries))
}
