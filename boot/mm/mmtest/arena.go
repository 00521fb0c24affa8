// Package mmtest provides page-aligned Go memory that tests can use in place
// of identity-mapped physical memory.
package mmtest

import (
	"unsafe"

	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
)

// PoisonByte is written to every frame handed out by an Arena so that tests
// can detect frames that were not cleared by their consumer.
const PoisonByte = 0xa5

var (
	errArenaExhausted = &boot.Error{Module: "mmtest", Message: "arena exhausted", Kind: boot.KindResourceExhaustion}

	// live keeps every arena reachable for the lifetime of the test binary.
	live []*Arena
)

// Arena is a mm.FrameAllocator backed by a page-aligned Go buffer.
type Arena struct {
	buf    []byte
	base   uintptr
	frames uintptr
	next   uintptr

	// Calls counts successful AllocFrames calls.
	Calls int
}

// NewArena returns an arena that can hand out up to frames frames.
func NewArena(frames uintptr) *Arena {
	buf := make([]byte, (frames+1)*mm.PageSize)
	a := &Arena{
		buf:    buf,
		base:   (uintptr(unsafe.Pointer(&buf[0])) + mm.PageSize - 1) &^ (mm.PageSize - 1),
		frames: frames,
	}
	live = append(live, a)
	return a
}

// AllocFrames implements mm.FrameAllocator.
func (a *Arena) AllocFrames(count uintptr) (mm.Frame, *boot.Error) {
	if count == 0 || a.next+count > a.frames {
		return mm.InvalidFrame, errArenaExhausted
	}

	frame := mm.FrameFromAddress(a.base) + mm.Frame(a.next)
	a.next += count
	a.Calls++

	boot.Memset(frame.Address(), PoisonByte, count*mm.PageSize)
	return frame, nil
}

// Used returns the number of frames handed out.
func (a *Arena) Used() uintptr {
	return a.next
}

// Base returns the address of the first arena frame.
func (a *Arena) Base() uintptr {
	return a.base
}

// Contains returns true if addr points inside the arena.
func (a *Arena) Contains(addr uintptr) bool {
	return addr >= a.base && addr < a.base+a.frames*mm.PageSize
}

// Bytes returns a view of size bytes of arena memory starting at addr.
func (a *Arena) Bytes(addr, size uintptr) []byte {
	off := addr - uintptr(unsafe.Pointer(&a.buf[0]))
	return a.buf[off : off+size]
}
