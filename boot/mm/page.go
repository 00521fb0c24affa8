// Package mm defines the page and frame abstractions shared by the physical
// frame allocator and the page table builder.
package mm

import (
	"math"

	"github.com/queso-fuego/uefi-dev-sub000/boot"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by frame allocators when they fail to
	// reserve the requested frames.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte of this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame that contains physAddr.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr &^ (PageSize - 1)) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual address of the first byte of this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns the Page that contains virtAddr.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr &^ (PageSize - 1)) >> PageShift)
}

// PageCount returns the number of pages needed to hold size bytes.
func PageCount(size uintptr) uintptr {
	return (size + PageSize - 1) >> PageShift
}

// FrameAllocator is implemented by physical memory allocators that can hand
// out runs of contiguous frames.
type FrameAllocator interface {
	// AllocFrames reserves count contiguous frames and returns the first
	// one.
	AllocFrames(count uintptr) (Frame, *boot.Error)
}
