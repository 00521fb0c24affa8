package arch

import (
	"encoding/binary"
	"unsafe"
)

// segmentDescriptor represents a 64-bit segment descriptor.
type segmentDescriptor uint64

type segmentFlags uint32
type privLevel uint32

const (
	ring0 privLevel = 0
)

const (
	segFlagAccess  segmentFlags = 1 << 8
	segFlagRW      segmentFlags = 1 << 9
	segFlagCode    segmentFlags = 1 << 11
	segFlagSystem  segmentFlags = 1 << 12
	segFlagPresent segmentFlags = 1 << 15
	segFlagLong    segmentFlags = 1 << 21
)

// GDT slots. The TSS descriptor spans two slots in long mode.
const (
	// Mandatory null selector.
	_ = iota
	segmentCode0
	segmentData0
	segmentTSS0
	segmentTSS0High
	segmentEnd
)

// Selectors for the GDT slots above.
const (
	CodeSelector = uint16(segmentCode0<<3) | uint16(ring0)
	DataSelector = uint16(segmentData0<<3) | uint16(ring0)
	TSSSelector  = uint16(segmentTSS0<<3) | uint16(ring0)
)

// tss is the 104-byte 64-bit task state segment. Hardware task switching
// does not exist in long mode; the TSS only supplies the stacks used on
// privilege changes and for IST interrupt gates.
type tss [26]uint32

const (
	tssSize  = unsafe.Sizeof(tss{})
	tssLimit = uint32(tssSize - 1)
)

// Layout of the descriptor frame.
const (
	gdtOffset  = 0
	tssOffset  = 64
	gdtrOffset = tssOffset + tssSize + 8
)

// setRSP sets the stack used when entering ring idx.
func (t *tss) setRSP(idx int, rsp uint64) {
	t[1+idx*2] = uint32(rsp)
	t[1+idx*2+1] = uint32(rsp >> 32)
}

// setIST sets the interrupt stack table entry idx (1-based).
func (t *tss) setIST(idx int, rsp uint64) {
	t[7+idx*2] = uint32(rsp)
	t[7+idx*2+1] = uint32(rsp >> 32)
}

// setIOMapBase sets the offset of the I/O permission bitmap. An offset
// equal to the TSS size means there is no bitmap and every port access
// from ring 3 faults.
func (t *tss) setIOMapBase(offset uint16) {
	t[25] = uint32(offset) << 16
}

func newSegmentDescriptor(base uint32, limit uint32, flags segmentFlags, level privLevel) segmentDescriptor {
	flags |= segFlagPresent
	w0 := base<<16 | limit&0xffff
	w1 := base&0xff000000 | limit&0xf0000 | uint32(flags) | uint32(level)<<13 | (base>>16)&0xff
	return segmentDescriptor(uint64(w1)<<32 | uint64(w0))
}

// writeDescriptorTables lays out the GDT, the TSS and the 10-byte GDTR
// pseudo-descriptor inside the frame at tableAddr.
func writeDescriptorTables(tableAddr uintptr, stackTop uint64) {
	t := (*tss)(unsafe.Pointer(tableAddr + tssOffset))
	*t = tss{}
	t.setRSP(0, stackTop)
	t.setIST(1, stackTop)
	t.setIOMapBase(uint16(tssSize))

	tssAddr := uint64(tableAddr + tssOffset)
	gdt := (*[segmentEnd]segmentDescriptor)(unsafe.Pointer(tableAddr + gdtOffset))
	gdt[0] = 0
	gdt[segmentCode0] = newSegmentDescriptor(0, 0, segFlagSystem|segFlagCode|segFlagRW|segFlagLong, ring0)
	gdt[segmentData0] = newSegmentDescriptor(0, 0, segFlagSystem|segFlagRW, ring0)
	gdt[segmentTSS0] = newSegmentDescriptor(uint32(tssAddr), tssLimit, segFlagAccess|segFlagCode, ring0)
	gdt[segmentTSS0High] = segmentDescriptor(tssAddr >> 32)

	// The GDT register is a 10 byte value: a 16-bit limit followed by
	// the 64-bit address.
	gdtr := (*[10]byte)(unsafe.Pointer(tableAddr + gdtrOffset))
	binary.LittleEndian.PutUint16(gdtr[:2], uint16(segmentEnd*8-1))
	binary.LittleEndian.PutUint64(gdtr[2:], uint64(tableAddr+gdtOffset))
}
