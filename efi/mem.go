package efi

import "unsafe"

func peek64(addr uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(addr))
}

func peek32(addr uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(addr))
}

func ptrval[T any](p *T) uint64 {
	return uint64(uintptr(unsafe.Pointer(p)))
}

func peekPtr(addr uintptr) uintptr {
	return uintptr(peek64(addr))
}

// out receives values that services return through pointer arguments.
// Package-level storage keeps the addresses handed to firmware stable for
// the duration of a call.
var out struct {
	addr   uint64
	iface  uint64
	handle uint64
	size   uint64
}
