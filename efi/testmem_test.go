package efi

import "unsafe"

// pinned keeps test buffers reachable from a global so that they live on the
// heap where their addresses are stable.
var pinned [][]uint64

func pinWords(n int) []uint64 {
	w := make([]uint64, n)
	pinned = append(pinned, w)
	return w
}

func addrOf(w []uint64) uint64 {
	return uint64(uintptr(unsafe.Pointer(&w[0])))
}

var pinnedMaps []*MemoryMap

func pinMap(buf []byte) *MemoryMap {
	m := NewMemoryMap(buf)
	pinnedMaps = append(pinnedMaps, m)
	return m
}

var testConsole = NewConsole(0xc0c0)
