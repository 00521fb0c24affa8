package efi

import (
	"unicode/utf16"
	"unsafe"
)

// encodeUCS2 returns s as a NUL-terminated UCS-2 string. Path separators are
// converted to the backslash used by EFI file paths.
func encodeUCS2(s string, pathSep bool) []uint16 {
	out := make([]uint16, 0, len(s)+1)
	for _, r := range s {
		if pathSep && r == '/' {
			r = '\\'
		}
		if r > 0xffff {
			r = '?'
		}
		out = append(out, uint16(r))
	}
	return append(out, 0)
}

// decodeUCS2 decodes at most count code units starting at addr, stopping at
// the first NUL.
func decodeUCS2(addr, count uintptr) string {
	units := unsafe.Slice((*uint16)(unsafe.Pointer(addr)), count)
	for i, u := range units {
		if u == 0 {
			units = units[:i]
			break
		}
	}
	return string(utf16.Decode(units))
}
