package boot

import (
	"testing"
	"unsafe"
)

func TestMemset(t *testing.T) {
	// memset with a 0 size should be a no-op
	Memset(uintptr(0), 0x00, 0)

	for pageCount := uint32(1); pageCount <= 10; pageCount++ {
		buf := make([]byte, pageCount<<12)
		for i := 0; i < len(buf); i++ {
			buf[i] = 0xFE
		}

		addr := uintptr(unsafe.Pointer(&buf[0]))
		Memset(addr, 0x00, uintptr(len(buf)))

		for i := 0; i < len(buf); i++ {
			if got := buf[i]; got != 0x00 {
				t.Errorf("[block with %d pages] expected byte: %d to be 0x00; got 0x%x", pageCount, i, got)
			}
		}
	}
}

func TestMemcopy(t *testing.T) {
	// memcopy with a 0 size should be a no-op
	Memcopy(uintptr(0), uintptr(0), 0)

	var (
		src = make([]byte, 500)
		dst = make([]byte, 500)
	)

	for i := 0; i < len(src); i++ {
		src[i] = byte(i % 256)
	}

	Memcopy(
		uintptr(unsafe.Pointer(&src[0])),
		uintptr(unsafe.Pointer(&dst[0])),
		uintptr(len(src)),
	)

	for i := 0; i < len(src); i++ {
		if got := dst[i]; got != src[i] {
			t.Errorf("value mismatch between src and dst at index %d", i)
		}
	}
}

func TestCopyIn(t *testing.T) {
	CopyIn(uintptr(0), nil)

	dst := make([]byte, 16)
	CopyIn(uintptr(unsafe.Pointer(&dst[4])), []byte("gopher"))

	if got := string(dst[4:10]); got != "gopher" {
		t.Fatalf("expected copied bytes to be %q; got %q", "gopher", got)
	}

	if dst[3] != 0 || dst[10] != 0 {
		t.Fatal("expected CopyIn not to touch bytes outside the destination range")
	}
}
