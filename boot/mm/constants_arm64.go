package mm

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)).
	PointerShift = uintptr(3)

	// PageShift is equal to log2(PageSize).
	PageShift = uintptr(12)

	// PageSize defines the page size in bytes.
	PageSize = uintptr(1 << PageShift)
)
