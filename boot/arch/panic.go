package arch

import "github.com/queso-fuego/uefi-dev-sub000/boot/kfmt"

var (
	kfmtPanic = kfmt.Panic

	// panicFn is mocked by tests.
	panicFn = kfmtPanic
)
