package bootmain

import (
	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/arch"
	"github.com/queso-fuego/uefi-dev-sub000/boot/config"
	"github.com/queso-fuego/uefi-dev-sub000/boot/cpu"
	"github.com/queso-fuego/uefi-dev-sub000/boot/kfmt"
	"github.com/queso-fuego/uefi-dev-sub000/efi"
)

var (
	// the following functions are mocked by tests.
	panicFn   = kfmt.Panic
	efiInitFn = efi.Init
	newArchFn = arch.Current
	vendorFn  = cpu.Vendor

	errMainReturned = &boot.Error{Module: "bootmain", Message: "kernel returned control to the loader"}
)

// Main is invoked by the image entry point with the handle and system
// table supplied by the firmware. It attaches the firmware console, parses
// the load options and runs the boot pipeline.
//
// Main is not expected to return. Any error is fatal and halts the CPU.
//
//go:noinline
func Main(imageHandle, systemTable uintptr) {
	svc, err := efiInitFn(imageHandle, systemTable)
	if err != nil {
		panicFn(err)
		return
	}

	if svc.Console != nil {
		svc.Console.ClearScreen()
		kfmt.SetOutputSink(svc.Console)
	}

	opts, err := svc.LoadOptions()
	if err != nil {
		kfmt.Printf("[bootmain] unable to read load options: %s\n", err.Message)
	}

	cfg := config.Parse(opts)
	if err = New(svc, newArchFn(), cfg).Run(); err != nil {
		panicFn(err)
		return
	}

	// Use panicFn so the call is not eliminated as dead code.
	panicFn(errMainReturned)
}
