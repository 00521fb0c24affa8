package kfmt

import (
	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/cpu"
)

var (
	// cpuHaltFn is mocked by tests.
	cpuHaltFn = cpu.Halt

	errUnknownPanic = &boot.Error{Module: "boot", Message: "unknown cause"}
)

// Panic reports e and halts the processor. Calls to Panic never return on
// real hardware. e may be a *boot.Error, an error or a string.
func Panic(e interface{}) {
	var err *boot.Error

	switch t := e.(type) {
	case *boot.Error:
		err = t
	case error:
		errUnknownPanic.Message = t.Error()
		err = errUnknownPanic
	case string:
		errUnknownPanic.Message = t
		err = errUnknownPanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s (%s)\n", err.Module, err.Message, err.Kind.String())
	}
	Printf("*** boot failed: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
