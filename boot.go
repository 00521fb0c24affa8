package main

import "github.com/queso-fuego/uefi-dev-sub000/boot/bootmain"

// The image entry stub stores the arguments it receives from the firmware
// here before calling main. They are package-level variables so that the
// compiler cannot fold them into constants and inline the call below.
var (
	imageHandle uintptr
	systemTable uintptr
)

// main works as a trampoline for calling the actual loader entrypoint
// (bootmain.Main). It is invoked by the image entry stub once a minimal Go
// runtime has been set up on the stack supplied by the firmware.
//
// main is not expected to return. If it does, the entry stub halts the CPU.
func main() {
	bootmain.Main(imageHandle, systemTable)
}
