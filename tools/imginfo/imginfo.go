// Command imginfo prints the segment table that the loader derives from a
// kernel image and reports the errors that would make it reject the image.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/queso-fuego/uefi-dev-sub000/boot/image"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[imginfo] error: %s\n", err.Error())
	os.Exit(1)
}

func parseMachine(name string) (image.Machine, error) {
	for _, m := range []image.Machine{image.MachineAMD64, image.MachineARM64} {
		if m.String() == name {
			return m, nil
		}
	}

	return image.MachineUnknown, errors.Errorf("unsupported architecture %q", name)
}

// framesNeeded returns the number of frames that loading img consumes
// assuming that no segment shares a page with another one.
func framesNeeded(img *image.Image) uintptr {
	var frames uintptr
	for _, seg := range img.Segments {
		start := uintptr(seg.VirtAddr) &^ (mm.PageSize - 1)
		frames += mm.PageCount(uintptr(seg.End()) - start)
	}
	return frames
}

func printImage(w io.Writer, img *image.Image) error {
	lo, hi := img.Extent()

	fmt.Fprintf(w, "format:  %s\n", img.Format)
	fmt.Fprintf(w, "machine: %s\n", img.Machine)
	fmt.Fprintf(w, "entry:   0x%016x\n", img.Entry)
	fmt.Fprintf(w, "extent:  [0x%016x - 0x%016x]\n", lo, hi)
	fmt.Fprintf(w, "frames:  %d\n\n", framesNeeded(img))

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "VADDR\tMEMSZ\tOFFSET\tFILESZ\tALIGN\tPERM")
	for _, seg := range img.Segments {
		fmt.Fprintf(tw, "0x%016x\t0x%x\t0x%x\t0x%x\t0x%x\t%s\n",
			seg.VirtAddr, seg.MemSize, seg.FileOffset, seg.FileSize, seg.Align, seg.Flags)
	}
	return tw.Flush()
}

func runTool(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("imginfo", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	arch := fs.String("arch", "amd64", "architecture the image must target (amd64 or arm64)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return errors.New("usage: imginfo [-arch amd64|arm64] kernel-image")
	}

	machine, err := parseMachine(*arch)
	if err != nil {
		return err
	}

	imgFile := fs.Arg(0)
	data, err := os.ReadFile(imgFile)
	if err != nil {
		return errors.Wrap(err, "unable to read kernel image")
	}

	img, perr := image.ParseFor(data, machine)
	if perr != nil {
		return errors.Wrapf(perr, "%s: %s", imgFile, perr.Kind)
	}

	return printImage(out, img)
}

func main() {
	if err := runTool(os.Args[1:], os.Stdout); err != nil {
		exit(err)
	}
}
