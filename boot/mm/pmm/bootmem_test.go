package pmm

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/kfmt"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
	"github.com/queso-fuego/uefi-dev-sub000/efi"
)

type region struct {
	memType efi.MemoryType
	start   uint64
	length  uint64
}

// buildMap encodes regions as a firmware memory map that uses a 48-byte
// descriptor stride. Lengths need not be page multiples: the descriptor
// page count is rounded down and the start address is kept verbatim to
// emulate sloppy firmware.
func buildMap(regions []region) *efi.MemoryMap {
	const stride = 48

	buf := make([]byte, 0, stride*len(regions))
	w := bytes.NewBuffer(buf)
	for _, r := range regions {
		binary.Write(w, binary.LittleEndian, efi.MemoryDescriptor{
			Type:          r.memType,
			PhysicalStart: r.start,
			NumberOfPages: r.length / efi.PageSize,
		})
		w.Write(make([]byte, stride-40))
	}

	m := efi.NewMemoryMap(w.Bytes())
	m.MapSize = uint64(w.Len())
	m.DescriptorSize = stride
	m.DescriptorVersion = 1
	return m
}

func TestAllocFramesSingle(t *testing.T) {
	memMap := buildMap([]region{
		// below 1M: never used
		{efi.EfiConventionalMemory, 0x0, 0x9f000},
		{efi.EfiReservedMemoryType, 0x9f000, 0x61000},
		// out of order with respect to the next region
		{efi.EfiConventionalMemory, 0x400000, 0x4000},
		{efi.EfiConventionalMemory, 0x100000, 0x3000},
		{efi.EfiBootServicesData, 0x103000, 0x1000},
		// unaligned start: the first partial page is skipped
		{efi.EfiConventionalMemory, 0x200800, 0x3000},
		{efi.EfiACPIReclaimMemory, 0x500000, 0x10000},
	})

	alloc := New(memMap)
	expFrames := []uintptr{
		0x100000, 0x101000, 0x102000,
		0x201000, 0x202000,
		0x400000, 0x401000, 0x402000, 0x403000,
	}

	for i, exp := range expFrames {
		frame, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("[frame %d] unexpected allocator error: %v", i, err)
		}

		if got := frame.Address(); got != exp {
			t.Fatalf("[frame %d] expected frame address 0x%x; got 0x%x", i, exp, got)
		}
	}

	if _, err := alloc.AllocFrame(); err != errOutOfMemory {
		t.Fatalf("expected errOutOfMemory once all usable memory is issued; got %v", err)
	}

	if err := errOutOfMemory; err.Kind != boot.KindResourceExhaustion {
		t.Fatalf("expected exhaustion error kind; got %s", err.Kind)
	}

	if got := alloc.AllocCount(); got != uint64(len(expFrames)) {
		t.Fatalf("expected AllocCount to return %d; got %d", len(expFrames), got)
	}
}

func TestAllocFramesContiguous(t *testing.T) {
	memMap := buildMap([]region{
		{efi.EfiConventionalMemory, 0x100000, 0x3000},
		{efi.EfiConventionalMemory, 0x200000, 0x8000},
		{efi.EfiConventionalMemory, 0x300000, 0x2000},
	})

	specs := []struct {
		count   uintptr
		expAddr uintptr
		expErr  *boot.Error
	}{
		{0, 0, errInvalidCount},
		{2, 0x100000, nil},
		// one frame left in the first region; the request moves on
		{4, 0x200000, nil},
		{4, 0x204000, nil},
		{1, 0x300000, nil},
		// the cursor never moves backwards so the frame left in the
		// first region stays unused
		{2, 0, errOutOfMemory},
		{1, 0x301000, nil},
		{1, 0, errOutOfMemory},
	}

	alloc := New(memMap)
	var prev uintptr
	for specIndex, spec := range specs {
		frame, err := alloc.AllocFrames(spec.count)
		if err != spec.expErr {
			t.Fatalf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}

		if err != nil {
			if frame != mm.InvalidFrame {
				t.Errorf("[spec %d] expected InvalidFrame on error; got %d", specIndex, frame)
			}
			continue
		}

		addr := frame.Address()
		if addr != spec.expAddr {
			t.Errorf("[spec %d] expected address 0x%x; got 0x%x", specIndex, spec.expAddr, addr)
		}
		if addr&(mm.PageSize-1) != 0 {
			t.Errorf("[spec %d] expected page-aligned address; got 0x%x", specIndex, addr)
		}
		if addr <= prev {
			t.Errorf("[spec %d] expected monotonically increasing addresses; got 0x%x after 0x%x", specIndex, addr, prev)
		}
		prev = addr
	}
}

func TestAllocFramesNeverIssuedTwice(t *testing.T) {
	memMap := buildMap([]region{
		{efi.EfiConventionalMemory, 0x800000, 0x40000},
		{efi.EfiLoaderCode, 0x840000, 0x1000},
		{efi.EfiConventionalMemory, 0x100000, 0x20000},
		{efi.EfiRuntimeServicesData, 0x120000, 0x1000},
	})

	alloc := New(memMap)
	issued := map[mm.Frame]bool{}
	counts := []uintptr{1, 3, 7, 2, 5, 1, 16, 4}
	for {
		progress := false
		for _, count := range counts {
			frame, err := alloc.AllocFrames(count)
			if err != nil {
				continue
			}
			progress = true

			for i := uintptr(0); i < count; i++ {
				f := frame + mm.Frame(i)
				if issued[f] {
					t.Fatalf("frame 0x%x issued twice", f.Address())
				}
				issued[f] = true

				addr := uint64(f.Address())
				inside := (addr >= 0x800000 && addr < 0x840000) || (addr >= 0x100000 && addr < 0x120000)
				if !inside {
					t.Fatalf("frame 0x%x issued outside of conventional memory", addr)
				}
			}
		}

		if !progress {
			break
		}
	}

	if uint64(len(issued)) != alloc.AllocCount() {
		t.Fatalf("expected AllocCount %d to match issued frames %d", alloc.AllocCount(), len(issued))
	}
}

func TestRuns(t *testing.T) {
	memMap := buildMap([]region{
		{efi.EfiConventionalMemory, 0x100000, 0x4000},
		{efi.EfiConventionalMemory, 0x200000, 0x4000},
	})

	alloc := New(memMap)
	for _, count := range []uintptr{1, 2, 1, 3} {
		if _, err := alloc.AllocFrames(count); err != nil {
			t.Fatal(err)
		}
	}

	exp := []Run{
		{mm.FrameFromAddress(0x100000), 4},
		{mm.FrameFromAddress(0x200000), 3},
	}

	runs := alloc.Runs()
	if len(runs) != len(exp) {
		t.Fatalf("expected %d runs; got %d: %v", len(exp), len(runs), runs)
	}

	for i := range exp {
		if runs[i] != exp[i] {
			t.Errorf("run %d: expected %+v; got %+v", i, exp[i], runs[i])
		}
	}

	if got := runs[1].Address(); got != 0x200000 {
		t.Errorf("expected second run at 0x200000; got 0x%x", got)
	}
}

func TestPrintMemoryMap(t *testing.T) {
	defer kfmt.SetOutputSink(nil)

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	alloc := New(buildMap([]region{
		{efi.EfiConventionalMemory, 0x100000, 0x10000},
		{efi.EfiACPIMemoryNVS, 0x110000, 0x1000},
	}))
	alloc.PrintMemoryMap()

	exp := "[boot_mem_alloc] system memory map:\n" +
		"\t[0x0000000000100000 - 0x0000000000110000], pages:       16, type: conventional\n" +
		"\t[0x0000000000110000 - 0x0000000000111000], pages:        1, type: ACPI NVS\n" +
		"[boot_mem_alloc] available memory: 64Kb\n"

	if got := buf.String(); got != exp {
		t.Fatalf("expected output:\n%q\ngot:\n%q", exp, got)
	}
}
