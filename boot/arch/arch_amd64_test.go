package arch

import (
	"testing"

	"github.com/queso-fuego/uefi-dev-sub000/boot"
	"github.com/queso-fuego/uefi-dev-sub000/boot/cpu"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm/mmtest"
	"github.com/queso-fuego/uefi-dev-sub000/boot/mm/vmm"
)

func restoreCPUFns() {
	physAddrBitsFn = cpu.PhysAddrBits
	loadGDTFn = cpu.LoadGDT
	loadTaskRegisterFn = cpu.LoadTaskRegister
	reloadSegmentsFn = cpu.ReloadSegments
	switchPDTFn = cpu.SwitchPDT
	activePDTFn = cpu.ActivePDT
	flushTLBEntryFn = cpu.FlushTLBEntry
	disableInterruptsFn = cpu.DisableInterrupts
	haltFn = cpu.Halt
	jumpFn = cpu.JumpToKernel
}

func TestSetupDescriptorTables(t *testing.T) {
	arena := mmtest.NewArena(4)
	a := Current().(*X86_64)

	if err := a.SetupDescriptorTables(arena, 2); err != nil {
		t.Fatal(err)
	}

	if exp := uintptr(3); arena.Used() != exp {
		t.Fatalf("expected %d frames to be allocated; got %d", exp, arena.Used())
	}

	desc := a.Descriptors()
	if desc.GDTBase != uint64(arena.Base()) {
		t.Errorf("expected GDT base 0x%x; got 0x%x", arena.Base(), desc.GDTBase)
	}
	if desc.GDTLimit != 39 {
		t.Errorf("expected GDT limit 39; got %d", desc.GDTLimit)
	}
	if exp := uint64(arena.Base() + 3*mm.PageSize); desc.ExceptionStackTop != exp {
		t.Errorf("expected exception stack top 0x%x; got 0x%x", exp, desc.ExceptionStackTop)
	}
	if desc.CodeSelector != CodeSelector || desc.DataSelector != DataSelector || desc.TSSSelector != TSSSelector {
		t.Errorf("unexpected selectors in %+v", desc)
	}

	for i, b := range arena.Bytes(arena.Base()+mm.PageSize, 2*mm.PageSize) {
		if b != 0 {
			t.Fatalf("expected exception stack to be cleared; byte %d is 0x%x", i, b)
		}
	}
}

func TestSetupDescriptorTablesExhaustion(t *testing.T) {
	specs := []struct {
		frames     uintptr
		stackPages uintptr
	}{
		{0, 1},
		{1, 1},
		{2, 4},
	}

	for specIndex, spec := range specs {
		a := Current()
		err := a.SetupDescriptorTables(mmtest.NewArena(spec.frames), spec.stackPages)
		if err == nil || err.Kind != boot.KindResourceExhaustion {
			t.Errorf("[spec %d] expected resource exhaustion; got %v", specIndex, err)
		}
	}
}

func TestLoadDescriptorTables(t *testing.T) {
	defer restoreCPUFns()

	var calls []string
	loadGDTFn = func(_ uintptr) { calls = append(calls, "lgdt") }
	reloadSegmentsFn = func(code, data uint16) {
		if code != CodeSelector || data != DataSelector {
			t.Errorf("unexpected selectors 0x%x 0x%x", code, data)
		}
		calls = append(calls, "segments")
	}
	loadTaskRegisterFn = func(sel uint16) {
		if sel != TSSSelector {
			t.Errorf("expected TSS selector 0x%x; got 0x%x", TSSSelector, sel)
		}
		calls = append(calls, "ltr")
	}

	t.Run("not set up", func(t *testing.T) {
		defer func() { panicFn = kfmtPanic }()

		var panicked bool
		panicFn = func(e interface{}) {
			if e != errNoDescriptorTables {
				t.Errorf("unexpected panic value %v", e)
			}
			panicked = true
		}

		Current().LoadDescriptorTables()
		if !panicked {
			t.Fatal("expected LoadDescriptorTables to panic")
		}
		if len(calls) != 0 {
			t.Fatalf("expected no descriptor loads; got %v", calls)
		}
	})

	t.Run("loaded", func(t *testing.T) {
		arena := mmtest.NewArena(2)
		a := Current()
		if err := a.SetupDescriptorTables(arena, 1); err != nil {
			t.Fatal(err)
		}

		var gdtrAddr uintptr
		loadGDTFn = func(addr uintptr) {
			gdtrAddr = addr
			calls = append(calls, "lgdt")
		}

		a.LoadDescriptorTables()

		exp := []string{"lgdt", "segments", "ltr"}
		if len(calls) != len(exp) {
			t.Fatalf("expected calls %v; got %v", exp, calls)
		}
		for i := range exp {
			if calls[i] != exp[i] {
				t.Fatalf("expected calls %v; got %v", exp, calls)
			}
		}

		if exp := arena.Base() + gdtrOffset; gdtrAddr != exp {
			t.Fatalf("expected GDTR at 0x%x; got 0x%x", exp, gdtrAddr)
		}
	})
}

func TestInstallAddressSpaceAndUnmap(t *testing.T) {
	defer restoreCPUFns()

	arena := mmtest.NewArena(8)
	as, err := vmm.NewAddressSpace(arena, 48)
	if err != nil {
		t.Fatal(err)
	}

	var active uintptr
	switchPDTFn = func(root uintptr) { active = root }
	activePDTFn = func() uintptr { return active }

	var flushed []uintptr
	flushTLBEntryFn = func(addr uintptr) { flushed = append(flushed, addr) }

	a := Current()
	page := mm.PageFromAddress(0xffffffff80000000)
	if err := a.MapPage(as, page, mm.Frame(0x200), vmm.FlagPresent|vmm.FlagRW); err != nil {
		t.Fatal(err)
	}

	// Inactive address space: no flush.
	if err := a.UnmapPage(as, page); err != nil {
		t.Fatal(err)
	}
	if len(flushed) != 0 {
		t.Fatalf("expected no TLB flush for an inactive address space; got %v", flushed)
	}

	a.InstallAddressSpace(as)
	if active != as.Root().Address() {
		t.Fatalf("expected CR3 to point to 0x%x; got 0x%x", as.Root().Address(), active)
	}

	if err := a.MapPage(as, page, mm.Frame(0x200), vmm.FlagPresent|vmm.FlagRW); err != nil {
		t.Fatal(err)
	}
	if err := a.UnmapPage(as, page); err != nil {
		t.Fatal(err)
	}
	if len(flushed) != 1 || flushed[0] != page.Address() {
		t.Fatalf("expected TLB flush for 0x%x; got %v", page.Address(), flushed)
	}

	if err := a.UnmapPage(as, page); err != vmm.ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping; got %v", err)
	}
}

func TestJumpAndHalt(t *testing.T) {
	defer restoreCPUFns()

	var (
		gotEntry, gotStack, gotArg uintptr
		cliCalled, haltCalled      bool
	)
	jumpFn = func(entry, stackTop, arg uintptr) { gotEntry, gotStack, gotArg = entry, stackTop, arg }
	disableInterruptsFn = func() { cliCalled = true }
	haltFn = func() { haltCalled = true }
	physAddrBitsFn = func() uint8 { return 40 }

	a := Current()
	a.DisableInterrupts()
	a.Jump(0xffffffff80100000, 0x9000, 0x7000)
	a.Halt()

	if gotEntry != 0xffffffff80100000 || gotStack != 0x9000 || gotArg != 0x7000 {
		t.Fatalf("unexpected jump arguments 0x%x 0x%x 0x%x", gotEntry, gotStack, gotArg)
	}
	if !cliCalled || !haltCalled {
		t.Fatal("expected cli and hlt to be invoked")
	}
	if a.PhysAddrBits() != 40 || a.Name() != "amd64" {
		t.Fatalf("unexpected arch info %s/%d", a.Name(), a.PhysAddrBits())
	}
}
