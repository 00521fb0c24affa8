// Package efi implements the subset of the UEFI boot services that the
// loader needs before it hands control over to a kernel.
package efi

import (
	"github.com/queso-fuego/uefi-dev-sub000/boot"
)

// EFI_SYSTEM_TABLE signature ("IBI SYST")
const systemTableSignature = 0x5453595320494249

// EFI System Table offsets
const (
	conOut             = 64
	runtimeServices    = 88
	bootServices       = 96
	numberOfTableEntry = 104
	configurationTable = 112
)

// EFI_LOADED_IMAGE_PROTOCOL offsets
const (
	loadedImageDeviceHandle    = 24
	loadedImageLoadOptionsSize = 48
	loadedImageLoadOptions     = 56
)

var (
	errBadSystemTable = &boot.Error{Module: "efi", Message: "invalid EFI system table signature", Kind: boot.KindService}
)

// Services holds the firmware tables handed to the loader image.
type Services struct {
	ImageHandle uintptr
	SystemTable uintptr

	Boot    *BootServices
	Console *Console

	// RuntimeServices is the EFI_RUNTIME_SERVICES table which remains
	// valid after boot services have been exited.
	RuntimeServices uintptr

	// ConfigTable points to ConfigTableEntries EFI_CONFIGURATION_TABLE
	// entries (ACPI, SMBIOS, ...).
	ConfigTable        uintptr
	ConfigTableEntries uint64

	loadedImage uintptr
}

// Init validates the system table passed to the image entry point and
// caches the tables the loader uses.
func Init(imageHandle, systemTable uintptr) (*Services, *boot.Error) {
	if systemTable == 0 || peek64(systemTable) != systemTableSignature {
		return nil, errBadSystemTable
	}

	s := &Services{
		ImageHandle:        imageHandle,
		SystemTable:        systemTable,
		Boot:               &BootServices{base: peekPtr(systemTable + bootServices)},
		RuntimeServices:    peekPtr(systemTable + runtimeServices),
		ConfigTable:        peekPtr(systemTable + configurationTable),
		ConfigTableEntries: peek64(systemTable + numberOfTableEntry),
	}

	if con := peekPtr(systemTable + conOut); con != 0 {
		s.Console = NewConsole(con)
	}

	return s, nil
}

// GetMemoryMap fills m with the current firmware memory map.
func (s *Services) GetMemoryMap(m *MemoryMap) *boot.Error {
	return s.Boot.GetMemoryMap(m)
}

// AllocatePages reserves pages of memory of the given type.
func (s *Services) AllocatePages(allocateType AllocateType, memoryType MemoryType, pages, addr uintptr) (uintptr, *boot.Error) {
	return s.Boot.AllocatePages(allocateType, memoryType, pages, addr)
}

// FreePages releases pages reserved by AllocatePages.
func (s *Services) FreePages(addr, pages uintptr) *boot.Error {
	return s.Boot.FreePages(addr, pages)
}

// ExitBootServices terminates the boot services for the loader image.
func (s *Services) ExitBootServices(mapKey uint64) *boot.Error {
	return s.Boot.ExitBootServices(s.ImageHandle, mapKey)
}

// ConfigurationTables returns the address and entry count of the firmware
// configuration table.
func (s *Services) ConfigurationTables() (uintptr, uint64) {
	return s.ConfigTable, s.ConfigTableEntries
}

// RuntimeServicesTable returns the address of EFI_RUNTIME_SERVICES.
func (s *Services) RuntimeServicesTable() uintptr {
	return s.RuntimeServices
}

// LoadedImage returns the EFI_LOADED_IMAGE_PROTOCOL instance describing the
// running loader.
func (s *Services) LoadedImage() (uintptr, *boot.Error) {
	if s.loadedImage != 0 {
		return s.loadedImage, nil
	}

	li, err := s.Boot.HandleProtocol(s.ImageHandle, &LoadedImageProtocolGUID)
	if err != nil {
		return 0, err
	}
	s.loadedImage = li
	return li, nil
}

// LoadOptions returns the load options of the loader image (its command
// line) decoded from UCS-2.
func (s *Services) LoadOptions() (string, *boot.Error) {
	li, err := s.LoadedImage()
	if err != nil {
		return "", err
	}

	size := peek32(li + loadedImageLoadOptionsSize)
	opts := peekPtr(li + loadedImageLoadOptions)
	if size == 0 || opts == 0 {
		return "", nil
	}

	return decodeUCS2(opts, uintptr(size)/2), nil
}
