package efi

// GUID is an EFI_GUID.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// Protocol GUIDs used by this package.
var (
	LoadedImageProtocolGUID = GUID{
		0x5b1b31a1, 0x9562, 0x11d2,
		[8]byte{0x8e, 0x3f, 0x00, 0xa0, 0xc9, 0x69, 0x72, 0x3b},
	}

	SimpleFileSystemProtocolGUID = GUID{
		0x964e5b22, 0x6459, 0x11d2,
		[8]byte{0x8e, 0x39, 0x00, 0xa0, 0xc9, 0x69, 0x72, 0x3b},
	}

	GraphicsOutputProtocolGUID = GUID{
		0x9042a9de, 0x23dc, 0x4a38,
		[8]byte{0x96, 0xfb, 0x7a, 0xde, 0xd0, 0x80, 0x51, 0x6a},
	}
)
