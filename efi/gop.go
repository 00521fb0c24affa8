package efi

import "github.com/queso-fuego/uefi-dev-sub000/boot"

// EFI_GRAPHICS_OUTPUT_PROTOCOL offsets
const gopMode = 0x18

// EFI_GRAPHICS_OUTPUT_PROTOCOL_MODE offsets
const (
	modeInfo            = 0x08
	modeFrameBufferBase = 0x18
	modeFrameBufferSize = 0x20
)

// EFI_GRAPHICS_OUTPUT_MODE_INFORMATION offsets
const (
	infoHorizontalResolution = 0x04
	infoVerticalResolution   = 0x08
	infoPixelFormat          = 0x0c
	infoPixelsPerScanLine    = 0x20
)

// PixelFormat is an EFI_GRAPHICS_PIXEL_FORMAT value.
type PixelFormat uint32

// EFI_GRAPHICS_PIXEL_FORMAT
const (
	PixelRedGreenBlueReserved8BitPerColor PixelFormat = iota
	PixelBlueGreenRedReserved8BitPerColor
	PixelBitMask
	PixelBltOnly
)

// Framebuffer describes the linear framebuffer of the current graphics mode.
type Framebuffer struct {
	Base              uint64
	Size              uint64
	Width             uint32
	Height            uint32
	PixelsPerScanLine uint32
	PixelFormat       PixelFormat
}

// Framebuffer queries the graphics output protocol for the current mode.
// Systems without a linear framebuffer (PixelBltOnly) report a zero Base.
func (s *Services) Framebuffer() (Framebuffer, *boot.Error) {
	gop, err := s.Boot.LocateProtocol(&GraphicsOutputProtocolGUID)
	if err != nil {
		return Framebuffer{}, err
	}

	mode := peekPtr(gop + gopMode)
	info := peekPtr(mode + modeInfo)

	fb := Framebuffer{
		Width:             peek32(info + infoHorizontalResolution),
		Height:            peek32(info + infoVerticalResolution),
		PixelFormat:       PixelFormat(peek32(info + infoPixelFormat)),
		PixelsPerScanLine: peek32(info + infoPixelsPerScanLine),
	}

	if fb.PixelFormat != PixelBltOnly {
		fb.Base = peek64(mode + modeFrameBufferBase)
		fb.Size = peek64(mode + modeFrameBufferSize)
	}

	return fb, nil
}
