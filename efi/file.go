package efi

import "github.com/queso-fuego/uefi-dev-sub000/boot"

// EFI_SIMPLE_FILE_SYSTEM_PROTOCOL offsets
const openVolume = 0x08

// EFI_FILE_PROTOCOL offsets
const (
	fileOpen        = 0x08
	fileClose       = 0x10
	fileRead        = 0x20
	fileGetPosition = 0x30
	fileSetPosition = 0x38
)

const (
	fileModeRead = 0x1

	// positionEOF moves the file position to the end of the file.
	positionEOF = ^uint64(0)
)

var errShortRead = &boot.Error{Module: "efi", Message: "short read while loading file", Kind: boot.KindService}

// file wraps an EFI_FILE_PROTOCOL instance.
type file uintptr

func (f file) open(path string) (file, *boot.Error) {
	out.handle = 0
	name := encodeUCS2(path, true)

	status := callServiceFn(uintptr(f)+fileOpen,
		uint64(f),
		ptrval(&out.handle),
		ptrval(&name[0]),
		fileModeRead,
		0,
	)
	if err := parseStatus(status); err != nil {
		return 0, err
	}
	return file(out.handle), nil
}

func (f file) close() {
	callServiceFn(uintptr(f)+fileClose, uint64(f))
}

func (f file) size() (uint64, *boot.Error) {
	if err := parseStatus(callServiceFn(uintptr(f)+fileSetPosition, uint64(f), positionEOF)); err != nil {
		return 0, err
	}

	if err := parseStatus(callServiceFn(uintptr(f)+fileGetPosition, uint64(f), ptrval(&out.size))); err != nil {
		return 0, err
	}
	size := out.size

	return size, parseStatus(callServiceFn(uintptr(f)+fileSetPosition, uint64(f), 0))
}

func (f file) read(buf []byte) (int, *boot.Error) {
	if len(buf) == 0 {
		return 0, nil
	}

	out.size = uint64(len(buf))
	if err := parseStatus(callServiceFn(uintptr(f)+fileRead, uint64(f), ptrval(&out.size), ptrval(&buf[0]))); err != nil {
		return 0, err
	}
	return int(out.size), nil
}

// ReadFile loads the contents of path from the volume the loader image was
// started from. path may use either slash or backslash separators.
func (s *Services) ReadFile(path string) ([]byte, *boot.Error) {
	li, err := s.LoadedImage()
	if err != nil {
		return nil, err
	}

	fs, err := s.Boot.HandleProtocol(peekPtr(li+loadedImageDeviceHandle), &SimpleFileSystemProtocolGUID)
	if err != nil {
		return nil, err
	}

	out.handle = 0
	if err = parseStatus(callServiceFn(fs+openVolume, uint64(fs), ptrval(&out.handle))); err != nil {
		return nil, err
	}
	root := file(out.handle)
	defer root.close()

	f, err := root.open(path)
	if err != nil {
		return nil, err
	}
	defer f.close()

	size, err := f.size()
	if err != nil {
		return nil, err
	}

	data := make([]byte, size)
	for off := 0; off < len(data); {
		n, err := f.read(data[off:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, errShortRead
		}
		off += n
	}

	return data, nil
}
