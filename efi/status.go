package efi

import "github.com/queso-fuego/uefi-dev-sub000/boot"

// Status is an EFI_STATUS value.
type Status uint64

const errorBit = Status(1 << 63)

// EFI_STATUS codes returned by the services this package calls.
const (
	Success          = Status(0)
	LoadError        = errorBit | 1
	InvalidParameter = errorBit | 2
	Unsupported      = errorBit | 3
	BufferTooSmall   = errorBit | 5
	DeviceError      = errorBit | 7
	OutOfResources   = errorBit | 9
	NotFound         = errorBit | 14
)

var (
	errLoadError        = &boot.Error{Module: "efi", Message: "image load error", Kind: boot.KindService}
	errInvalidParameter = &boot.Error{Module: "efi", Message: "invalid parameter", Kind: boot.KindService}
	errUnsupported      = &boot.Error{Module: "efi", Message: "unsupported", Kind: boot.KindService}
	// ErrBufferTooSmall is returned when a caller supplied buffer cannot
	// hold the service output.
	ErrBufferTooSmall   = &boot.Error{Module: "efi", Message: "buffer too small", Kind: boot.KindService}
	errDeviceError      = &boot.Error{Module: "efi", Message: "device error", Kind: boot.KindService}
	errOutOfResources   = &boot.Error{Module: "efi", Message: "out of resources", Kind: boot.KindService}
	errNotFound         = &boot.Error{Module: "efi", Message: "not found", Kind: boot.KindService}
	errUnknownStatus    = &boot.Error{Module: "efi", Message: "unexpected status", Kind: boot.KindService}
)

// IsError returns true if the status has its error bit set. Warnings are
// not errors.
func (s Status) IsError() bool {
	return s&errorBit != 0
}

// parseStatus maps a service return value to one of the package errors.
func parseStatus(status uint64) *boot.Error {
	switch s := Status(status); {
	case !s.IsError():
		return nil
	case s == LoadError:
		return errLoadError
	case s == InvalidParameter:
		return errInvalidParameter
	case s == Unsupported:
		return errUnsupported
	case s == BufferTooSmall:
		return ErrBufferTooSmall
	case s == DeviceError:
		return errDeviceError
	case s == OutOfResources:
		return errOutOfResources
	case s == NotFound:
		return errNotFound
	default:
		return errUnknownStatus
	}
}

// IsBufferTooSmall returns true if err reports that a caller supplied buffer
// could not hold the service output.
func IsBufferTooSmall(err *boot.Error) bool {
	return err == ErrBufferTooSmall
}
