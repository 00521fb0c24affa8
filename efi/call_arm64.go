package efi

var (
	// callServiceFn is mocked by tests.
	callServiceFn = callService
)

// callService is not implemented for arm64 yet; every service call reports
// Unsupported so that the boot pipeline fails cleanly.
func callService(_ uintptr, _ ...uint64) uint64 {
	return uint64(Unsupported)
}
