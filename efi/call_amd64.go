package efi

// maxServiceArgs is the largest argument count of any service called by
// this package.
const maxServiceArgs = 10

var (
	// callServiceFn is mocked by tests.
	callServiceFn = callService
)

// callFn calls fn using the Microsoft x64 calling convention. The first n
// entries of args are passed as arguments.
func callFn(fn uintptr, args *uint64, n uintptr) uint64

// callService invokes the service whose function pointer is stored at slot.
func callService(slot uintptr, args ...uint64) uint64 {
	var argv [maxServiceArgs]uint64
	n := copy(argv[:], args)
	return callFn(peekPtr(slot), &argv[0], uintptr(n))
}
