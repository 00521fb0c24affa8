package boot

// ErrorKind classifies an Error so that callers can decide whether a failure
// may be retried or must escalate to a processor halt.
type ErrorKind uint8

const (
	// KindUnknown is used by errors that do not fall into any other kind.
	KindUnknown ErrorKind = iota

	// KindResourceExhaustion indicates that no physical frames are left.
	KindResourceExhaustion

	// KindMappingConflict indicates an attempt to map a virtual page that
	// already points to a different physical frame.
	KindMappingConflict

	// KindFormat indicates a malformed or foreign executable image.
	KindFormat

	// KindService indicates that a firmware service reported a failure.
	KindService
)

// String implements fmt.Stringer for ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindResourceExhaustion:
		return "resource exhaustion"
	case KindMappingConflict:
		return "mapping conflict"
	case KindFormat:
		return "format error"
	case KindService:
		return "service error"
	default:
		return "unknown"
	}
}

// Error describes a boot error. All boot errors are defined as global
// variables that are pointers to the Error structure so that failure paths
// never need to allocate memory.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// The error classification.
	Kind ErrorKind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
