// Package kfmt implements an allocation-free formatted printer that the
// loader uses for diagnostics before, during and after the firmware console
// is available.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize is large enough to hold a 64-bit value in base 8 plus padding.
const numBufSize = 32

var (
	errMissingArg   = []byte("%!(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")
	hexPrefix       = []byte("0x")
	hexDigits       = "0123456789abcdef"

	numBuf  [numBufSize]byte
	oneByte = []byte(" ")

	// backlog captures output written while no sink is attached.
	backlog ringBuffer

	// sink receives Printf output. When nil, output goes to backlog.
	sink io.Writer
)

// SetOutputSink redirects Printf output to w and drains any output that was
// captured while no sink was attached. Passing nil detaches the current sink;
// subsequent output is retained in the backlog.
func SetOutputSink(w io.Writer) {
	sink = w
	if w != nil {
		io.Copy(w, &backlog)
	}
}

// GetOutputSink returns the currently attached sink or nil.
func GetOutputSink() io.Writer {
	return sink
}

// Printf formats according to a format specifier and writes to the active
// output sink.
//
// The supported verbs are:
//
//	%s  string or []byte
//	%d  integer, base 10
//	%x  integer, base 16 (lower-case)
//	%o  integer, base 8
//	%t  bool
//	%%  a literal percent sign
//
// An optional decimal width may precede the verb. Strings and base-10
// integers are padded with spaces; base-8 and base-16 integers are padded
// with zeroes. The '#' flag prefixes base-16 output with "0x".
//
// Printf never allocates. Arguments of unsupported types produce
// %!(WRONGTYPE) instead of consulting fmt.Stringer.
func Printf(format string, args ...interface{}) {
	Fprintf(sink, format, args...)
}

// Fprintf behaves like Printf but writes to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		i        int
		n        = len(format)
	)

	for i < n {
		ch := format[i]
		if ch != '%' {
			writeByte(w, ch)
			i++
			continue
		}

		i++
		width, alt := 0, false
		verbFound := false
		for ; i < n && !verbFound; i++ {
			ch = format[i]
			switch {
			case ch == '#':
				alt = true
			case ch >= '0' && ch <= '9':
				width = width*10 + int(ch-'0')
			case ch == '%':
				writeByte(w, '%')
				verbFound = true
			case ch == 's' || ch == 'd' || ch == 'x' || ch == 'o' || ch == 't':
				verbFound = true
				if argIndex >= len(args) {
					doWrite(w, errMissingArg)
					break
				}

				arg := args[argIndex]
				argIndex++
				switch ch {
				case 's':
					fmtString(w, arg, width)
				case 'd':
					fmtInt(w, arg, 10, width, false)
				case 'x':
					fmtInt(w, arg, 16, width, alt)
				case 'o':
					fmtInt(w, arg, 8, width, false)
				case 't':
					fmtBool(w, arg)
				}
			default:
				// Unknown verb character; emit an error marker and
				// resume scanning after it.
				doWrite(w, errNoVerb)
				verbFound = true
			}
		}

		if !verbFound {
			doWrite(w, errNoVerb)
		}
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case b:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

func fmtString(w io.Writer, v interface{}, width int) {
	switch s := v.(type) {
	case string:
		pad(w, ' ', width-len(s))
		// Slicing a string into []byte allocates so emit it byte by byte.
		for i := 0; i < len(s); i++ {
			writeByte(w, s[i])
		}
	case []byte:
		pad(w, ' ', width-len(s))
		doWrite(w, s)
	default:
		doWrite(w, errWrongArgType)
	}
}

func pad(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

// fmtInt renders v in the requested base. All built-in integer types are
// supported.
func fmtInt(w io.Writer, v interface{}, base uint64, width int, alt bool) {
	var (
		u   uint64
		neg bool
	)

	switch t := v.(type) {
	case uint8:
		u = uint64(t)
	case uint16:
		u = uint64(t)
	case uint32:
		u = uint64(t)
	case uint64:
		u = t
	case uint:
		u = uint64(t)
	case uintptr:
		u = uint64(t)
	case int8:
		u, neg = abs(int64(t))
	case int16:
		u, neg = abs(int64(t))
	case int32:
		u, neg = abs(int64(t))
	case int64:
		u, neg = abs(t)
	case int:
		u, neg = abs(int64(t))
	default:
		doWrite(w, errWrongArgType)
		return
	}

	if width > numBufSize {
		width = numBufSize
	}

	// Digits are produced right to left.
	pos := numBufSize
	for {
		pos--
		numBuf[pos] = hexDigits[u%base]
		u /= base
		if u == 0 || pos == 0 {
			break
		}
	}

	digits := numBufSize - pos
	if base == 10 {
		if neg {
			digits++
		}
		pad(w, ' ', width-digits)
		if neg {
			writeByte(w, '-')
		}
		doWrite(w, numBuf[pos:])
		return
	}

	if alt && base == 16 {
		doWrite(w, hexPrefix)
	}
	if neg {
		writeByte(w, '-')
		digits++
	}
	pad(w, '0', width-digits)
	doWrite(w, numBuf[pos:])
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func writeByte(w io.Writer, b byte) {
	oneByte[0] = b
	doWrite(w, oneByte)
}

// doWrite hides p from escape analysis. Without it the compiler flags p as
// escaping through the unknown io.Writer and every call to Printf would
// allocate while boxing its arguments.
func doWrite(w io.Writer, p []byte) {
	realWrite(w, noEscape(unsafe.Pointer(&p)))
}

func realWrite(w io.Writer, ptr unsafe.Pointer) {
	p := *(*[]byte)(ptr)
	if w != nil {
		w.Write(p)
		return
	}
	backlog.Write(p)
}

//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
