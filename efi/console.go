package efi

// EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL offsets
const (
	outputString = 0x08
	clearScreen  = 0x30
)

// consoleChunk is the number of UCS-2 code units passed to each
// OutputString call, including the terminating NUL.
const consoleChunk = 128

// Console is an io.Writer backed by an EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL
// instance. Line feeds are expanded to CR LF.
type Console struct {
	base uintptr
	buf  [consoleChunk]uint16
}

// NewConsole returns a Console writing to the protocol instance at base.
func NewConsole(base uintptr) *Console {
	return &Console{base: base}
}

// Write implements io.Writer.
func (c *Console) Write(p []byte) (int, error) {
	n := 0
	for _, r := range string(p) {
		if r == '\n' {
			c.put('\r', &n)
		}

		if r > 0xffff {
			// UCS-2 cannot express characters outside the BMP.
			r = '?'
		}
		c.put(uint16(r), &n)
	}
	c.flush(n)

	return len(p), nil
}

// ClearScreen calls EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.ClearScreen().
func (c *Console) ClearScreen() {
	callServiceFn(c.base+clearScreen, uint64(c.base))
}

func (c *Console) put(ch uint16, n *int) {
	if *n == consoleChunk-1 {
		c.flush(*n)
		*n = 0
	}
	c.buf[*n] = ch
	*n++
}

func (c *Console) flush(n int) {
	if n == 0 {
		return
	}
	c.buf[n] = 0
	callServiceFn(c.base+outputString, uint64(c.base), ptrval(&c.buf[0]))
}
