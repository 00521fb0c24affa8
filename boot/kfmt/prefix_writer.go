package kfmt

import "io"

// PrefixWriter wraps an io.Writer and emits Prefix at the start of every
// line written through it.
type PrefixWriter struct {
	Sink   io.Writer
	Prefix []byte

	midLine bool
}

// Write sends p to the wrapped writer injecting the prefix after each
// newline. The reported byte count excludes injected prefixes.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written int

	for len(p) != 0 {
		if !w.midLine {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		lineLen := len(p)
		for i, b := range p {
			if b == '\n' {
				lineLen = i + 1
				w.midLine = false
				break
			}
		}

		n, err := w.Sink.Write(p[:lineLen])
		written += n
		if err != nil {
			return written, err
		}
		p = p[lineLen:]
	}

	return written, nil
}
