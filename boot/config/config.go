// Package config extracts the loader settings from the command line the
// loader image was started with.
package config

import (
	"strconv"
	"strings"
)

// Defaults and limits for the supported keys.
const (
	DefaultKernelPath = `\EFI\gopher\kernel.elf`

	DefaultStackPages = 16
	MinStackPages     = 1
	MaxStackPages     = 512

	DefaultISTPages = 4
	MinISTPages     = 1
	MaxISTPages     = 64
)

// Config holds the loader settings.
type Config struct {
	// KernelPath is the path of the kernel image on the volume the loader
	// was started from.
	KernelPath string

	// StackPages is the size of the kernel stack in pages.
	StackPages uintptr

	// ISTPages is the size of the exception stack in pages.
	ISTPages uintptr

	// Verbose enables the memory map and segment table dumps.
	Verbose bool
}

// Default returns the configuration used when no options are supplied.
func Default() Config {
	return Config{
		KernelPath: DefaultKernelPath,
		StackPages: DefaultStackPages,
		ISTPages:   DefaultISTPages,
	}
}

// Parse builds a Config from a whitespace separated list of key=value pairs
// and bare flags. Unknown keys are ignored and values that cannot be parsed
// keep their default. Numeric values are clamped to their allowed range.
func Parse(cmdLine string) Config {
	cfg := Default()

	for k, v := range split(cmdLine) {
		switch k {
		case "kernel":
			if v != "" && v != k {
				cfg.KernelPath = v
			}
		case "stack_pages":
			cfg.StackPages = parsePages(v, DefaultStackPages, MinStackPages, MaxStackPages)
		case "ist_pages":
			cfg.ISTPages = parsePages(v, DefaultISTPages, MinISTPages, MaxISTPages)
		case "verbose":
			cfg.Verbose = v == k || v == "1" || v == "true" || v == "on"
		}
	}

	return cfg
}

// split returns the key-value pairs in cmdLine. A bare flag maps to its own
// name and tokens with more than one '=' are skipped.
func split(cmdLine string) map[string]string {
	kv := make(map[string]string)

	for _, pair := range strings.Fields(cmdLine) {
		parts := strings.Split(pair, "=")
		switch len(parts) {
		case 2: // foo=bar
			kv[parts[0]] = parts[1]
		case 1: // foo
			kv[parts[0]] = parts[0]
		}
	}

	return kv
}

func parsePages(v string, def, lo, hi uintptr) uintptr {
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return def
	}

	switch {
	case uintptr(n) < lo:
		return lo
	case n > uint64(hi):
		return hi
	default:
		return uintptr(n)
	}
}
