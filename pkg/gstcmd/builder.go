// Package gstcmd builds canonical CLI invocations for the `gst-launch-1.0`
// binary.
//
// Design:
//
//   - This layer is a pure "command construction" module: no execution, no I/O.
//     It normalizes CLI emission semantics and returns one of two canonical
//     projections of the same intent: argv (process argument vector) or a
//     shell-quoted command string (for logging). Process lifecycle belongs in
//     a higher layer.
//
// Emission policy is deterministic and explicit:
//
//   - Numeric element properties are ALWAYS emitted (including 0; GStreamer
//     treats 0 as "unlimited" for the splitmuxsink ceilings, which matches the
//     rotation-policy semantics here).
//   - String properties are emitted only when non-empty.
//   - argv[0] is always the binary name ("gst-launch-1.0").
//   - Elements after the first are preceded by a "!" link token, mirroring
//     gst-launch pipeline syntax one argv entry at a time.
//
// Usage:
//
//	argv := gstcmd.BuildArgs(p)   // []string{"gst-launch-1.0", "-e", ...}
//	s    := gstcmd.BuildString(p) // "'gst-launch-1.0' '-e' ..."
package gstcmd

import (
	"strconv"
	"strings"
)

// Binary is the pipeline launcher looked up on PATH.
const Binary = "gst-launch-1.0"

// Builder constructs argv and shell-safe command strings for gst-launch-1.0.
//
// The Builder implements a fluent API; it is NOT concurrency-safe. Callers
// should treat a Builder as a single-use, short-lived value object.
//
// Invariants:
//   - argv[0] is always "gst-launch-1.0".
//   - All With*/Element/Prop methods are deterministic and order-preserving.
//   - BuildArgs returns a defensive copy.
type Builder struct {
	args    []string
	inChain bool // at least one element emitted; next Element gets a "!" link
}

// NewBuilder returns a Builder pre-seeded with the binary name.
func NewBuilder() *Builder {
	return &Builder{args: []string{Binary}}
}

// WithFlag appends a bare launcher flag (e.g. "-e") if non-empty.
func (b *Builder) WithFlag(flag string) *Builder {
	if flag != "" {
		b.args = append(b.args, flag)
	}
	return b
}

// Element appends a pipeline element, linking it to the previous element
// with a "!" token when one exists.
func (b *Builder) Element(name string) *Builder {
	if b.inChain {
		b.args = append(b.args, "!")
	}
	b.args = append(b.args, name)
	b.inChain = true
	return b
}

// Prop appends a key=value property on the current element if the value is
// non-empty. Empty string is considered unset and skipped.
func (b *Builder) Prop(key, value string) *Builder {
	if value != "" {
		b.args = append(b.args, key+"="+value)
	}
	return b
}

// IntProp appends a key=value property with a base-10 int value
// (always emitted, including 0).
func (b *Builder) IntProp(key string, value int) *Builder {
	b.args = append(b.args, key+"="+strconv.Itoa(value))
	return b
}

// Int64Prop appends a key=value property with a base-10 int64 value
// (always emitted, including 0).
func (b *Builder) Int64Prop(key string, value int64) *Builder {
	b.args = append(b.args, key+"="+strconv.FormatInt(value, 10))
	return b
}

// Uint64Prop appends a key=value property with a base-10 uint64 value
// (always emitted, including 0).
func (b *Builder) Uint64Prop(key string, value uint64) *Builder {
	b.args = append(b.args, key+"="+strconv.FormatUint(value, 10))
	return b
}

// BuildArgs returns a defensive copy of the constructed argument vector.
//
// The first element (argv[0]) is always "gst-launch-1.0", mirroring POSIX/Go
// exec.Command conventions.
func (b *Builder) BuildArgs() []string {
	out := make([]string, len(b.args))
	copy(out, b.args)
	return out
}

// BuildString returns a single shell-quoted command string.
//
// Quoting strategy:
//   - Single-quote wrapping with inner single quotes escaped as:  ' -> '\”
//   - Safe for POSIX shells; intended for logs, never re-parsed.
func (b *Builder) BuildString() string {
	quoted := make([]string, len(b.args))
	for i, a := range b.args {
		quoted[i] = shQuote(a)
	}
	return strings.Join(quoted, " ")
}

// shQuote returns a POSIX-safe single-quoted token. Empty strings become ''
// to preserve round-trippability.
func shQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
