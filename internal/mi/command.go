// Package mi implements the GDB machine interface wire format: encoding of
// outbound commands and parsing of inbound records.
package mi

import (
	"strconv"
	"strings"
	"time"
)

// Context selects the thread group, thread and frame a command applies to.
// Empty fields are omitted.
type Context struct {
	ThreadGroup string
	Thread      string
	Frame       string
}

// Command is one MI command. The token is not part of the command; the
// command engine assigns it when the command is written.
type Command struct {
	// Operation is the command name including its leading dash,
	// e.g. "-exec-continue".
	Operation string

	// Options are written after the operation, in order.
	Options []string

	// Parameters are written after the options. A "--" separator
	// precedes them when one of them starts with a dash.
	Parameters []string

	// Context adds --thread-group, --thread and --frame.
	Context Context

	// Timeout overrides the engine's default command timeout when set.
	Timeout time.Duration
}

// NewCommand creates a command with the given operation and parameters.
func NewCommand(operation string, params ...string) Command {
	return Command{Operation: operation, Parameters: params}
}

// WithOptions returns a copy of c with options appended.
func (c Command) WithOptions(opts ...string) Command {
	c.Options = append(append([]string(nil), c.Options...), opts...)
	return c
}

// WithContext returns a copy of c bound to ctx.
func (c Command) WithContext(ctx Context) Command {
	c.Context = ctx
	return c
}

// WithTimeout returns a copy of c with a per-command timeout.
func (c Command) WithTimeout(d time.Duration) Command {
	c.Timeout = d
	return c
}

// String returns the wire form without a token, newline terminated.
func (c Command) String() string {
	var b strings.Builder
	c.writeTo(&b)
	return b.String()
}

// Encode returns the wire form prefixed with token.
func (c Command) Encode(token uint64) []byte {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(token, 10))
	c.writeTo(&b)
	return []byte(b.String())
}

func (c Command) writeTo(b *strings.Builder) {
	b.WriteString(c.Operation)

	if c.Context.ThreadGroup != "" {
		b.WriteString(" --thread-group ")
		b.WriteString(c.Context.ThreadGroup)
	}
	if c.Context.Thread != "" {
		b.WriteString(" --thread ")
		b.WriteString(c.Context.Thread)
	}
	if c.Context.Frame != "" {
		b.WriteString(" --frame ")
		b.WriteString(c.Context.Frame)
	}

	for _, opt := range c.Options {
		b.WriteByte(' ')
		b.WriteString(Quote(opt))
	}

	if len(c.Parameters) > 0 {
		for _, p := range c.Parameters {
			if strings.HasPrefix(p, "-") {
				b.WriteString(" --")
				break
			}
		}
		for _, p := range c.Parameters {
			b.WriteByte(' ')
			b.WriteString(Quote(p))
		}
	}

	b.WriteByte('\n')
}

// Quote returns s as a single MI argument. Values containing whitespace or
// a double quote are wrapped in double quotes with backslashes and double
// quotes escaped; an empty value becomes "". Anything else, including a
// bare backslash in a Windows path, is passed through unchanged.
func Quote(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\r\n\"") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 4)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
