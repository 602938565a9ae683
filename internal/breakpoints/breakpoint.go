// Package breakpoints keeps the breakpoint table of a session in step with
// the backend.
//
// Requests go out as -break-insert, -break-delete, -break-enable and
// -break-disable. The table is also maintained from the out-of-band
// =breakpoint-created, =breakpoint-modified and =breakpoint-deleted
// notifications, so breakpoints set from the gdb console show up as well.
// All table access happens on the session executor.
package breakpoints

import (
	"strconv"

	"github.com/dshills/gdbmi/internal/mi"
)

// Spec describes a breakpoint to insert.
type Spec struct {
	// Location is a linespec such as "main", "file.c:14" or "*0x4005d0".
	Location string `json:"location"`

	// Temporary deletes the breakpoint after the first hit.
	Temporary bool `json:"temporary,omitempty"`

	// Hardware requests a hardware breakpoint.
	Hardware bool `json:"hardware,omitempty"`

	// Condition is evaluated on every hit.
	Condition string `json:"condition,omitempty"`

	// IgnoreCount skips that many hits.
	IgnoreCount int `json:"ignoreCount,omitempty"`

	// Thread restricts the breakpoint to one thread id.
	Thread string `json:"thread,omitempty"`

	// Disabled inserts the breakpoint disabled.
	Disabled bool `json:"disabled,omitempty"`

	// Pending allows a location that is not resolved yet.
	Pending bool `json:"pending,omitempty"`
}

func (s Spec) command() mi.Command {
	return mi.BreakInsert(s.Location, mi.BreakInsertOptions{
		Temporary:   s.Temporary,
		Hardware:    s.Hardware,
		Condition:   s.Condition,
		IgnoreCount: s.IgnoreCount,
		Thread:      s.Thread,
		Disabled:    s.Disabled,
		Pending:     s.Pending,
	})
}

// Breakpoint is one entry of the backend's breakpoint table.
type Breakpoint struct {
	// Number is the backend breakpoint number.
	Number string `json:"number"`

	// Type is "breakpoint", "hw breakpoint", "watchpoint" and so on.
	Type string `json:"type"`

	// Disposition is "keep" or "del".
	Disposition string `json:"disp"`

	Enabled bool `json:"enabled"`

	Address  string `json:"addr,omitempty"`
	Function string `json:"func,omitempty"`
	File     string `json:"file,omitempty"`
	FullName string `json:"fullname,omitempty"`
	Line     int    `json:"line,omitempty"`

	// Location is the location as originally requested.
	Location string `json:"location,omitempty"`

	Condition   string `json:"cond,omitempty"`
	IgnoreCount int    `json:"ignore,omitempty"`
	Thread      string `json:"thread,omitempty"`

	// Pending is set while the location is unresolved.
	Pending bool `json:"pending,omitempty"`

	// HitCount is the number of times the breakpoint was hit.
	HitCount int `json:"times"`
}

// Temporary reports whether the breakpoint is deleted on its next hit.
func (b Breakpoint) Temporary() bool {
	return b.Disposition == "del"
}

// FromTuple decodes a bkpt={...} tuple.
func FromTuple(t mi.Tuple) Breakpoint {
	b := Breakpoint{
		Number:      t.String("number"),
		Type:        t.String("type"),
		Disposition: t.String("disp"),
		Enabled:     t.String("enabled") == "y",
		Address:     t.String("addr"),
		Function:    t.String("func"),
		File:        t.String("file"),
		FullName:    t.String("fullname"),
		Location:    t.String("original-location"),
		Condition:   t.String("cond"),
		Thread:      t.String("thread"),
	}
	b.Line, _ = t.Int("line")
	b.IgnoreCount, _ = t.Int("ignore")
	b.HitCount, _ = t.Int("times")
	if _, ok := t.Get("pending"); ok || b.Address == "<PENDING>" {
		b.Pending = true
	}
	return b
}

// less orders breakpoint numbers numerically, falling back to text.
func less(a, b string) bool {
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return x < y
	}
	return a < b
}
