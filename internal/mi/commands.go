package mi

import (
	"strconv"
)

// ExecContinue resumes the selected thread, or every thread when all is set.
func ExecContinue(all bool) Command {
	c := NewCommand("-exec-continue")
	if all {
		c.Options = []string{"--all"}
	}
	return c
}

// ExecNext steps over one source line.
func ExecNext() Command { return NewCommand("-exec-next") }

// ExecStep steps into one source line.
func ExecStep() Command { return NewCommand("-exec-step") }

// ExecNextInstruction steps over one machine instruction.
func ExecNextInstruction() Command { return NewCommand("-exec-next-instruction") }

// ExecStepInstruction steps into one machine instruction.
func ExecStepInstruction() Command { return NewCommand("-exec-step-instruction") }

// ExecFinish runs until the selected frame returns.
func ExecFinish() Command { return NewCommand("-exec-finish") }

// ExecInterrupt stops the selected thread, or every thread when all is set.
func ExecInterrupt(all bool) Command {
	c := NewCommand("-exec-interrupt")
	if all {
		c.Options = []string{"--all"}
	}
	return c
}

// ExecRun starts the inferior.
func ExecRun() Command { return NewCommand("-exec-run") }

// ExecArguments sets the inferior's command line.
func ExecArguments(args ...string) Command {
	return NewCommand("-exec-arguments", args...)
}

// FileExecAndSymbols loads the executable and its symbols.
func FileExecAndSymbols(path string) Command {
	return NewCommand("-file-exec-and-symbols", path)
}

// BreakInsertOptions holds the optional flags of -break-insert.
type BreakInsertOptions struct {
	Temporary   bool
	Hardware    bool
	Condition   string
	IgnoreCount int
	Thread      string
	Disabled    bool
	Pending     bool
}

// BreakInsert builds -break-insert. Options are written in the order
// -t -h -c -i -p -d -f and the location is the only parameter.
func BreakInsert(location string, opts BreakInsertOptions) Command {
	c := NewCommand("-break-insert", location)
	if opts.Temporary {
		c.Options = append(c.Options, "-t")
	}
	if opts.Hardware {
		c.Options = append(c.Options, "-h")
	}
	if opts.Condition != "" {
		c.Options = append(c.Options, "-c", opts.Condition)
	}
	if opts.IgnoreCount > 0 {
		c.Options = append(c.Options, "-i", strconv.Itoa(opts.IgnoreCount))
	}
	if opts.Thread != "" {
		c.Options = append(c.Options, "-p", opts.Thread)
	}
	if opts.Disabled {
		c.Options = append(c.Options, "-d")
	}
	if opts.Pending {
		c.Options = append(c.Options, "-f")
	}
	return c
}

// BreakDelete deletes breakpoints by number.
func BreakDelete(numbers ...string) Command { return NewCommand("-break-delete", numbers...) }

// BreakEnable enables breakpoints by number.
func BreakEnable(numbers ...string) Command { return NewCommand("-break-enable", numbers...) }

// BreakDisable disables breakpoints by number.
func BreakDisable(numbers ...string) Command { return NewCommand("-break-disable", numbers...) }

// BreakList lists the breakpoint table.
func BreakList() Command { return NewCommand("-break-list") }

// StackListFrames lists frames low through high of the selected thread.
// A negative low lists every frame.
func StackListFrames(low, high int) Command {
	if low < 0 {
		return NewCommand("-stack-list-frames")
	}
	return NewCommand("-stack-list-frames", strconv.Itoa(low), strconv.Itoa(high))
}

// StackInfoDepth returns the depth of the selected thread's stack.
func StackInfoDepth() Command { return NewCommand("-stack-info-depth") }

// ThreadInfo describes one thread, or every thread when id is empty.
func ThreadInfo(id string) Command {
	if id == "" {
		return NewCommand("-thread-info")
	}
	return NewCommand("-thread-info", id)
}

// ListThreadGroups lists inferiors.
func ListThreadGroups() Command { return NewCommand("-list-thread-groups") }

// DataEvaluateExpression evaluates expr in the selected frame.
func DataEvaluateExpression(expr string) Command {
	return NewCommand("-data-evaluate-expression", expr)
}

// GdbSet sets a gdb variable, e.g. GdbSet("mi-async", "on").
func GdbSet(args ...string) Command { return NewCommand("-gdb-set", args...) }

// GdbVersion asks for the banner on the console stream.
func GdbVersion() Command { return NewCommand("-gdb-version") }

// GdbExit asks gdb to quit.
func GdbExit() Command { return NewCommand("-gdb-exit") }

// ListFeatures lists MI features of the backend.
func ListFeatures() Command { return NewCommand("-list-features") }

// InterpreterExecConsole runs a CLI command through the console interpreter.
func InterpreterExecConsole(cli string) Command {
	return NewCommand("-interpreter-exec", "console", cli)
}
