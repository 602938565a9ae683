package runcontrol

import (
	"github.com/dshills/gdbmi/internal/execctx"
	"github.com/dshills/gdbmi/internal/mi"
)

// State is the run state of a process or thread.
type State int

const (
	// StateSuspended means the context is stopped and can be inspected.
	StateSuspended State = iota
	// StateRunning means the context is executing.
	StateRunning
	// StateStepping means a step command is executing.
	StateStepping
	// StateTerminated means the context exited. No further transitions.
	StateTerminated
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateStepping:
		return "stepping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reason explains the last state change.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonUserRequest
	ReasonBreakpoint
	ReasonWatchpoint
	ReasonEventBreakpoint
	ReasonSignal
	ReasonError
	ReasonStepComplete
	ReasonEndSteppingRange
	ReasonFunctionFinished
	ReasonExited
	ReasonContainer
)

var reasonNames = [...]string{
	ReasonUnknown:          "unknown",
	ReasonUserRequest:      "user-request",
	ReasonBreakpoint:       "breakpoint",
	ReasonWatchpoint:       "watchpoint",
	ReasonEventBreakpoint:  "event-breakpoint",
	ReasonSignal:           "signal",
	ReasonError:            "error",
	ReasonStepComplete:     "step-complete",
	ReasonEndSteppingRange: "end-stepping-range",
	ReasonFunctionFinished: "function-finished",
	ReasonExited:           "exited",
	ReasonContainer:        "container",
}

// String returns a string representation of the reason.
func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}
	return reasonNames[r]
}

// StepType selects the step command.
type StepType int

const (
	StepOver StepType = iota
	StepInto
	StepReturn
	InstructionStepOver
	InstructionStepInto
)

// String returns a string representation of the step type.
func (t StepType) String() string {
	switch t {
	case StepOver:
		return "over"
	case StepInto:
		return "into"
	case StepReturn:
		return "return"
	case InstructionStepOver:
		return "instruction-over"
	case InstructionStepInto:
		return "instruction-into"
	default:
		return "unknown"
	}
}

func (t StepType) command() (mi.Command, bool) {
	switch t {
	case StepOver:
		return mi.ExecNext(), true
	case StepInto:
		return mi.ExecStep(), true
	case StepReturn:
		return mi.ExecFinish(), true
	case InstructionStepOver:
		return mi.ExecNextInstruction(), true
	case InstructionStepInto:
		return mi.ExecStepInstruction(), true
	default:
		return mi.Command{}, false
	}
}

// ExecutionData is the answer to an execution state query.
type ExecutionData struct {
	State   State
	Reason  Reason
	Details string
}

// Suspended reports whether the context is stopped.
func (d ExecutionData) Suspended() bool {
	return d.State == StateSuspended
}

// SuspendedEvent is the payload of runcontrol.suspended.
type SuspendedEvent struct {
	Context        execctx.Handle
	ThreadID       string
	Reason         Reason
	Details        string
	StoppedThreads []string
	Frame          mi.Tuple
}

// ResumedEvent is the payload of runcontrol.resumed.
type ResumedEvent struct {
	Context  execctx.Handle
	ThreadID string
	State    State
	Reason   Reason
}

// ExitedEvent is the payload of runcontrol.exited.
type ExitedEvent struct {
	Context  execctx.Handle
	ExitCode string
	Backend  bool
}

// ContextEvent is the payload of context.started and context.exited.
type ContextEvent struct {
	Context execctx.Context
}
