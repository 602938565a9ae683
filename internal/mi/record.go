package mi

// ResultClass is the class of a result record.
type ResultClass string

// Result classes.
const (
	ClassDone      ResultClass = "done"
	ClassRunning   ResultClass = "running"
	ClassConnected ResultClass = "connected"
	ClassError     ResultClass = "error"
	ClassExit      ResultClass = "exit"
)

// Valid reports whether c is a known result class.
func (c ResultClass) Valid() bool {
	switch c {
	case ClassDone, ClassRunning, ClassConnected, ClassError, ClassExit:
		return true
	}
	return false
}

// AsyncKind distinguishes the three async record prefixes.
type AsyncKind int

const (
	// AsyncExec is a "*" record: execution state changes.
	AsyncExec AsyncKind = iota
	// AsyncStatus is a "+" record: progress of slow operations.
	AsyncStatus
	// AsyncNotify is a "=" record: supplementary notifications.
	AsyncNotify
)

// String returns the record prefix.
func (k AsyncKind) String() string {
	switch k {
	case AsyncExec:
		return "*"
	case AsyncStatus:
		return "+"
	case AsyncNotify:
		return "="
	default:
		return "?"
	}
}

// StreamKind distinguishes the three stream record prefixes.
type StreamKind int

const (
	// StreamConsole is "~": CLI console output.
	StreamConsole StreamKind = iota
	// StreamTarget is "@": output of the running target.
	StreamTarget
	// StreamLog is "&": gdb internal log messages.
	StreamLog
)

// String returns the record prefix.
func (k StreamKind) String() string {
	switch k {
	case StreamConsole:
		return "~"
	case StreamTarget:
		return "@"
	case StreamLog:
		return "&"
	default:
		return "?"
	}
}

// Record is one decoded output line.
type Record interface {
	isRecord()
}

// ResultRecord is the reply to a command, addressed by token.
type ResultRecord struct {
	Token    uint64
	HasToken bool
	Class    ResultClass
	Results  Tuple

	// Console holds console stream text received while the command was
	// outstanding. It is filled in by the command engine.
	Console []string
}

// AsyncRecord is an out-of-band notification. It is not a reply to any
// command even when the backend echoes a token.
type AsyncRecord struct {
	Token    uint64
	HasToken bool
	Kind     AsyncKind
	Class    string
	Results  Tuple
}

// StreamRecord is console, target or log output.
type StreamRecord struct {
	Kind StreamKind
	Text string
}

// PromptRecord is the "(gdb)" line that ends a batch of output.
type PromptRecord struct{}

func (*ResultRecord) isRecord() {}
func (*AsyncRecord) isRecord()  {}
func (*StreamRecord) isRecord() {}
func (*PromptRecord) isRecord() {}

// IsOutOfBand reports whether r is not addressed to a command.
func IsOutOfBand(r Record) bool {
	switch r.(type) {
	case *AsyncRecord, *StreamRecord:
		return true
	}
	return false
}

// ErrorMessage returns the msg field of an error result.
func (r *ResultRecord) ErrorMessage() string {
	return r.Results.String("msg")
}

// ErrorCode returns the code field of an error result, if any.
func (r *ResultRecord) ErrorCode() string {
	return r.Results.String("code")
}
