package event

// Session life cycle.
const (
	TopicSessionStarted    Topic = "session.started"
	TopicSessionTerminated Topic = "session.terminated"
)

// Run control.
const (
	// TopicSuspended is published when a thread or process stops.
	TopicSuspended Topic = "runcontrol.suspended"

	// TopicResumed is published when execution continues or a step starts.
	TopicResumed Topic = "runcontrol.resumed"

	// TopicExited is published when the inferior or the backend exits.
	TopicExited Topic = "runcontrol.exited"
)

// Execution contexts.
const (
	TopicContextStarted Topic = "context.started"
	TopicContextExited  Topic = "context.exited"
)

// Breakpoints.
const (
	TopicBreakpointCreated  Topic = "breakpoint.created"
	TopicBreakpointModified Topic = "breakpoint.modified"
	TopicBreakpointDeleted  Topic = "breakpoint.deleted"
	TopicBreakpointHit      Topic = "breakpoint.hit"
)

// Stream output.
const (
	TopicConsoleOutput Topic = "output.console"
	TopicTargetOutput  Topic = "output.target"
	TopicLogOutput     Topic = "output.log"
)
