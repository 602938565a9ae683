package command

import "github.com/dshills/gdbmi/internal/mi"

// CommandListener observes the life of every command. Methods run on the
// session executor, synchronously with the table change they report, so a
// listener sees a result before any record that follows it on the wire.
type CommandListener interface {
	// CommandQueued is called when a token is assigned, before the write.
	CommandQueued(token uint64, cmd mi.Command)

	// CommandSent is called after the command was written.
	CommandSent(token uint64, cmd mi.Command)

	// CommandDone is called when the command leaves the table: with the
	// result record, or with err for timeouts, protocol errors and
	// disconnects. It is not called for cancelled commands.
	CommandDone(token uint64, cmd mi.Command, rec *mi.ResultRecord, err error)
}

// EventListener receives every record not addressed to a command.
type EventListener interface {
	EventReceived(rec mi.Record)
}

// CommandListenerFuncs adapts functions to CommandListener. Nil fields are
// skipped.
type CommandListenerFuncs struct {
	Queued func(token uint64, cmd mi.Command)
	Sent   func(token uint64, cmd mi.Command)
	Done   func(token uint64, cmd mi.Command, rec *mi.ResultRecord, err error)
}

func (f CommandListenerFuncs) CommandQueued(token uint64, cmd mi.Command) {
	if f.Queued != nil {
		f.Queued(token, cmd)
	}
}

func (f CommandListenerFuncs) CommandSent(token uint64, cmd mi.Command) {
	if f.Sent != nil {
		f.Sent(token, cmd)
	}
}

func (f CommandListenerFuncs) CommandDone(token uint64, cmd mi.Command, rec *mi.ResultRecord, err error) {
	if f.Done != nil {
		f.Done(token, cmd, rec, err)
	}
}

// EventListenerFunc adapts a function to EventListener.
type EventListenerFunc func(rec mi.Record)

func (f EventListenerFunc) EventReceived(rec mi.Record) {
	f(rec)
}
