package main

import (
	"errors"
	"fmt"
	"strings"
)

// verb is one interactive command read from stdin.
type verb string

const (
	verbContinue  verb = "continue"
	verbNext      verb = "next"
	verbStep      verb = "step"
	verbFinish    verb = "finish"
	verbInterrupt verb = "interrupt"
	verbBacktrace verb = "bt"
	verbThreads   verb = "threads"
	verbQuit      verb = "quit"
)

var errUnknownVerb = errors.New("unknown command")

var verbs = map[string]verb{
	"c":         verbContinue,
	"continue":  verbContinue,
	"n":         verbNext,
	"next":      verbNext,
	"s":         verbStep,
	"step":      verbStep,
	"fin":       verbFinish,
	"finish":    verbFinish,
	"interrupt": verbInterrupt,
	"bt":        verbBacktrace,
	"backtrace": verbBacktrace,
	"where":     verbBacktrace,
	"threads":   verbThreads,
	"q":         verbQuit,
	"quit":      verbQuit,
	"exit":      verbQuit,
}

// parseVerb maps an input line to a verb. A blank line yields "".
func parseVerb(line string) (verb, error) {
	line = strings.ToLower(strings.TrimSpace(line))
	if line == "" {
		return "", nil
	}
	v, ok := verbs[line]
	if !ok {
		return "", fmt.Errorf("%w: %q", errUnknownVerb, line)
	}
	return v, nil
}
