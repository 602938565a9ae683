package runcontrol

import (
	"strconv"
	"strings"
)

// Vocabulary maps the reason strings of *stopped records to reasons.
type Vocabulary map[string]Reason

// Reason returns the reason for s, or ReasonUnknown.
func (v Vocabulary) Reason(s string) Reason {
	if r, ok := v[s]; ok {
		return r
	}
	return ReasonUnknown
}

var baseVocabulary = Vocabulary{
	"breakpoint-hit":            ReasonBreakpoint,
	"watchpoint-trigger":        ReasonWatchpoint,
	"read-watchpoint-trigger":   ReasonWatchpoint,
	"access-watchpoint-trigger": ReasonWatchpoint,
	"watchpoint-scope":          ReasonWatchpoint,
	"function-finished":         ReasonFunctionFinished,
	"location-reached":          ReasonStepComplete,
	"end-stepping-range":        ReasonEndSteppingRange,
	"signal-received":           ReasonSignal,
	"exited-signalled":          ReasonExited,
	"exited":                    ReasonExited,
	"exited-normally":           ReasonExited,
	"error":                     ReasonError,
}

// versionAdditions lists reasons introduced by later backends, keyed by the
// first major.minor version that reports them.
var versionAdditions = []struct {
	major, minor int
	reasons      Vocabulary
}{
	{7, 0, Vocabulary{
		"solib-event":    ReasonEventBreakpoint,
		"fork":           ReasonEventBreakpoint,
		"vfork":          ReasonEventBreakpoint,
		"syscall-entry":  ReasonEventBreakpoint,
		"syscall-return": ReasonEventBreakpoint,
		"exec":           ReasonEventBreakpoint,
	}},
	{7, 2, Vocabulary{
		"no-history": ReasonEndSteppingRange,
	}},
}

// DefaultVocabulary returns the table for the newest known backend.
func DefaultVocabulary() Vocabulary {
	return VocabularyFor("")
}

// VocabularyFor returns the table for a backend version such as "7.1" or
// "GNU gdb (GDB) 14.2". An empty or unparsable version selects every
// known addition.
func VocabularyFor(version string) Vocabulary {
	major, minor, ok := parseVersion(version)

	v := make(Vocabulary, len(baseVocabulary))
	for k, r := range baseVocabulary {
		v[k] = r
	}
	for _, add := range versionAdditions {
		if ok && (major < add.major || (major == add.major && minor < add.minor)) {
			continue
		}
		for k, r := range add.reasons {
			v[k] = r
		}
	}
	return v
}

// parseVersion finds the first "N.M" in s.
func parseVersion(s string) (major, minor int, ok bool) {
	for _, field := range strings.Fields(s) {
		parts := strings.Split(field, ".")
		if len(parts) < 2 {
			continue
		}
		maj, err1 := strconv.Atoi(parts[0])
		mnr, err2 := strconv.Atoi(strings.TrimRightFunc(parts[1], func(r rune) bool { return r < '0' || r > '9' }))
		if err1 != nil || err2 != nil {
			continue
		}
		return maj, mnr, true
	}
	return 0, 0, false
}
