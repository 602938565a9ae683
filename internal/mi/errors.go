package mi

import (
	"errors"
	"fmt"
)

// ErrMalformed is matched by every ProtocolError.
var ErrMalformed = errors.New("malformed MI record")

// ProtocolError reports an output line that could not be decoded. When the
// line started with a token the token is kept. IsResult is set once the
// '^' prefix was read; only then does the line belong to the command with
// that token.
type ProtocolError struct {
	Line     string
	Offset   int
	Reason   string
	Token    uint64
	HasToken bool
	IsResult bool
}

func (e *ProtocolError) Error() string {
	if e.HasToken {
		return fmt.Sprintf("mi: token %d: %s at offset %d in %q", e.Token, e.Reason, e.Offset, e.Line)
	}
	return fmt.Sprintf("mi: %s at offset %d in %q", e.Reason, e.Offset, e.Line)
}

// Unwrap allows errors.Is(err, ErrMalformed).
func (e *ProtocolError) Unwrap() error {
	return ErrMalformed
}
