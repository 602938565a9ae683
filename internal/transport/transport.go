// Package transport carries MI text between the engine and a gdb process.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MaxLineLength is the longest output line accepted from the backend (4MB).
const MaxLineLength = 4 * 1024 * 1024

var (
	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("transport closed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("transport already started")

	// ErrLineTooLong is reported through onClose when a line exceeds MaxLineLength.
	ErrLineTooLong = errors.New("line exceeds maximum length")

	// ErrInterruptUnsupported is returned by Interrupt where signals are unavailable.
	ErrInterruptUnsupported = errors.New("interrupt not supported on this platform")
)

// Transport is a line-oriented connection to the backend.
type Transport interface {
	// Start begins reading. onLine is called once per line, without the
	// line terminator, from a single reader goroutine. onClose is called
	// exactly once when reading stops: with nil after Close, otherwise with
	// the read error.
	Start(onLine func(line string), onClose func(err error)) error

	// Write sends one encoded command.
	Write(p []byte) error

	// Close stops reading and releases the connection.
	Close() error
}

// RawTransport wraps any io.ReadWriteCloser as a Transport.
type RawTransport struct {
	rwc io.ReadWriteCloser

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

// NewRawTransport creates a transport from any ReadWriteCloser.
func NewRawTransport(rwc io.ReadWriteCloser) *RawTransport {
	return &RawTransport{
		rwc:  rwc,
		done: make(chan struct{}),
	}
}

// Start starts the reader goroutine.
func (t *RawTransport) Start(onLine func(string), onClose func(error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true

	go t.readLoop(onLine, onClose)
	return nil
}

// Write writes p to the connection.
func (t *RawTransport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if _, err := t.rwc.Write(p); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close closes the connection.
func (t *RawTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	return t.rwc.Close()
}

func (t *RawTransport) isClosed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *RawTransport) readLoop(onLine func(string), onClose func(error)) {
	err := readLines(bufio.NewReader(t.rwc), onLine)
	if t.isClosed() {
		err = nil
	}
	if onClose != nil {
		onClose(err)
	}
}

// readLines calls onLine for every line until r fails. A final line
// without a terminator is delivered before io.EOF is returned.
func readLines(r *bufio.Reader, onLine func(string)) error {
	var long strings.Builder
	for {
		chunk, err := r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if long.Len()+len(chunk) > MaxLineLength {
				return ErrLineTooLong
			}
			long.Write(chunk)
			continue
		}

		var line string
		if long.Len() > 0 {
			long.Write(chunk)
			line = long.String()
			long.Reset()
		} else {
			line = string(chunk)
		}
		if len(line) > MaxLineLength {
			return ErrLineTooLong
		}

		line = strings.TrimRight(line, "\r\n")
		if line != "" || err == nil {
			onLine(line)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}
