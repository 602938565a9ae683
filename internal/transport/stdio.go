package transport

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// StdioTransport runs gdb as a subprocess and talks MI over its stdin and
// stdout. Stderr is forwarded to the logger.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}

	reapOnce sync.Once
	waitErr  error
}

// StdioOption configures a StdioTransport.
type StdioOption func(*StdioTransport)

// WithLogger sets the logger that receives gdb's stderr.
func WithLogger(logger *zap.Logger) StdioOption {
	return func(t *StdioTransport) {
		t.logger = logger
	}
}

// Command returns the exec.Cmd for gdb in MI mode.
func Command(gdbPath string, args ...string) *exec.Cmd {
	argv := append([]string{"--interpreter=mi2", "--quiet", "--nx"}, args...)
	return exec.Command(gdbPath, argv...)
}

// NewStdioTransport starts cmd with piped stdio.
func NewStdioTransport(cmd *exec.Cmd, opts ...StdioOption) (*StdioTransport, error) {
	t := &StdioTransport{
		cmd:    cmd,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("get stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	t.stdin = stdin
	t.stdout = stdout
	t.stderr = stderr
	t.logger.Debug("backend started", zap.String("path", cmd.Path), zap.Int("pid", cmd.Process.Pid))

	go t.drainStderr()
	return t, nil
}

// Pid returns the process id of the backend.
func (t *StdioTransport) Pid() int {
	if t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Start starts reading stdout.
func (t *StdioTransport) Start(onLine func(string), onClose func(error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true

	go func() {
		err := readLines(bufio.NewReader(t.stdout), onLine)
		select {
		case <-t.done:
			err = nil
		default:
			t.reap()
			t.logger.Debug("backend output closed", zap.Error(err), zap.NamedError("exit", t.waitErr))
		}
		if onClose != nil {
			onClose(err)
		}
	}()
	return nil
}

// Write writes p to gdb's stdin.
func (t *StdioTransport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if _, err := t.stdin.Write(p); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Interrupt delivers SIGINT to gdb, which forwards it to the inferior.
func (t *StdioTransport) Interrupt() error {
	if t.cmd.Process == nil {
		return ErrClosed
	}
	return interrupt(t.cmd.Process.Pid)
}

// Close closes the pipes, kills the subprocess and waits for it.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	t.stdin.Close()
	if t.cmd.Process != nil {
		t.cmd.Process.Kill()
	}
	t.reap()
	return nil
}

// reap waits for the process once.
func (t *StdioTransport) reap() {
	t.reapOnce.Do(func() {
		t.waitErr = t.cmd.Wait()
	})
}

func (t *StdioTransport) drainStderr() {
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		t.logger.Warn("backend stderr", zap.String("line", scanner.Text()))
	}
}
