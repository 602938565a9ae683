package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dshills/gdbmi/internal/breakpoints"
	"github.com/dshills/gdbmi/internal/config"
	"github.com/dshills/gdbmi/internal/event"
	"github.com/dshills/gdbmi/internal/execctx"
	"github.com/dshills/gdbmi/internal/mi"
	"github.com/dshills/gdbmi/internal/monitor"
	"github.com/dshills/gdbmi/internal/runcontrol"
	"github.com/dshills/gdbmi/internal/session"
	"github.com/dshills/gdbmi/internal/stack"
	"github.com/dshills/gdbmi/internal/telemetry"
	"github.com/dshills/gdbmi/internal/transport"
)

const exitTimeout = 2 * time.Second

var errNoThread = errors.New("no suspended thread")

func newRunCmd(c *cli) *cobra.Command {
	var breaks []string

	cmd := &cobra.Command{
		Use:   "run [--break loc]... -- <program> [args...]",
		Short: "Debug a program and stream session events as NDJSON",
		Long: `Start gdb, load the program, insert the requested breakpoints and run it.

Session events are written to stdout, one JSON document per line. Commands
are read from stdin, one per line: continue, next, step, finish, interrupt,
bt, threads and quit. Ctrl-C interrupts the program; end of input quits.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("run requires a program after '--'")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			return runProgram(ctx, cfg, logger, cmd.InOrStdin(), cmd.OutOrStdout(), launch{
				program: args[0],
				args:    args[1:],
				breaks:  breaks,
			})
		},
	}
	cmd.Flags().StringArrayVarP(&breaks, "break", "b", nil, "insert a breakpoint at `location` before running (repeatable)")
	return cmd
}

// launch describes the program to debug.
type launch struct {
	program string
	args    []string
	breaks  []string
}

func runProgram(ctx context.Context, cfg config.Config, logger *zap.Logger, in io.Reader, out io.Writer, l launch) (err error) {
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.Service)
	if err != nil {
		return err
	}
	tracer := telemetry.NewCommandTracer(nil)
	defer func() {
		tracer.Close()
		err = multierr.Append(err, shutdown(context.Background()))
	}()

	t, err := transport.NewStdioTransport(
		transport.Command(cfg.GDB.Path, cfg.GDB.Args...),
		transport.WithLogger(logger.Named("gdb")),
	)
	if err != nil {
		return err
	}

	sess := session.New(session.Config{
		CommandTimeout: cfg.Engine.CommandTimeout,
		LaunchMode:     session.LaunchMode(cfg.Session.LaunchMode),
		GDBVersion:     cfg.GDB.Version,
	}, session.WithLogger(logger), session.WithCommandListener(tracer))

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	sigCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for {
			select {
			case sig := <-signals:
				if sig != os.Interrupt {
					cancel()
					return
				}
				if err := t.Interrupt(); err != nil {
					logger.Warn("interrupt", zap.Error(err))
				}
			case <-sigCtx.Done():
				return
			}
		}
	}()

	return debug(sigCtx, sess, t, in, newPrinter(out), logger, l)
}

// debug starts sess on t, launches the program and serves stdin until
// quit, end of input or the end of the session.
func debug(ctx context.Context, sess *session.Session, t transport.Transport, in io.Reader, out *printer, logger *zap.Logger, l launch) error {
	d := &driver{sess: sess, out: out, logger: logger}
	if _, err := sess.Subscribe("**", out); err != nil {
		return err
	}
	if _, err := sess.Subscribe(event.TopicSuspended, event.HandlerFunc(d.onSuspended)); err != nil {
		return err
	}
	if err := sess.Start(ctx, t); err != nil {
		return multierr.Append(err, t.Close())
	}

	if err := d.bind(); err != nil {
		return multierr.Append(err, sess.Terminate(context.Background()))
	}
	if err := d.launch(ctx, l); err != nil {
		return multierr.Append(err, sess.Terminate(context.Background()))
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-sess.Done():
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			v, err := parseVerb(line)
			if !ok {
				v, err = verbQuit, nil
			}
			if err != nil {
				d.reply(line, err)
				continue
			}
			if v == verbQuit {
				return d.quit(ctx)
			}
			if v != "" {
				d.do(ctx, v)
			}
		case <-sess.Done():
			return nil
		case <-ctx.Done():
			return d.quit(context.Background())
		}
	}
}

// driver turns verbs into service requests.
type driver struct {
	sess   *session.Session
	out    *printer
	logger *zap.Logger

	rc *runcontrol.Service
	bp *breakpoints.Service
	st *stack.Service

	// Executor only.
	current execctx.Handle
}

func (d *driver) bind() error {
	var err error
	if d.rc, err = session.ServiceAs[*runcontrol.Service](d.sess, session.CapRunControl); err != nil {
		return err
	}
	if d.bp, err = session.ServiceAs[*breakpoints.Service](d.sess, session.CapBreakpoints); err != nil {
		return err
	}
	d.st, err = session.ServiceAs[*stack.Service](d.sess, session.CapStack)
	return err
}

func (d *driver) onSuspended(_ context.Context, ev event.Event) error {
	if p, ok := ev.Payload.(runcontrol.SuspendedEvent); ok {
		d.current = p.Context
	}
	return nil
}

func (d *driver) launch(ctx context.Context, l launch) error {
	exec := d.sess.Executor()

	if err := d.sess.Queue(mi.FileExecAndSymbols(l.program)).Wait(ctx); err != nil {
		return fmt.Errorf("load %s: %w", l.program, err)
	}
	if len(l.args) > 0 {
		if err := d.sess.Queue(mi.ExecArguments(l.args...)).Wait(ctx); err != nil {
			return fmt.Errorf("set arguments: %w", err)
		}
	}
	for _, loc := range l.breaks {
		rm := monitor.NewData[breakpoints.Breakpoint](exec, nil)
		d.bp.Insert(breakpoints.Spec{Location: loc}, rm)
		if err := rm.Wait(ctx); err != nil {
			return fmt.Errorf("break %s: %w", loc, err)
		}
	}
	if err := d.sess.Queue(mi.ExecRun()).Wait(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

func (d *driver) do(ctx context.Context, v verb) {
	exec := d.sess.Executor()

	switch v {
	case verbContinue:
		d.request(ctx, v, func(h execctx.Handle, rm *monitor.RequestMonitor) {
			d.rc.Resume(h, rm)
		}, execctx.KindProcess)
	case verbNext, verbStep, verbFinish:
		typ := map[verb]runcontrol.StepType{
			verbNext:   runcontrol.StepOver,
			verbStep:   runcontrol.StepInto,
			verbFinish: runcontrol.StepReturn,
		}[v]
		d.request(ctx, v, func(h execctx.Handle, rm *monitor.RequestMonitor) {
			d.rc.Step(h, typ, rm)
		}, execctx.KindThread)
	case verbInterrupt:
		d.request(ctx, v, func(h execctx.Handle, rm *monitor.RequestMonitor) {
			d.rc.Suspend(h, rm)
		}, execctx.KindProcess)
	case verbBacktrace:
		h, err := d.target(ctx, execctx.KindThread)
		if err != nil {
			d.reply(string(v), err)
			return
		}
		rm := monitor.NewData[[]stack.Frame](exec, nil)
		d.st.Frames(h, rm)
		if err := rm.Wait(ctx); err != nil {
			d.reply(string(v), err)
			return
		}
		frames, _ := rm.Data()
		thread := ""
		if len(frames) > 0 {
			thread = frames[0].ThreadID
		}
		d.emit(encodeFrames(thread, frames))
	case verbThreads:
		h, err := d.target(ctx, execctx.KindProcess)
		if err != nil {
			d.reply(string(v), err)
			return
		}
		rm := monitor.NewData[[]stack.Thread](exec, nil)
		d.st.Threads(h, rm)
		if err := rm.Wait(ctx); err != nil {
			d.reply(string(v), err)
			return
		}
		threads, _ := rm.Data()
		d.emit(encodeThreads(threads))
	}
}

// request runs fn on the target of the given kind and reports the outcome.
func (d *driver) request(ctx context.Context, v verb, fn func(execctx.Handle, *monitor.RequestMonitor), kind execctx.Kind) {
	h, err := d.target(ctx, kind)
	if err != nil {
		d.reply(string(v), err)
		return
	}
	rm := monitor.New(d.sess.Executor(), nil)
	fn(h, rm)
	d.reply(string(v), rm.Wait(ctx))
}

// target resolves the context of the given kind for the last stop. Without
// a stop it falls back to the first process and its first thread.
func (d *driver) target(ctx context.Context, kind execctx.Kind) (execctx.Handle, error) {
	var h execctx.Handle
	err := d.sess.Executor().Run(ctx, func() {
		arena := d.sess.Arena()
		cur := d.current
		if _, ok := arena.Get(cur); !ok {
			cur = 0
			if ps := arena.Processes(); len(ps) > 0 {
				cur = ps[0]
			}
		}
		if kind == execctx.KindProcess {
			h, _ = arena.Ancestor(cur, execctx.KindProcess)
			return
		}
		if t, ok := arena.Ancestor(cur, execctx.KindThread); ok {
			h = t
			return
		}
		if children := arena.Children(cur); len(children) > 0 {
			h = children[0]
		}
	})
	if err != nil {
		return 0, err
	}
	if !h.Valid() {
		return 0, errNoThread
	}
	return h, nil
}

func (d *driver) quit(ctx context.Context) error {
	exitCtx, cancel := context.WithTimeout(ctx, exitTimeout)
	defer cancel()
	if err := d.sess.Queue(mi.GdbExit()).Wait(exitCtx); err != nil {
		d.logger.Debug("gdb-exit", zap.Error(err))
	}
	return d.sess.Terminate(ctx)
}

func (d *driver) reply(command string, err error) {
	d.emit(encodeReply(command, err))
}

func (d *driver) emit(line string, err error) {
	if err == nil {
		err = d.out.write(line)
	}
	if err != nil {
		d.logger.Warn("write output", zap.Error(err))
	}
}
