// Package local implements execution.Engine on top of local OS processes.
//
// Commands run through a shell ("sh -c") in their own process group so the
// whole process tree can be signalled at once. Timeouts and cancellation
// terminate with SIGTERM first and escalate to SIGKILL after a grace window
// (default 5s); the escalation timer is disarmed once the process has been
// reaped so a reused PID is never signalled.
package local

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/runforge/runforge/internal/eventbus"
	"github.com/runforge/runforge/internal/execution"
	"github.com/runforge/runforge/internal/log"
	"github.com/runforge/runforge/internal/model"
	"github.com/runforge/runforge/internal/utils/env"
)

const (
	defaultShell       = "/bin/sh"
	defaultGraceWindow = 5 * time.Second
	outputChunkSize    = 4096
	eventBufferSize    = 64
)

// EngineConfig is the configuration for the local engine.
type EngineConfig struct {
	// Shell is the shell used to run commands. Default: /bin/sh.
	Shell string
	// GraceWindow is how long a SIGTERMed process gets before SIGKILL.
	GraceWindow time.Duration
	// Bus receives every execution event for passive observers (loggers, UIs).
	Bus *eventbus.Bus
	Logger log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.Shell == "" {
		c.Shell = defaultShell
	}
	if c.GraceWindow <= 0 {
		c.GraceWindow = defaultGraceWindow
	}
	if c.Bus == nil {
		c.Bus = eventbus.New()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "execution.Local"})
	return nil
}

// Engine runs commands as local OS processes. Safe for concurrent use.
type Engine struct {
	shell  string
	grace  time.Duration
	bus    *eventbus.Bus
	logger log.Logger

	mu    sync.Mutex
	execs map[string]*liveExecution
}

var _ execution.Engine = &Engine{}

// NewEngine creates a new local execution engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		shell:  cfg.Shell,
		grace:  cfg.GraceWindow,
		bus:    cfg.Bus,
		logger: cfg.Logger,
		execs:  map[string]*liveExecution{},
	}, nil
}

// Bus returns the bus on which the engine broadcasts execution events.
func (e *Engine) Bus() *eventbus.Bus {
	return e.bus
}

// liveExecution is the engine's exclusively owned handle for one spawned
// process. No other component ever receives it.
type liveExecution struct {
	id        string
	command   string
	startedAt time.Time
	cancel    context.CancelFunc
	cancelled atomic.Bool

	// done is closed once the process has been reaped and the execution is
	// no longer tracked.
	done chan struct{}

	killMu    sync.Mutex
	killTimer *time.Timer

	// events is nil for Execute-mode executions.
	eventsMu     sync.Mutex
	events       chan eventbus.Event
	eventsClosed bool
}

// Execute runs a command and blocks until it exits or is killed.
func (e *Engine) Execute(ctx context.Context, command string, opts model.ExecutionOptions) (*model.ExecutionResult, error) {
	if err := validateCommand(command); err != nil {
		return nil, err
	}

	ex, runCtx := e.register(ctx, command, opts, nil)
	defer e.unregister(ex)

	return e.run(runCtx, ex, opts, nil), nil
}

// Stream spawns a command and returns its execution stream immediately.
func (e *Engine) Stream(ctx context.Context, command string, opts model.ExecutionOptions) (*execution.Stream, error) {
	if err := validateCommand(command); err != nil {
		return nil, err
	}

	ex, runCtx := e.register(ctx, command, opts, make(chan eventbus.Event, eventBufferSize))
	st := &execution.Stream{ID: ex.id, Events: ex.events}

	// The start event precedes everything else for this execution.
	e.publish(ex, eventbus.Event{Type: eventbus.TypeStart, Command: command})

	go func() {
		defer e.unregister(ex)

		terminal := eventbus.Event{Type: eventbus.TypeComplete}
		func() {
			// Internal faults become a single error event instead of a panic,
			// keeping the one-terminal-event contract.
			defer func() {
				if r := recover(); r != nil {
					e.logger.Errorf("Execution %s: internal engine fault: %v", ex.id, r)
					terminal = eventbus.Event{Type: eventbus.TypeError, Err: fmt.Errorf("internal engine fault: %v", r)}
				}
			}()

			terminal.Result = e.run(runCtx, ex, opts, func(ev eventbus.Event) { e.publish(ex, ev) })
		}()

		e.publish(ex, terminal)
		e.closeEvents(ex)
	}()

	return st, nil
}

// Cancel requests termination of a tracked execution.
func (e *Engine) Cancel(executionID string) bool {
	e.mu.Lock()
	ex, ok := e.execs[executionID]
	e.mu.Unlock()
	if !ok {
		return false
	}

	// Lost race against natural completion: harmless no-op.
	select {
	case <-ex.done:
		return false
	default:
	}

	if !ex.cancelled.CompareAndSwap(false, true) {
		return false
	}

	e.logger.Debugf("Cancelling execution %s", executionID)
	ex.cancel()
	return true
}

// Status returns a snapshot of a tracked execution, or nil if unknown.
func (e *Engine) Status(executionID string) *execution.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	ex, ok := e.execs[executionID]
	if !ok {
		return nil
	}

	return &execution.Status{
		ExecutionID: ex.id,
		Command:     ex.command,
		Elapsed:     time.Since(ex.startedAt),
	}
}

// ReportProgress relays a progress hint onto the execution's event stream.
func (e *Engine) ReportProgress(executionID string, p model.Progress) bool {
	e.mu.Lock()
	ex, ok := e.execs[executionID]
	e.mu.Unlock()
	if !ok {
		return false
	}

	e.publish(ex, eventbus.Event{Type: eventbus.TypeProgress, Progress: &p})
	return true
}

// Cleanup kills every tracked process and discards all bookkeeping. Safe to
// call multiple times and with no active executions.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	execs := e.execs
	e.execs = map[string]*liveExecution{}
	e.mu.Unlock()

	for _, ex := range execs {
		if ex.cancelled.CompareAndSwap(false, true) {
			e.logger.Debugf("Cleanup: killing execution %s", ex.id)
			ex.cancel()
		}
	}
}

func (e *Engine) register(ctx context.Context, command string, opts model.ExecutionOptions, events chan eventbus.Event) (*liveExecution, context.Context) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()

	var runCtx context.Context
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	ex := &liveExecution{
		id:        id,
		command:   command,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		events:    events,
	}

	e.mu.Lock()
	e.execs[id] = ex
	e.mu.Unlock()

	return ex, runCtx
}

func (e *Engine) unregister(ex *liveExecution) {
	close(ex.done)
	ex.cancel()

	e.mu.Lock()
	if cur, ok := e.execs[ex.id]; ok && cur == ex {
		delete(e.execs, ex.id)
	}
	e.mu.Unlock()
}

// run spawns the process and blocks until it has been reaped, folding every
// failure mode into the result. With a non-nil emit it streams output chunks
// as they arrive, otherwise output is only buffered.
func (e *Engine) run(ctx context.Context, ex *liveExecution, opts model.ExecutionOptions, emit func(eventbus.Event)) *model.ExecutionResult {
	shell := e.shell
	if opts.Shell != "" {
		shell = opts.Shell
	}

	start := time.Now()

	cmd := exec.CommandContext(ctx, shell, "-c", ex.command)
	cmd.Dir = opts.WorkingDir
	cmd.Env = env.MergeIntoOSList(os.Environ(), opts.Env)
	// New process group so the whole tree can be signalled at once.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return e.terminate(ex, cmd) }
	// Backstop so Wait never hangs on inherited pipes past the grace window.
	cmd.WaitDelay = e.grace + time.Second

	var stdout, stderr bytes.Buffer
	var err error
	if emit == nil {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err = cmd.Run()
	} else {
		err = e.runStreaming(cmd, &stdout, &stderr, emit)
	}

	ex.disarmKill()

	res := &model.ExecutionResult{
		Command:  ex.command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Success = true

	case ctx.Err() == context.DeadlineExceeded:
		res.ExitCode = -1
		res.Stderr = appendLine(res.Stderr, fmt.Sprintf("command timed out after %s", opts.Timeout))

	case ex.cancelled.Load() || ctx.Err() == context.Canceled:
		res.ExitCode = -1
		res.Stderr = appendLine(res.Stderr, "command cancelled")

	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()

	default:
		// Spawn failures: missing shell, bad working directory, permissions.
		res.ExitCode = -1
		res.Stderr = appendLine(res.Stderr, err.Error())
	}

	return res
}

func (e *Engine) runStreaming(cmd *exec.Cmd, stdout, stderr *bytes.Buffer, emit func(eventbus.Event)) error {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("could not open stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("could not open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		forwardOutput(stdoutPipe, eventbus.StreamStdout, stdout, emit)
	}()
	go func() {
		defer wg.Done()
		forwardOutput(stderrPipe, eventbus.StreamStderr, stderr, emit)
	}()

	// Drain both pipes before reaping so every output event precedes the
	// terminal event.
	wg.Wait()
	return cmd.Wait()
}

// forwardOutput copies raw chunks from a pipe into the result buffer while
// emitting them as output events. Chunk boundaries do not align with lines.
func forwardOutput(r io.Reader, stream eventbus.OutputStream, buf *bytes.Buffer, emit func(eventbus.Event)) {
	chunk := make([]byte, outputChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			c := make([]byte, n)
			copy(c, chunk[:n])
			emit(eventbus.Event{Type: eventbus.TypeOutput, Chunk: c, Stream: stream})
		}
		if err != nil {
			return
		}
	}
}

// terminate is invoked by os/exec when the execution's context ends (timeout
// or cancellation). SIGTERM goes to the whole group immediately, SIGKILL
// follows after the grace window unless the process exits first.
func (e *Engine) terminate(ex *liveExecution, cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid := cmd.Process.Pid

	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	ex.killMu.Lock()
	defer ex.killMu.Unlock()
	ex.killTimer = time.AfterFunc(e.grace, func() {
		select {
		case <-ex.done:
			// Already reaped, the PID may belong to someone else now.
		default:
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		}
	})

	return nil
}

func (ex *liveExecution) disarmKill() {
	ex.killMu.Lock()
	defer ex.killMu.Unlock()
	if ex.killTimer != nil {
		ex.killTimer.Stop()
		ex.killTimer = nil
	}
}

// publish delivers an event on the execution's own stream (when present) and
// broadcasts it on the engine bus.
func (e *Engine) publish(ex *liveExecution, ev eventbus.Event) {
	ev.ExecutionID = ex.id
	ev.At = time.Now()

	ex.eventsMu.Lock()
	if ex.events != nil && !ex.eventsClosed {
		ex.events <- ev
	}
	ex.eventsMu.Unlock()

	e.bus.Publish(ev)
}

func (e *Engine) closeEvents(ex *liveExecution) {
	ex.eventsMu.Lock()
	defer ex.eventsMu.Unlock()
	if ex.events != nil && !ex.eventsClosed {
		ex.eventsClosed = true
		close(ex.events)
	}
}

func validateCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("command cannot be empty: %w", model.ErrNotValid)
	}
	return nil
}

func appendLine(s, line string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line + "\n"
}
