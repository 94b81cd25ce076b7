package execution

import (
	"context"
	"time"

	"github.com/runforge/runforge/internal/eventbus"
	"github.com/runforge/runforge/internal/model"
)

// Engine is the interface for command execution engines.
//
// Execute, Stream, Cancel and Status are safe to invoke concurrently. Spawn
// failures, timeouts and non-zero exits never surface as errors, they resolve
// into the returned ExecutionResult; the error returns are reserved for
// programmer-error inputs such as an empty command.
type Engine interface {
	// Execute runs a command and blocks until it exits, is killed by timeout or
	// is cancelled through the context.
	Execute(ctx context.Context, command string, opts model.ExecutionOptions) (*model.ExecutionResult, error)

	// Stream spawns a command and returns immediately. Output and completion
	// are delivered on the returned stream and broadcast on the engine's bus.
	Stream(ctx context.Context, command string, opts model.ExecutionOptions) (*Stream, error)

	// Cancel requests termination of a tracked execution. It returns true only
	// if an active process was found and signalled; it is best-effort and
	// asynchronous, completion is still observed via the terminal event.
	Cancel(executionID string) bool

	// Status returns a point-in-time snapshot of a tracked execution, or nil
	// for unknown or already cleaned up identifiers. It never blocks.
	Status(executionID string) *Status

	// ReportProgress relays an upstream-supplied progress hint onto the
	// execution's event stream. Returns false for unknown identifiers.
	ReportProgress(executionID string, p model.Progress) bool

	// Cleanup kills every tracked process and discards all bookkeeping.
	Cleanup()
}

// Stream is the live handle for a streamed execution.
//
// Events carries, in order: one start event, zero or more output events and
// exactly one terminal (complete or error) event, after which the channel is
// closed. The caller must drain Events until it is closed.
type Stream struct {
	// ID is the opaque execution identifier.
	ID string
	// Events is the execution's ordered event sequence.
	Events <-chan eventbus.Event
}

// Status is a point-in-time snapshot of a still-tracked execution.
type Status struct {
	ExecutionID string
	Command     string
	Elapsed     time.Duration
}
