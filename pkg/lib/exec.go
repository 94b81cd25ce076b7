package lib

import (
	"context"
	"time"
)

// Execute runs a command and blocks until it exits, is killed by timeout or
// is cancelled through the context.
//
// Command failures are not errors: non-zero exits, timeouts and spawn
// failures resolve into the returned [Result]. Returns [ErrNotValid] only for
// programmer-error inputs such as an empty command.
func (c *Client) Execute(ctx context.Context, command string, opts *ExecuteOpts) (*Result, error) {
	result, err := c.engine.Execute(ctx, command, toInternalExecutionOptions(opts))
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalResult(result), nil
}

// Stream spawns a command and returns immediately with a live event channel.
//
// The channel carries one [EventStart], zero or more [EventOutput] and
// exactly one terminal event, after which it is closed. The caller must drain
// the channel until it is closed.
func (c *Client) Stream(ctx context.Context, command string, opts *ExecuteOpts) (*Stream, error) {
	st, err := c.engine.Stream(ctx, command, toInternalExecutionOptions(opts))
	if err != nil {
		return nil, mapError(err)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		for ev := range st.Events {
			events <- fromInternalEvent(ev)
		}
	}()

	return &Stream{ID: st.ID, Events: events}, nil
}

// CancelExecution requests termination of a streamed execution by its ID.
//
// It returns true only if an active execution was found and signalled.
// Termination is asynchronous: completion is still observed through the
// stream's terminal event.
func (c *Client) CancelExecution(executionID string) bool {
	return c.engine.Cancel(executionID)
}

// ExecutionStatus is a point-in-time snapshot of a still-tracked execution.
type ExecutionStatus struct {
	ExecutionID string
	Command     string
	Elapsed     time.Duration
}

// GetExecutionStatus returns a snapshot of a tracked execution, or nil for
// unknown or already finished identifiers.
func (c *Client) GetExecutionStatus(executionID string) *ExecutionStatus {
	st := c.engine.Status(executionID)
	if st == nil {
		return nil
	}

	return &ExecutionStatus{
		ExecutionID: st.ExecutionID,
		Command:     st.Command,
		Elapsed:     st.Elapsed,
	}
}
