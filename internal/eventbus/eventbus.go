// Package eventbus implements the in-process publish/subscribe backbone used
// to announce execution lifecycle events keyed by execution ID.
//
// Delivery is synchronous per subscriber and ordered per execution ID (the
// publisher of a given execution emits its events from a single goroutine).
// Ordering across different execution IDs is unspecified.
package eventbus

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/runforge/runforge/internal/model"
)

// Type identifies the kind of an execution lifecycle event.
type Type string

const (
	// TypeStart is emitted once, before any output, and carries the command.
	TypeStart Type = "start"
	// TypeOutput carries a raw output chunk tagged with its stream. Chunk
	// boundaries are not guaranteed to align with lines.
	TypeOutput Type = "output"
	// TypeProgress relays an upstream-supplied progress hint.
	TypeProgress Type = "progress"
	// TypeComplete is the terminal event for a normally finished, timed out or
	// cancelled execution, and carries the final result.
	TypeComplete Type = "complete"
	// TypeError is the terminal event for internal engine faults.
	TypeError Type = "error"
)

// OutputStream tags an output chunk with its originating stream.
type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

// Event is a single execution lifecycle occurrence. Only the fields relevant
// for its Type are set.
type Event struct {
	Type        Type
	ExecutionID string
	At          time.Time

	// Command is set on start events.
	Command string
	// Chunk and Stream are set on output events.
	Chunk  []byte
	Stream OutputStream
	// Progress is set on progress events.
	Progress *model.Progress
	// Result is set on complete events.
	Result *model.ExecutionResult
	// Err is set on error events.
	Err error
}

// Terminal returns true for the events that end an execution's event sequence.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block for long periods.
type Handler func(Event)

type subscription struct {
	id          int
	executionID string // empty subscribes to all executions
	handler     Handler
	closed      atomic.Bool
}

// Bus is an in-process event bus. The zero value is not usable, create it
// with New. A Bus is safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: map[int]*subscription{},
	}
}

// Subscribe registers a handler for all events. It returns an unsubscribe
// function that is safe to call multiple times and from inside the handler.
func (b *Bus) Subscribe(h Handler) func() {
	return b.subscribe("", h)
}

// SubscribeExecution registers a handler filtered to a single execution ID.
func (b *Bus) SubscribeExecution(executionID string, h Handler) func() {
	return b.subscribe(executionID, h)
}

func (b *Bus) subscribe(executionID string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{
		id:          b.nextID,
		executionID: executionID,
		handler:     h,
	}
	b.subs[sub.id] = sub

	return func() {
		sub.closed.Store(true)
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, sub.id)
	}
}

// Publish delivers an event to every matching subscriber, synchronously and in
// subscription order. Handlers may unsubscribe (themselves or others) during
// delivery; an unsubscribed handler is not invoked again.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	// Snapshot outside the lock so handlers can subscribe/unsubscribe freely.
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })

	for _, sub := range subs {
		if sub.closed.Load() {
			continue
		}
		if sub.executionID != "" && sub.executionID != ev.ExecutionID {
			continue
		}
		sub.handler(ev)
	}
}
