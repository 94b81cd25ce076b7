package eventbus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runforge/runforge/internal/eventbus"
	"github.com/runforge/runforge/internal/model"
)

func TestBusPublish(t *testing.T) {
	tests := map[string]struct {
		subscribe func(bus *eventbus.Bus, got *[]eventbus.Event)
		publish   []eventbus.Event
		expTypes  []eventbus.Type
	}{
		"A global subscriber should receive every event in order": {
			subscribe: func(bus *eventbus.Bus, got *[]eventbus.Event) {
				bus.Subscribe(func(ev eventbus.Event) { *got = append(*got, ev) })
			},
			publish: []eventbus.Event{
				{Type: eventbus.TypeStart, ExecutionID: "e1", Command: "echo hi"},
				{Type: eventbus.TypeOutput, ExecutionID: "e1", Chunk: []byte("hi\n"), Stream: eventbus.StreamStdout},
				{Type: eventbus.TypeComplete, ExecutionID: "e1", Result: &model.ExecutionResult{Success: true}},
			},
			expTypes: []eventbus.Type{eventbus.TypeStart, eventbus.TypeOutput, eventbus.TypeComplete},
		},

		"A filtered subscriber should only receive its execution's events": {
			subscribe: func(bus *eventbus.Bus, got *[]eventbus.Event) {
				bus.SubscribeExecution("e2", func(ev eventbus.Event) { *got = append(*got, ev) })
			},
			publish: []eventbus.Event{
				{Type: eventbus.TypeStart, ExecutionID: "e1"},
				{Type: eventbus.TypeStart, ExecutionID: "e2"},
				{Type: eventbus.TypeComplete, ExecutionID: "e1"},
				{Type: eventbus.TypeComplete, ExecutionID: "e2"},
			},
			expTypes: []eventbus.Type{eventbus.TypeStart, eventbus.TypeComplete},
		},

		"No subscribers should not panic": {
			subscribe: func(bus *eventbus.Bus, got *[]eventbus.Event) {},
			publish: []eventbus.Event{
				{Type: eventbus.TypeStart, ExecutionID: "e1"},
			},
			expTypes: []eventbus.Type{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			bus := eventbus.New()
			got := []eventbus.Event{}
			test.subscribe(bus, &got)

			for _, ev := range test.publish {
				bus.Publish(ev)
			}

			gotTypes := []eventbus.Type{}
			for _, ev := range got {
				gotTypes = append(gotTypes, ev.Type)
			}
			assert.Equal(t, test.expTypes, gotTypes)
		})
	}
}

func TestBusUnsubscribe(t *testing.T) {
	assert := assert.New(t)

	bus := eventbus.New()
	got := 0
	unsubscribe := bus.Subscribe(func(eventbus.Event) { got++ })

	bus.Publish(eventbus.Event{Type: eventbus.TypeStart, ExecutionID: "e1"})
	unsubscribe()
	bus.Publish(eventbus.Event{Type: eventbus.TypeStart, ExecutionID: "e1"})

	assert.Equal(1, got)

	// Unsubscribing twice is harmless.
	unsubscribe()
}

func TestBusUnsubscribeDuringDelivery(t *testing.T) {
	assert := assert.New(t)

	bus := eventbus.New()
	got := 0
	var unsubscribe func()
	unsubscribe = bus.Subscribe(func(ev eventbus.Event) {
		got++
		if ev.Terminal() {
			unsubscribe()
		}
	})

	bus.Publish(eventbus.Event{Type: eventbus.TypeStart, ExecutionID: "e1"})
	bus.Publish(eventbus.Event{Type: eventbus.TypeComplete, ExecutionID: "e1"})
	bus.Publish(eventbus.Event{Type: eventbus.TypeStart, ExecutionID: "e2"})

	assert.Equal(2, got)
}

func TestEventTerminal(t *testing.T) {
	assert := assert.New(t)

	assert.False(eventbus.Event{Type: eventbus.TypeStart}.Terminal())
	assert.False(eventbus.Event{Type: eventbus.TypeOutput}.Terminal())
	assert.False(eventbus.Event{Type: eventbus.TypeProgress}.Terminal())
	assert.True(eventbus.Event{Type: eventbus.TypeComplete}.Terminal())
	assert.True(eventbus.Event{Type: eventbus.TypeError}.Terminal())
}
