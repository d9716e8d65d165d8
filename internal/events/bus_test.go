package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []*Event
	bus.Subscribe(RunFinished, func(e *Event) {
		received = append(received, e)
	})

	bus.Publish(&Event{Type: RunFinished, Module: "runs", Data: map[string]interface{}{"run_id": "abc123def456"}})
	bus.Publish(&Event{Type: RunStarted, Module: "runs"})

	// Only the subscribed type is delivered
	assert.Len(t, received, 1)
	assert.Equal(t, "abc123def456", received[0].Data["run_id"])
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	count := 0
	id := bus.Subscribe(RunQueued, func(*Event) { count++ })

	bus.Publish(&Event{Type: RunQueued})
	bus.Unsubscribe(RunQueued, id)
	bus.Publish(&Event{Type: RunQueued})

	assert.Equal(t, 1, count)
}

func TestManager_Emit(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(SweepRanked, func(e *Event) { got = e })

	manager.Emit(SweepRanked, "scheduler", map[string]interface{}{"rows": 12})

	assert.NotNil(t, got)
	assert.Equal(t, "scheduler", got.Module)
	assert.False(t, got.Timestamp.IsZero())
}

func TestManager_EmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(ErrorOccurred, func(e *Event) { got = e })

	manager.EmitError("backup", assert.AnError, map[string]interface{}{"bucket": "aegis"})

	assert.NotNil(t, got)
	assert.Equal(t, assert.AnError.Error(), got.Data["error"])
}
