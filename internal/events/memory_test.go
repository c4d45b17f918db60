// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEventBus_Publish_AssignsFields(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var received Event
	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		received = e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventTerminalConnected, Session: "task-1"}))

	_, err = uuid.Parse(received.ID)
	assert.NoError(t, err)
	assert.Equal(t, "1.0", received.Version)
	assert.False(t, received.Timestamp.IsZero())
	assert.Equal(t, "task-1", received.Session)
}

func TestMemoryEventBus_Subscribe_PatternMatching(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var terminalCount, agentCount atomic.Int32
	_, err := bus.Subscribe("terminal.*", func(ctx context.Context, e Event) error {
		terminalCount.Add(1)
		return nil
	})
	require.NoError(t, err)
	_, err = bus.Subscribe("agent.*", func(ctx context.Context, e Event) error {
		agentCount.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: EventTerminalConnected})
	bus.Publish(ctx, Event{Type: EventTerminalClosed})
	bus.Publish(ctx, Event{Type: EventAgentSessionDetected})

	assert.Equal(t, int32(2), terminalCount.Load())
	assert.Equal(t, int32(1), agentCount.Load())
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var count atomic.Int32
	id, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Type: EventTerminalRunning})
	require.NoError(t, bus.Unsubscribe(id))
	bus.Publish(context.Background(), Event{Type: EventTerminalRunning})

	assert.Equal(t, int32(1), count.Load())
	assert.ErrorIs(t, bus.Unsubscribe(id), ErrSubscriptionNotFound)
}

func TestMemoryEventBus_SubscribeAsync(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	received := make(chan Event, 1)
	_, err := bus.SubscribeAsync(EventTerminalFailed, func(ctx context.Context, e Event) error {
		received <- e
		return nil
	}, 10)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventTerminalFailed, Session: "epic-9"}))

	select {
	case e := <-received:
		assert.Equal(t, "epic-9", e.Session)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for async event")
	}
}

func TestMemoryEventBus_SubscribeAsync_BufferFullDrops(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	block := make(chan struct{})
	var handled atomic.Int32
	_, err := bus.SubscribeAsync("*", func(ctx context.Context, e Event) error {
		<-block
		handled.Add(1)
		return nil
	}, 1)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.NoError(t, bus.Publish(context.Background(), Event{Type: EventTerminalRunning}))
	}
	close(block)

	time.Sleep(50 * time.Millisecond)
	assert.Less(t, handled.Load(), int32(10))
}

func TestMemoryEventBus_HandlerPanicAndError(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	defer bus.Close()

	var after atomic.Int32
	bus.Subscribe("*", func(ctx context.Context, e Event) error {
		panic("boom")
	})
	bus.Subscribe("*", func(ctx context.Context, e Event) error {
		return errors.New("handler failed")
	})
	bus.Subscribe("*", func(ctx context.Context, e Event) error {
		after.Add(1)
		return nil
	})

	assert.NotPanics(t, func() {
		assert.NoError(t, bus.Publish(context.Background(), Event{Type: EventTerminalExited}))
	})
	assert.Equal(t, int32(1), after.Load())
}

func TestMemoryEventBus_History(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{HistoryMaxEvents: 100})
	defer bus.Close()

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: EventTerminalConnected, Session: "task-1"})
	bus.Publish(ctx, Event{Type: EventTerminalRunning, Session: "task-1"})
	bus.Publish(ctx, Event{Type: EventTerminalConnected, Session: "task-2"})

	events, err := bus.History(EventFilter{Session: "task-1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventTerminalConnected, events[0].Type)
	assert.Equal(t, EventTerminalRunning, events[1].Type)
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	_, err := bus.SubscribeAsync("*", func(ctx context.Context, e Event) error { return nil }, 1)
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), Event{Type: EventTerminalRunning}), ErrBusClosed)
	_, err = bus.Subscribe("*", func(ctx context.Context, e Event) error { return nil })
	assert.ErrorIs(t, err, ErrBusClosed)
	_, err = bus.History(EventFilter{})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestMemoryEventBus_Concurrency(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{HistoryMaxEvents: 10000})
	defer bus.Close()

	var count atomic.Int32
	bus.Subscribe("terminal.*", func(ctx context.Context, e Event) error {
		count.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(context.Background(), Event{Type: EventTerminalRunning})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(500), count.Load())
	events, err := bus.History(EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 500)
}
