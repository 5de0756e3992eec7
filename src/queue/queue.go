// Package queue implements the bounded, two-priority channel pair
// extracted from the teacher's src/processors.BaseProcessor: a small
// buffered "system" channel for control/error/interruption events that
// must preempt a larger buffered "data" channel carrying transcripts,
// LLM tokens and TTS audio. The gateway's per-connection event loop
// takes a queued System event before any Data event on every call to
// Next, matching BaseProcessor's
// systemFrameHandler/dataFrameHandler split.
package queue

import (
	"context"

	"github.com/square-key-labs/agentgateway/src/events"
)

const (
	systemCapacity = 100
	dataCapacity   = 1000
)

// Queue is a per-session event queue with system events prioritized over
// data events.
type Queue struct {
	system chan *events.Event
	data   chan *events.Event
}

// New creates a Queue with the teacher's default channel capacities.
func New() *Queue {
	return &Queue{
		system: make(chan *events.Event, systemCapacity),
		data:   make(chan *events.Event, dataCapacity),
	}
}

// Push enqueues ev on the channel matching its priority. It returns false
// without blocking if ctx is already done, and otherwise blocks until
// there is room (bounded backpressure, same as BaseProcessor.QueueFrame).
func (q *Queue) Push(ctx context.Context, ev *events.Event) bool {
	ch := q.data
	if ev.Priority() == events.PrioritySystem {
		ch = q.system
	}
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// TryPush enqueues ev without blocking, dropping it if the channel is
// full. Used for high-rate data like raw audio chunks where backpressure
// should shed load rather than stall the producer.
func (q *Queue) TryPush(ev *events.Event) bool {
	ch := q.data
	if ev.Priority() == events.PrioritySystem {
		ch = q.system
	}
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

// Next returns the next event, or (nil, false) if ctx is done first. A
// non-blocking check of the system channel runs first, so a system event
// that is already queued is returned before any data event; when none is
// queued, Next waits on both channels and returns whichever event
// arrives first.
func (q *Queue) Next(ctx context.Context) (*events.Event, bool) {
	select {
	case ev := <-q.system:
		return ev, true
	default:
	}

	select {
	case ev := <-q.system:
		return ev, true
	case ev := <-q.data:
		return ev, true
	case <-ctx.Done():
		return nil, false
	}
}

// Close signals no further sends will occur; safe to call once.
func (q *Queue) Close() {
	close(q.system)
	close(q.data)
}
