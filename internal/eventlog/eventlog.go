// Package eventlog keeps a bounded in-memory ring of recent fleet/mission/
// coordination events so the operator API can serve spec.md §6's "list
// system events" without standing up a dedicated event store — every
// mutation already flows through pkg/events.Bus, this just taps it.
package eventlog

import (
	"context"
	"sync"

	"github.com/falconmind/clustercenter/pkg/events"
)

const defaultCapacity = 500

// Recorder subscribes to every event type the bus carries and retains the
// most recent entries in a fixed-size ring, oldest dropped first.
type Recorder struct {
	mu       sync.Mutex
	capacity int
	buf      []events.Event
	next     int
	full     bool
}

// NewRecorder creates a Recorder with the given ring capacity (defaulting
// to 500 when capacity <= 0) and subscribes it to every known event type
// on bus.
func NewRecorder(bus *events.Bus, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	r := &Recorder{capacity: capacity, buf: make([]events.Event, capacity)}
	for _, t := range allEventTypes {
		bus.Subscribe(t, r.record)
	}
	return r
}

func (r *Recorder) record(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// Recent returns up to n of the most recently recorded events, newest
// first. n <= 0 returns every retained event.
func (r *Recorder) Recent(n int) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := r.next
	if r.full {
		total = r.capacity
	}
	if n <= 0 || n > total {
		n = total
	}

	out := make([]events.Event, 0, n)
	idx := r.next
	for i := 0; i < n; i++ {
		idx = (idx - 1 + r.capacity) % r.capacity
		out = append(out, r.buf[idx])
	}
	return out
}

var allEventTypes = []events.EventType{
	events.EventUAVRegistered,
	events.EventUAVOffline,
	events.EventUAVOnline,
	events.EventMissionCreated,
	events.EventMissionDispatched,
	events.EventMissionPaused,
	events.EventMissionResumed,
	events.EventMissionCancelled,
	events.EventMissionDeleted,
	events.EventMissionSucceeded,
	events.EventMissionFailed,
	events.EventClusterMissionCreated,
	events.EventCoordMissionStarted,
	events.EventCoordMissionPaused,
	events.EventCoordMissionResumed,
	events.EventCoordMissionComplete,
	events.EventCoordMissionFailed,
	events.EventCoordAreaCovered,
	events.EventCoordTargetFound,
	events.EventCoordLowBattery,
	events.EventCoordCollisionRisk,
	events.EventCoordPathConflict,
	events.EventCoordReassigned,
	events.EventAlertTriggered,
	events.EventAlertResolved,
	events.EventConsensusLeaderElected,
	events.EventConsensusTermChanged,
	events.EventRegionUnhealthy,
	events.EventRegionRecovered,
	events.EventAutoscaleScaledUp,
	events.EventAutoscaleScaledDown,
}
