package eventlog

import (
	"context"

	"github.com/falconmind/clustercenter/pkg/events"
)

// ViewerSink is the subset of internal/viewer.Broadcaster this package
// forwards bus events onto, kept narrow so eventlog never imports the
// websocket transport.
type ViewerSink interface {
	BroadcastMissionEvent(eventType string, payload interface{})
}

var missionSubKinds = map[events.EventType]string{
	events.EventMissionCreated:    "CREATED",
	events.EventMissionDispatched: "DISPATCHED",
	events.EventMissionPaused:     "PAUSED",
	events.EventMissionResumed:    "RESUMED",
	events.EventMissionCancelled:  "CANCELLED",
	events.EventMissionDeleted:    "DELETED",
	events.EventMissionSucceeded:  "SUCCEEDED",
	events.EventMissionFailed:     "FAILED",
}

// ForwardToViewer subscribes sink to every mission lifecycle, UAV
// registration, and cluster-mission-created event on bus, reshaping each
// into the outbound discriminants spec.md §6 names for the viewer stream
// (`mission_event` with a `sub_kind`, `uav_registered`,
// `cluster_mission_created`). Coordination and alerting events stay
// internal — the viewer stream only carries what §6 lists.
func ForwardToViewer(bus *events.Bus, sink ViewerSink) {
	bus.Subscribe(events.EventUAVRegistered, func(_ context.Context, e events.Event) error {
		sink.BroadcastMissionEvent("uav_registered", e.Payload)
		return nil
	})
	bus.Subscribe(events.EventClusterMissionCreated, func(_ context.Context, e events.Event) error {
		sink.BroadcastMissionEvent("cluster_mission_created", e.Payload)
		return nil
	})
	for eventType, subKind := range missionSubKinds {
		subKind := subKind
		bus.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			payload := make(map[string]interface{}, len(e.Payload)+1)
			for k, v := range e.Payload {
				payload[k] = v
			}
			payload["sub_kind"] = subKind
			sink.BroadcastMissionEvent("mission_event", payload)
			return nil
		})
	}
}
