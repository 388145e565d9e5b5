package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/devgrid/devicehub/internal/device"
	"github.com/devgrid/devicehub/internal/infrastructure/mqtt"
)

// Mutation event kinds announced over WebSocket and MQTT.
const (
	EventDeviceCreated = "device.created"
	EventDeviceUpdated = "device.updated"
	EventDeviceDeleted = "device.deleted"
)

// deviceEvent is the payload announced for each successful registry mutation.
type deviceEvent struct {
	EventID   string        `json:"event_id"`
	Kind      string        `json:"kind"`
	Timestamp string        `json:"timestamp"`
	Device    device.Device `json:"device"`
}

// announceDeviceEvent broadcasts a registry mutation to WebSocket clients
// and, when a broker is connected, publishes the event plus a retained
// per-device state snapshot to MQTT.
//
// Announcements are best-effort. The mutation has already been persisted;
// a broker hiccup is logged, never surfaced to the HTTP caller.
func (s *Server) announceDeviceEvent(kind string, record *device.Device) {
	event := deviceEvent{
		EventID:   uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Device:    *record,
	}

	if s.hub != nil {
		s.hub.Broadcast(kind, event)
	}

	if s.mqtt == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to encode device event", "kind", kind, "error", err)
		return
	}

	topics := mqtt.Topics{}
	if err := s.mqtt.Publish(topics.Event(kind), payload); err != nil {
		s.logger.Warn("mqtt event publish failed", "kind", kind, "device_id", record.ID, "error", err)
	}

	// Retained snapshot so integrations see current state without polling.
	// Deleting a device clears the snapshot with an empty retained payload.
	stateTopic := topics.DeviceState(record.ID)
	if kind == EventDeviceDeleted {
		if err := s.mqtt.PublishRetained(stateTopic, nil); err != nil {
			s.logger.Warn("mqtt snapshot clear failed", "device_id", record.ID, "error", err)
		}
		return
	}

	snapshot, err := json.Marshal(record)
	if err != nil {
		s.logger.Error("failed to encode device snapshot", "device_id", record.ID, "error", err)
		return
	}
	if err := s.mqtt.PublishRetained(stateTopic, snapshot); err != nil {
		s.logger.Warn("mqtt snapshot publish failed", "device_id", record.ID, "error", err)
	}
}
