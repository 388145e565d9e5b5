package mqtt

import (
	"encoding/json"
	"time"
)

// topicPrefix is the root of DeviceHub's MQTT namespace.
const topicPrefix = "devicehub"

// Topics constructs the topic names DeviceHub publishes to. The scheme is:
//
//	devicehub/status                  retained service status (online/offline)
//	devicehub/event/<kind>            mutation events (device.created, ...)
//	devicehub/device/<id>/state       retained state snapshot per device
type Topics struct{}

// SystemStatus returns the retained service status topic.
func (Topics) SystemStatus() string {
	return topicPrefix + "/status"
}

// Event returns the topic for a mutation event kind,
// e.g. "device.created" -> "devicehub/event/device.created".
func (Topics) Event(kind string) string {
	return topicPrefix + "/event/" + kind
}

// DeviceState returns the retained state snapshot topic for a device.
func (Topics) DeviceState(deviceID string) string {
	return topicPrefix + "/device/" + deviceID + "/state"
}

// statusPayload is the body published to the service status topic.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
}

func buildOnlinePayload(clientID string) []byte {
	return marshalStatus("online", clientID)
}

func buildOfflinePayload(clientID string) []byte {
	return marshalStatus("offline", clientID)
}

// buildLWTPayload is the broker-published crash status. The timestamp is
// set at connect time since the broker publishes the payload verbatim.
func buildLWTPayload(clientID string) []byte {
	return marshalStatus("offline", clientID)
}

func marshalStatus(status, clientID string) []byte {
	payload, _ := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  clientID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}
