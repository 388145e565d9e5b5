package device

import "time"

// Device represents one controllable smart-home device as exposed through
// the REST API and persisted by the Store.
//
// The four metadata fields identify and describe the device; Data is the
// opaque, adapter-specific hardware state (brightness, colour, volume, ...).
type Device struct {
	// ID is the unique identifier used for lookup. It is itself editable
	// via PATCH, but uniqueness is enforced at all times.
	ID string `json:"device_id"`

	// Name is a free-form label with no uniqueness constraint.
	Name string `json:"device_name"`

	// Type selects the controller adapter. Dispatch uses an exact match on
	// the normalized tag (see NormalizeTypeTag), never substring matching.
	Type string `json:"device_type"`

	// ControllerAddress is the opaque address (URL, host, ...) the matching
	// adapter uses to reach the physical device.
	ControllerAddress string `json:"device_controller_address"`

	// Data holds the current hardware state as reported by the device.
	// The core never interprets individual keys; it only merges them.
	Data Data `json:"device_data"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Data holds device-type-specific hardware state as a JSON map.
//
// Examples:
//   - Colour light: {"on": true, "bri": 200, "hue": 47104, "xy": [0.15, 0.05]}
//   - Audio player: {"state": "playing", "volume": "0.5", "port": "8009"}
type Data map[string]any

// MetadataFields lists the four identity/descriptive attributes of a record,
// as distinct from the device_data control key.
var MetadataFields = []string{
	"device_id",
	"device_name",
	"device_type",
	"device_controller_address",
}

// FieldDeviceData is the single control-data attribute of a record.
const FieldDeviceData = "device_data"

// DeepCopy creates a complete independent copy of the Device.
// The Data map is cloned recursively so modifications to the copy do not
// leak into stored or cached records.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields
	cpy.Data = deepCopyMap(d.Data)
	return &cpy
}

// Overlay returns a copy of base with every key of patch applied on top.
// Keys present in patch override base one-for-one; keys absent from patch
// are preserved. Neither input map is modified.
func Overlay(base, patch Data) Data {
	merged := deepCopyMap(base)
	if merged == nil {
		merged = make(Data, len(patch))
	}
	for k, v := range patch {
		merged[k] = deepCopyValue(v)
	}
	return merged
}

// deepCopyMap creates a deep copy of a Data map.
// Nested maps and slices are recursively copied.
func deepCopyMap(m Data) Data {
	if m == nil {
		return nil
	}
	cpy := make(Data, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case Data:
		return deepCopyMap(val)
	case map[string]any:
		return map[string]any(deepCopyMap(val))
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, float64, etc.) are safe to copy by value
		return v
	}
}
