package device

import (
	"fmt"
	"sort"
	"strings"
)

// ValidateDevice checks that a record has all five fields populated.
// Partial records are never persisted; this runs before every insert and
// before every replace (a patch could otherwise blank a required field).
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidDevice)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidDevice)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: device_name is required", ErrInvalidDevice)
	}
	if d.Type == "" {
		return fmt.Errorf("%w: device_type is required", ErrInvalidDevice)
	}
	if d.ControllerAddress == "" {
		return fmt.Errorf("%w: device_controller_address is required", ErrInvalidDevice)
	}
	if d.Data == nil {
		return fmt.Errorf("%w: device_data is required", ErrInvalidDevice)
	}
	return nil
}

// patchValues holds a decoded, type-checked PATCH body.
//
// Metadata carries the present metadata fields by attribute name; SubPatch
// is the device_data sub-patch (nil when absent, which is distinct from an
// empty map).
type patchValues struct {
	Metadata map[string]string
	SubPatch Data
}

// parsePatch validates a raw PATCH body and extracts typed values.
//
// The check is all-or-nothing: any unknown top-level key or wrongly-typed
// value rejects the whole patch with ErrInvalidAttributes before a single
// field is applied, so a later failure can never leave a half-applied
// metadata mutation behind.
func parsePatch(patch map[string]any) (*patchValues, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("%w: empty patch", ErrInvalidAttributes)
	}

	known := make(map[string]bool, len(MetadataFields)+1)
	for _, f := range MetadataFields {
		known[f] = true
	}
	known[FieldDeviceData] = true

	var unknown []string
	for key := range patch {
		if !known[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown keys: %s", ErrInvalidAttributes, strings.Join(unknown, ", "))
	}

	parsed := &patchValues{Metadata: make(map[string]string)}
	for _, field := range MetadataFields {
		raw, present := patch[field]
		if !present {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidAttributes, field)
		}
		parsed.Metadata[field] = value
	}

	if raw, present := patch[FieldDeviceData]; present {
		switch value := raw.(type) {
		case map[string]any:
			parsed.SubPatch = Data(value)
		case Data:
			parsed.SubPatch = value
		default:
			return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidAttributes, FieldDeviceData)
		}
	}

	return parsed, nil
}

// applyMetadata writes the present metadata fields onto a working copy by
// whole-value replacement.
func applyMetadata(working *Device, metadata map[string]string) {
	if v, ok := metadata["device_id"]; ok {
		working.ID = v
	}
	if v, ok := metadata["device_name"]; ok {
		working.Name = v
	}
	if v, ok := metadata["device_type"]; ok {
		working.Type = v
	}
	if v, ok := metadata["device_controller_address"]; ok {
		working.ControllerAddress = v
	}
}
