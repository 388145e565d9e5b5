package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a device ID does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrExists is returned when creating a device with an ID that already exists.
	ErrExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when a record fails creation validation
	// (a required field is empty or missing).
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidAttributes is returned when a patch contains unknown
	// top-level keys or wrongly-typed values. The whole patch is rejected.
	ErrInvalidAttributes = errors.New("device: invalid attributes")

	// ErrUnsupportedType is returned when no controller adapter is
	// registered for a record's device type.
	ErrUnsupportedType = errors.New("device: unsupported type")

	// ErrAdapterUnavailable is returned when an adapter cannot reach the
	// physical device (connectivity failure, bad address).
	ErrAdapterUnavailable = errors.New("device: adapter unavailable")

	// ErrAdapterRejected is returned when an adapter receives a control
	// patch it cannot apply (malformed or unsupported keys).
	ErrAdapterRejected = errors.New("device: adapter rejected patch")

	// ErrStoreInconsistent is returned when a store invariant is violated,
	// such as multiple records sharing a device ID. This must never occur
	// if insertion enforces uniqueness; it is detected, never repaired.
	ErrStoreInconsistent = errors.New("device: store inconsistent")
)
