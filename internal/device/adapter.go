package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ControllerAdapter hides the physical control protocol of one device
// family. Exactly one adapter serves each registered device type tag.
//
// Implementations live outside the core (internal/adapter/...) and are
// registered with an AdapterRegistry at startup.
type ControllerAdapter interface {
	// FetchLiveState returns the device's current hardware state.
	// Returns ErrAdapterUnavailable (wrapped) when the controller address
	// is unreachable or invalid.
	FetchLiveState(ctx context.Context, controllerAddress string) (Data, error)

	// ApplyControl sends a write command reflecting patch to the physical
	// device. The command may complete asynchronously from the device's
	// actual state change; callers re-fetch live state afterwards rather
	// than trusting the patch echo.
	//
	// Returns ErrAdapterRejected (wrapped) for malformed/unsupported patch
	// keys, or ErrAdapterUnavailable for connectivity failure.
	ApplyControl(ctx context.Context, controllerAddress string, record *Device, patch Data) error
}

// NormalizeTypeTag canonicalises a device type for adapter dispatch:
// lower-cased, trimmed, with internal whitespace runs collapsed to one
// space. "Extended color light" and " extended  Color Light " resolve to
// the same tag. Matching is exact on the normalized tag, never substring.
func NormalizeTypeTag(deviceType string) string {
	return strings.Join(strings.Fields(strings.ToLower(deviceType)), " ")
}

// AdapterRegistry maps normalized device type tags to controller adapters.
//
// Registration happens once at startup; lookups are concurrent-safe.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]ControllerAdapter
}

// NewAdapterRegistry creates an empty adapter registry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		adapters: make(map[string]ControllerAdapter),
	}
}

// Register binds an adapter to a device type tag. The tag is normalized
// before insertion. Registering a tag twice is a programming error and
// returns an error rather than silently replacing the first adapter.
func (r *AdapterRegistry) Register(typeTag string, adapter ControllerAdapter) error {
	tag := NormalizeTypeTag(typeTag)
	if tag == "" {
		return fmt.Errorf("%w: empty type tag", ErrInvalidDevice)
	}
	if adapter == nil {
		return fmt.Errorf("adapter for %q is nil", tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[tag]; exists {
		return fmt.Errorf("adapter already registered for type %q", tag)
	}
	r.adapters[tag] = adapter
	return nil
}

// Resolve returns the adapter registered for the given device type.
// Returns ErrUnsupportedType (wrapped, naming the offending type) when no
// adapter matches.
func (r *AdapterRegistry) Resolve(deviceType string) (ControllerAdapter, error) {
	tag := NormalizeTypeTag(deviceType)

	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, deviceType)
	}
	return adapter, nil
}

// Lookup is like Resolve but distinguishes "no adapter" from errors with
// a boolean, for read paths where an unregistered type is not a failure.
func (r *AdapterRegistry) Lookup(deviceType string) (ControllerAdapter, bool) {
	tag := NormalizeTypeTag(deviceType)

	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[tag]
	return adapter, ok
}

// Tags returns the sorted-insertion set of registered type tags.
// Intended for logging and diagnostics.
func (r *AdapterRegistry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	return tags
}
