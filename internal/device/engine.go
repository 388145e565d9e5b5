package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// defaultAdapterTimeout bounds every adapter call. A stalled physical
// device must not hang the whole service.
const defaultAdapterTimeout = 5 * time.Second

// Engine is the reconciliation and dispatch core.
//
// It owns the device collection through an injected Store, reconciles a
// record's persisted state with live state fetched from its controller
// adapter on read, and routes the device_data portion of partial updates
// to the adapter registered for the record's device type.
//
// Reads reconcile transiently (the store is never mutated by a read);
// updates re-fetch live state after dispatch and persist the merged
// result. Mutating operations are serialised by a single writer lock
// spanning each read-modify-write sequence; adapter calls deliberately
// run outside that lock, so a concurrent delete during a slow adapter
// call surfaces as ErrNotFound on the final replace rather than silently
// recreating the record.
type Engine struct {
	store    Store
	adapters *AdapterRegistry
	logger   Logger

	// writeMu serialises mutating store access (insert/replace/delete).
	writeMu sync.Mutex

	adapterTimeout time.Duration
}

// NewEngine creates an engine over the given store and adapter registry.
func NewEngine(store Store, adapters *AdapterRegistry) *Engine {
	return &Engine{
		store:          store,
		adapters:       adapters,
		logger:         noopLogger{},
		adapterTimeout: defaultAdapterTimeout,
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetAdapterTimeout overrides the per-call adapter timeout.
func (e *Engine) SetAdapterTimeout(d time.Duration) {
	if d > 0 {
		e.adapterTimeout = d
	}
}

// ListDevices returns every stored record in insertion order, each with
// live state overlaid onto a transient copy of its device_data.
//
// A failed live-state fetch degrades that record to its last-persisted
// data rather than failing the whole listing; one unreachable device must
// not blank out the collection.
func (e *Engine) ListDevices(ctx context.Context) ([]Device, error) {
	stored, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(stored))
	for i := range stored {
		devices = append(devices, *e.reconcile(ctx, &stored[i]))
	}
	return devices, nil
}

// GetDevice returns a single record with live state overlaid, without
// persisting the merge. ErrNotFound and ErrStoreInconsistent bubble up
// from the store.
func (e *Engine) GetDevice(ctx context.Context, id string) (*Device, error) {
	stored, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.reconcile(ctx, stored), nil
}

// CreateDevice validates and persists a new record.
//
// The record is returned exactly as persisted: the caller supplied
// device_data directly, so no live-state overlay is performed on create.
func (e *Engine) CreateDevice(ctx context.Context, d *Device) (*Device, error) {
	if err := ValidateDevice(d); err != nil {
		return nil, err
	}

	record := d.DeepCopy()

	e.writeMu.Lock()
	err := e.store.Insert(ctx, record)
	e.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	e.logger.Info("device created", "device_id", record.ID, "device_type", record.Type)
	return record, nil
}

// UpdateDevice applies a partial update to the record stored under id.
//
// The patch is split into metadata fields (applied by whole-value
// replacement) and the device_data sub-patch (dispatched to the adapter
// for the record's post-patch device type). After dispatch, live state is
// re-fetched and overlaid so the persisted record reflects the device's
// true resulting state rather than the patch echo. Any failure aborts the
// whole update with nothing persisted.
func (e *Engine) UpdateDevice(ctx context.Context, id string, patch map[string]any) (*Device, error) {
	parsed, err := parsePatch(patch)
	if err != nil {
		return nil, err
	}

	// Read under the writer lock, then release it for the adapter calls.
	e.writeMu.Lock()
	current, err := e.store.GetByID(ctx, id)
	e.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	working := current.DeepCopy()
	applyMetadata(working, parsed.Metadata)
	if err := ValidateDevice(working); err != nil {
		return nil, err
	}

	// Dispatch uses the post-patch device type: changing device_type and
	// device_data in one patch routes to the new type's adapter.
	if parsed.SubPatch != nil {
		adapter, resolveErr := e.adapters.Resolve(working.Type)
		if resolveErr != nil {
			return nil, resolveErr
		}

		if applyErr := e.applyControl(ctx, adapter, working, parsed.SubPatch); applyErr != nil {
			return nil, applyErr
		}
		working.Data = Overlay(working.Data, parsed.SubPatch)

		e.logger.Debug("control patch dispatched",
			"device_id", id,
			"device_type", working.Type,
			"keys", len(parsed.SubPatch),
		)
	}

	// Re-fetch live state whenever an adapter is registered, control patch
	// or not, so the persisted record captures the device's actual state.
	// On the write path a fetch failure is terminal: a partially-verified
	// update is never persisted.
	if adapter, ok := e.adapters.Lookup(working.Type); ok {
		live, fetchErr := e.fetchLiveState(ctx, adapter, working.ControllerAddress)
		if fetchErr != nil {
			return nil, fetchErr
		}
		working.Data = Overlay(working.Data, live)
	}

	// Persist keyed by the pre-patch ID so renaming a device locates the
	// correct slot. A concurrent delete during the adapter calls surfaces
	// here as ErrNotFound.
	e.writeMu.Lock()
	err = e.store.Replace(ctx, id, working)
	e.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	e.logger.Info("device updated", "device_id", working.ID, "previous_id", id)
	return working, nil
}

// DeleteDevice removes the record stored under id and returns it for
// confirmation. ErrNotFound propagates from the store.
func (e *Engine) DeleteDevice(ctx context.Context, id string) (*Device, error) {
	e.writeMu.Lock()
	removed, err := e.store.Delete(ctx, id)
	e.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	e.logger.Info("device deleted", "device_id", id)
	return removed, nil
}

// reconcile overlays live state onto a transient copy of the record.
// Fetch failures degrade to last-persisted data with a warning.
func (e *Engine) reconcile(ctx context.Context, stored *Device) *Device {
	adapter, ok := e.adapters.Lookup(stored.Type)
	if !ok {
		return stored
	}

	live, err := e.fetchLiveState(ctx, adapter, stored.ControllerAddress)
	if err != nil {
		e.logger.Warn("live state fetch failed, returning last-persisted data",
			"device_id", stored.ID,
			"device_type", stored.Type,
			"error", err,
		)
		return stored
	}

	stored.Data = Overlay(stored.Data, live)
	return stored
}

// fetchLiveState calls the adapter with a bounded timeout.
func (e *Engine) fetchLiveState(ctx context.Context, adapter ControllerAdapter, address string) (Data, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.adapterTimeout)
	defer cancel()

	live, err := adapter.FetchLiveState(callCtx, address)
	if err != nil {
		return nil, fmt.Errorf("fetching live state: %w", err)
	}
	return live, nil
}

// applyControl calls the adapter with a bounded timeout.
func (e *Engine) applyControl(ctx context.Context, adapter ControllerAdapter, record *Device, patch Data) error {
	callCtx, cancel := context.WithTimeout(ctx, e.adapterTimeout)
	defer cancel()

	if err := adapter.ApplyControl(callCtx, record.ControllerAddress, record, patch); err != nil {
		return fmt.Errorf("applying control patch: %w", err)
	}
	return nil
}
