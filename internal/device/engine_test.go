package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// fakeAdapter is a scriptable ControllerAdapter recording its calls.
type fakeAdapter struct {
	mu sync.Mutex

	liveState Data
	fetchErr  error
	applyErr  error

	fetchCalls []string
	applyCalls []Data
}

func (f *fakeAdapter) FetchLiveState(_ context.Context, controllerAddress string) (Data, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, controllerAddress)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return deepCopyMap(f.liveState), nil
}

func (f *fakeAdapter) ApplyControl(_ context.Context, _ string, _ *Device, patch Data) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls = append(f.applyCalls, deepCopyMap(patch))
	return f.applyErr
}

func (f *fakeAdapter) lastApply() Data {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.applyCalls) == 0 {
		return nil
	}
	return f.applyCalls[len(f.applyCalls)-1]
}

// newTestEngine wires an engine over an in-memory store with one fake
// adapter registered for "extended color light".
func newTestEngine(t *testing.T) (*Engine, *SQLiteStore, *fakeAdapter) {
	t.Helper()

	store := NewSQLiteStore(setupTestDB(t))
	adapter := &fakeAdapter{liveState: Data{}}

	registry := NewAdapterRegistry()
	if err := registry.Register("extended color light", adapter); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	return NewEngine(store, registry), store, adapter
}

func TestEngine_CreateDevice(t *testing.T) {
	engine, store, adapter := newTestEngine(t)
	ctx := context.Background()

	t.Run("persists and returns the record without overlay", func(t *testing.T) {
		adapter.liveState = Data{"on": false, "bri": float64(1)}

		created, err := engine.CreateDevice(ctx, testLight("light-c1", "Hall"))
		if err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}
		// Create returns caller-supplied data, never a live-state merge.
		if created.Data["on"] != true {
			t.Errorf("Data[on] = %v, want true", created.Data["on"])
		}

		stored, err := store.GetByID(ctx, "light-c1")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if stored.Data["bri"] != float64(100) {
			t.Errorf("stored Data[bri] = %v, want 100", stored.Data["bri"])
		}
	})

	t.Run("rejects duplicate IDs", func(t *testing.T) {
		if _, err := engine.CreateDevice(ctx, testLight("light-c2", "First")); err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}
		_, err := engine.CreateDevice(ctx, testLight("light-c2", "Second"))
		if !errors.Is(err, ErrExists) {
			t.Errorf("CreateDevice() error = %v, want ErrExists", err)
		}
	})

	t.Run("rejects incomplete records", func(t *testing.T) {
		incomplete := testLight("light-c3", "No Address")
		incomplete.ControllerAddress = ""
		_, err := engine.CreateDevice(ctx, incomplete)
		if !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("CreateDevice() error = %v, want ErrInvalidDevice", err)
		}
	})

	t.Run("accepts unregistered device types", func(t *testing.T) {
		exotic := testLight("light-c4", "Thermostat")
		exotic.Type = "thermostat"
		if _, err := engine.CreateDevice(ctx, exotic); err != nil {
			t.Errorf("CreateDevice() error = %v, want nil (types are unconstrained at rest)", err)
		}
	})
}

func TestEngine_GetDevice(t *testing.T) {
	engine, store, adapter := newTestEngine(t)
	ctx := context.Background()

	t.Run("returns ErrNotFound for missing ID", func(t *testing.T) {
		_, err := engine.GetDevice(ctx, "no-such-device")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetDevice() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("overlays live state without persisting it", func(t *testing.T) {
		if _, err := engine.CreateDevice(ctx, testLight("light-g1", "Hall")); err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}
		adapter.liveState = Data{"bri": float64(42), "hue": float64(47104)}

		got, err := engine.GetDevice(ctx, "light-g1")
		if err != nil {
			t.Fatalf("GetDevice() error = %v", err)
		}
		if got.Data["bri"] != float64(42) {
			t.Errorf("Data[bri] = %v, want live value 42", got.Data["bri"])
		}
		if got.Data["hue"] != float64(47104) {
			t.Errorf("Data[hue] = %v, want live value 47104", got.Data["hue"])
		}
		if got.Data["on"] != true {
			t.Errorf("Data[on] = %v, want stored value true preserved", got.Data["on"])
		}

		// Reads never write back to the store.
		stored, err := store.GetByID(ctx, "light-g1")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if stored.Data["bri"] != float64(100) {
			t.Errorf("stored Data[bri] = %v, want 100 (unchanged)", stored.Data["bri"])
		}
		if _, present := stored.Data["hue"]; present {
			t.Error("stored record gained a live-only key")
		}
	})

	t.Run("degrades to stored data when fetch fails", func(t *testing.T) {
		if _, err := engine.CreateDevice(ctx, testLight("light-g2", "Porch")); err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}
		adapter.fetchErr = fmt.Errorf("%w: connection refused", ErrAdapterUnavailable)
		defer func() { adapter.fetchErr = nil }()

		got, err := engine.GetDevice(ctx, "light-g2")
		if err != nil {
			t.Fatalf("GetDevice() error = %v, want degraded success", err)
		}
		if got.Data["bri"] != float64(100) {
			t.Errorf("Data[bri] = %v, want last-persisted 100", got.Data["bri"])
		}
	})

	t.Run("skips reconciliation for unregistered types", func(t *testing.T) {
		exotic := testLight("light-g3", "Sensor")
		exotic.Type = "motion sensor"
		exotic.Data = Data{"motion": false}
		if _, err := engine.CreateDevice(ctx, exotic); err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}

		before := len(adapter.fetchCalls)
		got, err := engine.GetDevice(ctx, "light-g3")
		if err != nil {
			t.Fatalf("GetDevice() error = %v", err)
		}
		if got.Data["motion"] != false {
			t.Errorf("Data[motion] = %v, want false", got.Data["motion"])
		}
		if len(adapter.fetchCalls) != before {
			t.Error("adapter was called for an unregistered type")
		}
	})
}

func TestEngine_ListDevices(t *testing.T) {
	engine, _, adapter := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"list-1", "list-2", "list-3"} {
		if _, err := engine.CreateDevice(ctx, testLight(id, id)); err != nil {
			t.Fatalf("CreateDevice(%s) error = %v", id, err)
		}
	}

	t.Run("returns records in insertion order with live overlay", func(t *testing.T) {
		adapter.liveState = Data{"bri": float64(7)}

		devices, err := engine.ListDevices(ctx)
		if err != nil {
			t.Fatalf("ListDevices() error = %v", err)
		}
		if len(devices) != 3 {
			t.Fatalf("ListDevices() returned %d devices, want 3", len(devices))
		}
		for i, want := range []string{"list-1", "list-2", "list-3"} {
			if devices[i].ID != want {
				t.Errorf("ListDevices()[%d].ID = %q, want %q", i, devices[i].ID, want)
			}
			if devices[i].Data["bri"] != float64(7) {
				t.Errorf("ListDevices()[%d].Data[bri] = %v, want 7", i, devices[i].Data["bri"])
			}
		}
	})

	t.Run("one unreachable device does not fail the listing", func(t *testing.T) {
		adapter.fetchErr = fmt.Errorf("%w: timeout", ErrAdapterUnavailable)
		defer func() { adapter.fetchErr = nil }()

		devices, err := engine.ListDevices(ctx)
		if err != nil {
			t.Fatalf("ListDevices() error = %v, want degraded success", err)
		}
		if len(devices) != 3 {
			t.Fatalf("ListDevices() returned %d devices, want 3", len(devices))
		}
		if devices[0].Data["bri"] != float64(100) {
			t.Errorf("degraded Data[bri] = %v, want last-persisted 100", devices[0].Data["bri"])
		}
	})
}

func TestEngine_UpdateDevice(t *testing.T) {
	engine, store, adapter := newTestEngine(t)
	ctx := context.Background()

	mustCreate := func(t *testing.T, d *Device) {
		t.Helper()
		if _, err := engine.CreateDevice(ctx, d); err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}
	}

	t.Run("returns ErrNotFound for missing ID", func(t *testing.T) {
		_, err := engine.UpdateDevice(ctx, "no-such-device", map[string]any{"device_name": "x"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateDevice() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("rejects empty and unknown-key patches atomically", func(t *testing.T) {
		mustCreate(t, testLight("up-1", "Hall"))

		if _, err := engine.UpdateDevice(ctx, "up-1", map[string]any{}); !errors.Is(err, ErrInvalidAttributes) {
			t.Errorf("empty patch error = %v, want ErrInvalidAttributes", err)
		}

		_, err := engine.UpdateDevice(ctx, "up-1", map[string]any{
			"device_name": "Touched",
			"bogus":       1,
		})
		if !errors.Is(err, ErrInvalidAttributes) {
			t.Errorf("unknown key error = %v, want ErrInvalidAttributes", err)
		}

		stored, getErr := store.GetByID(ctx, "up-1")
		if getErr != nil {
			t.Fatalf("GetByID() error = %v", getErr)
		}
		if stored.Name != "Hall" {
			t.Errorf("Name = %q, want %q (nothing applied)", stored.Name, "Hall")
		}
	})

	t.Run("metadata-only patch skips dispatch but refetches state", func(t *testing.T) {
		mustCreate(t, testLight("up-2", "Kitchen"))
		adapter.liveState = Data{"bri": float64(55)}
		before := len(adapter.applyCalls)

		updated, err := engine.UpdateDevice(ctx, "up-2", map[string]any{"device_name": "Kitchen Main"})
		if err != nil {
			t.Fatalf("UpdateDevice() error = %v", err)
		}
		if updated.Name != "Kitchen Main" {
			t.Errorf("Name = %q, want %q", updated.Name, "Kitchen Main")
		}
		if len(adapter.applyCalls) != before {
			t.Error("metadata-only patch dispatched a control command")
		}
		if updated.Data["bri"] != float64(55) {
			t.Errorf("Data[bri] = %v, want refetched 55", updated.Data["bri"])
		}
	})

	t.Run("control patch dispatches exactly the sub-patch and persists merged state", func(t *testing.T) {
		mustCreate(t, testLight("up-3", "Bedroom"))
		adapter.liveState = Data{"on": true, "bri": float64(200), "hue": float64(1000)}

		updated, err := engine.UpdateDevice(ctx, "up-3", map[string]any{
			"device_data": map[string]any{"bri": float64(200)},
		})
		if err != nil {
			t.Fatalf("UpdateDevice() error = %v", err)
		}

		sent := adapter.lastApply()
		if len(sent) != 1 || sent["bri"] != float64(200) {
			t.Errorf("adapter received %v, want exactly {bri: 200}", sent)
		}

		if updated.Data["bri"] != float64(200) {
			t.Errorf("Data[bri] = %v, want 200", updated.Data["bri"])
		}
		if updated.Data["hue"] != float64(1000) {
			t.Errorf("Data[hue] = %v, want live 1000", updated.Data["hue"])
		}

		stored, getErr := store.GetByID(ctx, "up-3")
		if getErr != nil {
			t.Fatalf("GetByID() error = %v", getErr)
		}
		if stored.Data["bri"] != float64(200) {
			t.Errorf("stored Data[bri] = %v, want 200 persisted", stored.Data["bri"])
		}
	})

	t.Run("control patch on unsupported type is rejected", func(t *testing.T) {
		exotic := testLight("up-4", "Sensor")
		exotic.Type = "motion sensor"
		mustCreate(t, exotic)

		_, err := engine.UpdateDevice(ctx, "up-4", map[string]any{
			"device_data": map[string]any{"motion": true},
		})
		if !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("UpdateDevice() error = %v, want ErrUnsupportedType", err)
		}
	})

	t.Run("dispatch routes on the post-patch type", func(t *testing.T) {
		exotic := testLight("up-5", "Reclassified")
		exotic.Type = "mystery gadget"
		mustCreate(t, exotic)
		adapter.liveState = Data{"on": true}

		updated, err := engine.UpdateDevice(ctx, "up-5", map[string]any{
			"device_type": "Extended Color Light",
			"device_data": map[string]any{"on": true},
		})
		if err != nil {
			t.Fatalf("UpdateDevice() error = %v", err)
		}
		if updated.Type != "Extended Color Light" {
			t.Errorf("Type = %q, want %q", updated.Type, "Extended Color Light")
		}
	})

	t.Run("adapter rejection aborts without persisting", func(t *testing.T) {
		mustCreate(t, testLight("up-6", "Lounge"))
		adapter.applyErr = fmt.Errorf("%w: bri out of range", ErrAdapterRejected)
		defer func() { adapter.applyErr = nil }()

		_, err := engine.UpdateDevice(ctx, "up-6", map[string]any{
			"device_name": "Lounge Renamed",
			"device_data": map[string]any{"bri": float64(9000)},
		})
		if !errors.Is(err, ErrAdapterRejected) {
			t.Errorf("UpdateDevice() error = %v, want ErrAdapterRejected", err)
		}

		stored, getErr := store.GetByID(ctx, "up-6")
		if getErr != nil {
			t.Fatalf("GetByID() error = %v", getErr)
		}
		if stored.Name != "Lounge" {
			t.Errorf("Name = %q, want %q (metadata not applied)", stored.Name, "Lounge")
		}
	})

	t.Run("post-dispatch fetch failure is terminal", func(t *testing.T) {
		mustCreate(t, testLight("up-7", "Attic"))
		adapter.fetchErr = fmt.Errorf("%w: no route", ErrAdapterUnavailable)
		defer func() { adapter.fetchErr = nil }()

		_, err := engine.UpdateDevice(ctx, "up-7", map[string]any{
			"device_data": map[string]any{"on": false},
		})
		if !errors.Is(err, ErrAdapterUnavailable) {
			t.Errorf("UpdateDevice() error = %v, want ErrAdapterUnavailable", err)
		}

		stored, getErr := store.GetByID(ctx, "up-7")
		if getErr != nil {
			t.Fatalf("GetByID() error = %v", getErr)
		}
		if stored.Data["on"] != true {
			t.Errorf("stored Data[on] = %v, want true (update not persisted)", stored.Data["on"])
		}
	})

	t.Run("rename and control patch in one call", func(t *testing.T) {
		mustCreate(t, testLight("up-8", "Old Name"))
		adapter.liveState = Data{"on": false}

		updated, err := engine.UpdateDevice(ctx, "up-8", map[string]any{
			"device_id":   "up-8-new",
			"device_name": "New Name",
			"device_data": map[string]any{"on": false},
		})
		if err != nil {
			t.Fatalf("UpdateDevice() error = %v", err)
		}
		if updated.ID != "up-8-new" {
			t.Errorf("ID = %q, want %q", updated.ID, "up-8-new")
		}

		if _, err := store.GetByID(ctx, "up-8"); !errors.Is(err, ErrNotFound) {
			t.Errorf("old ID lookup error = %v, want ErrNotFound", err)
		}
		if _, err := store.GetByID(ctx, "up-8-new"); err != nil {
			t.Errorf("new ID lookup error = %v", err)
		}
	})

	t.Run("rename onto an existing ID is rejected", func(t *testing.T) {
		mustCreate(t, testLight("up-9a", "A"))
		mustCreate(t, testLight("up-9b", "B"))

		_, err := engine.UpdateDevice(ctx, "up-9a", map[string]any{"device_id": "up-9b"})
		if !errors.Is(err, ErrExists) {
			t.Errorf("UpdateDevice() error = %v, want ErrExists", err)
		}
	})

	t.Run("blanking a required field is rejected", func(t *testing.T) {
		mustCreate(t, testLight("up-10", "Blankable"))

		_, err := engine.UpdateDevice(ctx, "up-10", map[string]any{"device_name": ""})
		if !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("UpdateDevice() error = %v, want ErrInvalidDevice", err)
		}
	})

	t.Run("update preserves collection order", func(t *testing.T) {
		listEngine, _, listAdapter := newTestEngine(t)
		listAdapter.liveState = Data{}
		for _, id := range []string{"ord-1", "ord-2", "ord-3"} {
			if _, err := listEngine.CreateDevice(ctx, testLight(id, id)); err != nil {
				t.Fatalf("CreateDevice(%s) error = %v", id, err)
			}
		}

		if _, err := listEngine.UpdateDevice(ctx, "ord-2", map[string]any{"device_name": "middle"}); err != nil {
			t.Fatalf("UpdateDevice() error = %v", err)
		}

		devices, err := listEngine.ListDevices(ctx)
		if err != nil {
			t.Fatalf("ListDevices() error = %v", err)
		}
		for i, want := range []string{"ord-1", "ord-2", "ord-3"} {
			if devices[i].ID != want {
				t.Errorf("ListDevices()[%d].ID = %q, want %q", i, devices[i].ID, want)
			}
		}
	})
}

func TestEngine_DeleteDevice(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	t.Run("removes and echoes the record", func(t *testing.T) {
		if _, err := engine.CreateDevice(ctx, testLight("del-1", "Doomed")); err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}

		removed, err := engine.DeleteDevice(ctx, "del-1")
		if err != nil {
			t.Fatalf("DeleteDevice() error = %v", err)
		}
		if removed.Name != "Doomed" {
			t.Errorf("removed.Name = %q, want %q", removed.Name, "Doomed")
		}

		if _, err := store.GetByID(ctx, "del-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("returns ErrNotFound for missing ID", func(t *testing.T) {
		_, err := engine.DeleteDevice(ctx, "no-such-device")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("DeleteDevice() error = %v, want ErrNotFound", err)
		}
	})
}
