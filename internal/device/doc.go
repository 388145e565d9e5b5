// Package device provides the device registry core for DeviceHub: the
// ordered device collection, the reconciliation and dispatch engine, and
// the controller adapter contract.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────┐
//	│                        Device Core                             │
//	│                                                                │
//	│  ┌───────────────┐   ┌───────────────┐   ┌──────────────────┐  │
//	│  │    Engine     │   │     Store     │   │ AdapterRegistry  │  │
//	│  │  (engine.go)  │──▶│  (store.go)   │   │  (adapter.go)    │  │
//	│  │               │   │               │   │                  │  │
//	│  │ • reconcile   │   │ • ordered     │   │ • exact tag map  │  │
//	│  │ • dispatch    │   │   collection  │   │ • one adapter    │  │
//	│  │ • writer lock │   │ • SQLite      │   │   per type       │  │
//	│  └───────┬───────┘   └───────────────┘   └────────┬─────────┘  │
//	└──────────│────────────────────────────────────────│────────────┘
//	           │                                        │
//	           ▼                                        ▼
//	┌──────────────────────┐              ┌─────────────────────────┐
//	│   REST API           │              │ Controller adapters     │
//	│ GET/POST /devices    │              │ internal/adapter/hue    │
//	│ PATCH /devices/{id}  │              │ internal/adapter/cast   │
//	└──────────────────────┘              └─────────────────────────┘
//
// # Reconciliation
//
// On read, live state fetched from the device's controller is overlaid
// onto a transient copy of the stored device_data; the store is never
// mutated by a read. On partial update, metadata fields are applied by
// value replacement, the device_data sub-patch is dispatched to the
// adapter matching the record's (post-patch) type, live state is
// re-fetched and overlaid, and the merged record is persisted keyed by
// the record's pre-patch ID.
//
// # Usage
//
//	store := device.NewSQLiteStore(db)
//	adapters := device.NewAdapterRegistry()
//	adapters.Register("extended color light", hueAdapter)
//
//	engine := device.NewEngine(store, adapters)
//	engine.SetLogger(log)
//
//	dev, err := engine.UpdateDevice(ctx, "1234", map[string]any{
//	    "device_data": map[string]any{"on": true},
//	})
//
// # Thread Safety
//
// The Engine is safe for concurrent use. Mutating operations are
// serialised by a single writer lock; reads may run concurrently.
package device
