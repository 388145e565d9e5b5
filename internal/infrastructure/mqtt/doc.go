// Package mqtt provides DeviceHub's connection to an MQTT broker for
// announcing registry mutations to external integrations.
//
// # Architecture
//
//	┌──────────────┐   device.created / device.updated / device.deleted
//	│  API server  │──────────────────────────────────────────────┐
//	└──────────────┘                                              ▼
//	                                                      ┌──────────────┐
//	                                                      │ mqtt.Client  │
//	                                                      └──────┬───────┘
//	                                                             │ publish only
//	                                                             ▼
//	                                                      ┌──────────────┐
//	                                                      │    broker    │
//	                                                      └──────────────┘
//
// DeviceHub is a publisher only. It never subscribes to device state over
// MQTT; state is reconciled by pulling from controllers on read. The
// published surface is:
//
//   - devicehub/status: retained online/offline service status with a
//     Last Will and Testament covering crashes
//   - devicehub/event/<kind>: one message per successful registry mutation
//   - devicehub/device/<id>/state: retained per-device record snapshot
//
// The broker is optional. When mqtt.enabled is false the service runs
// identically, minus the announcements.
package mqtt
