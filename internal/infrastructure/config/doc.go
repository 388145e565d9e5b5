// Package config loads and validates DeviceHub configuration.
//
// Configuration is read from a YAML file, then overridden by environment
// variables following the DEVICEHUB_SECTION_KEY pattern. Defaults allow
// the service to start with nothing but a database path.
package config
