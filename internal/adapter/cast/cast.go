package cast

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/devgrid/devicehub/internal/device"
)

// TypeTag is the device type tag this adapter serves.
const TypeTag = "cast audio"

// Runner executes the cast control binary. The seam exists so tests can
// substitute a fake without spawning processes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Adapter drives cast-protocol audio players through a command-line
// control binary. The controller address stored on a device record is the
// player's network address, passed to the binary via --addr.
//
// Recognised device_data fields:
//
//	volume  number in [0, 100]
//	playing bool; true starts playback of url, false stops it
//	url     media URL, used when playing flips to true
type Adapter struct {
	binary string
	runner Runner
}

// New creates a cast adapter using the given control binary.
func New(binary string) *Adapter {
	return &Adapter{
		binary: binary,
		runner: execRunner{},
	}
}

// SetRunner replaces the command runner. Intended for tests.
func (a *Adapter) SetRunner(r Runner) {
	a.runner = r
}

// FetchLiveState queries the player's current status. The control binary
// prints a JSON object on its status subcommand.
func (a *Adapter) FetchLiveState(ctx context.Context, controllerAddress string) (device.Data, error) {
	out, err := a.run(ctx, controllerAddress, "status", "--json")
	if err != nil {
		return nil, err
	}

	state := device.Data{}
	if err := json.Unmarshal(out, &state); err != nil {
		return nil, fmt.Errorf("%w: decoding player status: %w", device.ErrAdapterUnavailable, err)
	}
	return state, nil
}

// ApplyControl translates the patch into control binary invocations.
//
// Values missing from the patch fall back to the stored record, so
// {"playing": true} starts the URL already held in device_data. Commands
// run in a fixed order (volume before transport) so a single patch that
// sets both behaves deterministically.
func (a *Adapter) ApplyControl(ctx context.Context, controllerAddress string, record *device.Device, patch device.Data) error {
	for key := range patch {
		switch key {
		case "volume", "playing", "url":
		default:
			return fmt.Errorf("%w: unknown field %q for cast audio", device.ErrAdapterRejected, key)
		}
	}

	if raw, ok := patch["volume"]; ok {
		volume, err := parseVolume(raw)
		if err != nil {
			return err
		}
		if _, err := a.run(ctx, controllerAddress, "volume", strconv.Itoa(volume)); err != nil {
			return err
		}
	}

	if raw, ok := patch["playing"]; ok {
		playing, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("%w: playing must be a boolean", device.ErrAdapterRejected)
		}
		if playing {
			url := resolveURL(record, patch)
			if url == "" {
				return fmt.Errorf("%w: playing requires a url", device.ErrAdapterRejected)
			}
			if _, err := a.run(ctx, controllerAddress, "media", "play", url); err != nil {
				return err
			}
		} else {
			if _, err := a.run(ctx, controllerAddress, "quit"); err != nil {
				return err
			}
		}
	}

	return nil
}

// run invokes the control binary against one player address.
func (a *Adapter) run(ctx context.Context, controllerAddress string, args ...string) ([]byte, error) {
	full := append([]string{"--addr", controllerAddress}, args...)
	out, err := a.runner.Run(ctx, a.binary, full...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %v: %w", device.ErrAdapterUnavailable, a.binary, args, err)
	}
	return out, nil
}

// parseVolume accepts the numeric types JSON decoding produces and
// clamps-checks the 0..100 range.
func parseVolume(raw any) (int, error) {
	var volume float64
	switch v := raw.(type) {
	case float64:
		volume = v
	case int:
		volume = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: volume must be a number", device.ErrAdapterRejected)
		}
		volume = f
	default:
		return 0, fmt.Errorf("%w: volume must be a number", device.ErrAdapterRejected)
	}

	if volume < 0 || volume > 100 {
		return 0, fmt.Errorf("%w: volume %v out of range [0, 100]", device.ErrAdapterRejected, volume)
	}
	return int(volume), nil
}

// resolveURL prefers the patched url, falling back to the stored record.
func resolveURL(record *device.Device, patch device.Data) string {
	if raw, ok := patch["url"]; ok {
		if url, ok := raw.(string); ok {
			return url
		}
		return ""
	}
	if record == nil || record.Data == nil {
		return ""
	}
	if url, ok := record.Data["url"].(string); ok {
		return url
	}
	return ""
}
