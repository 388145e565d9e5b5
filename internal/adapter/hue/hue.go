package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/devgrid/devicehub/internal/device"
)

// TypeTags are the device type tags this adapter serves. Hue-compatible
// bridges report color-capable lights under both names depending on
// firmware generation.
var TypeTags = []string{"extended color light", "color light"}

// maxResponseSize caps how much of a controller response is read (1 MB).
// A light's state document is a few hundred bytes.
const maxResponseSize = 1024 * 1024

// Adapter drives Hue-compatible color lights over the bridge's REST API.
//
// The controller address stored on a device record is the full light URL,
// e.g. http://bridge.local/api/<user>/lights/3. State reads GET that URL
// and return its "state" object; control writes PUT the patch to
// <address>/state.
type Adapter struct {
	httpClient *http.Client
}

// New creates a Hue adapter. timeout bounds each HTTP round trip and is
// applied in addition to any context deadline.
func New(timeout time.Duration) *Adapter {
	return &Adapter{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// lightDocument is the bridge's representation of a single light. Only
// the state object is surfaced; name and model metadata live in the
// registry record, not the hardware snapshot.
type lightDocument struct {
	State map[string]any `json:"state"`
}

// bridgeResult is one element of the array the bridge returns from a
// state write. Each element reports success or error for one field.
type bridgeResult struct {
	Success map[string]any `json:"success"`
	Error   *bridgeError   `json:"error"`
}

type bridgeError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

// FetchLiveState reads the light's current hardware state from the bridge.
func (a *Adapter) FetchLiveState(ctx context.Context, controllerAddress string) (device.Data, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, controllerAddress, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid controller address %q: %w", device.ErrAdapterUnavailable, controllerAddress, err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching light state: %w", device.ErrAdapterUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading light state: %w", device.ErrAdapterUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: bridge returned status %d", device.ErrAdapterUnavailable, resp.StatusCode)
	}

	var doc lightDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding light document: %w", device.ErrAdapterUnavailable, err)
	}
	if doc.State == nil {
		return nil, fmt.Errorf("%w: light document has no state object", device.ErrAdapterUnavailable)
	}

	return device.Data(doc.State), nil
}

// ApplyControl writes the patch to the light's state endpoint. The bridge
// validates each field and reports per-field success or error; any error
// element fails the whole call since the registry treats patches as
// all-or-nothing.
func (a *Adapter) ApplyControl(ctx context.Context, controllerAddress string, _ *device.Device, patch device.Data) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("%w: encoding state patch: %w", device.ErrAdapterRejected, err)
	}

	url := controllerAddress + "/state"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: invalid controller address %q: %w", device.ErrAdapterUnavailable, controllerAddress, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: writing light state: %w", device.ErrAdapterUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: reading bridge response: %w", device.ErrAdapterUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: bridge returned status %d", device.ErrAdapterUnavailable, resp.StatusCode)
	}

	var results []bridgeResult
	if err := json.Unmarshal(body, &results); err != nil {
		return fmt.Errorf("%w: decoding bridge response: %w", device.ErrAdapterUnavailable, err)
	}
	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("%w: %s (type %d at %s)",
				device.ErrAdapterRejected, r.Error.Description, r.Error.Type, r.Error.Address)
		}
	}

	return nil
}
