package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/devgrid/devicehub/internal/device"
	"github.com/devgrid/devicehub/internal/infrastructure/config"
	"github.com/devgrid/devicehub/internal/infrastructure/logging"
)

// stubAdapter returns a fixed live state and optionally fails.
type stubAdapter struct {
	liveState device.Data
	fetchErr  error
	applyErr  error
}

func (a *stubAdapter) FetchLiveState(context.Context, string) (device.Data, error) {
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	state := make(device.Data, len(a.liveState))
	for k, v := range a.liveState {
		state[k] = v
	}
	return state, nil
}

func (a *stubAdapter) ApplyControl(context.Context, string, *device.Device, device.Data) error {
	return a.applyErr
}

// newTestServer builds a router over an in-memory store with one stub
// adapter registered for "extended color light".
func newTestServer(t *testing.T) (http.Handler, *stubAdapter) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE devices (
			position INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL UNIQUE,
			device_name TEXT NOT NULL,
			device_type TEXT NOT NULL,
			controller_address TEXT NOT NULL,
			device_data TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	adapter := &stubAdapter{liveState: device.Data{}}
	registry := device.NewAdapterRegistry()
	if err := registry.Register("extended color light", adapter); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
	engine := device.NewEngine(device.NewSQLiteStore(db), registry)
	engine.SetLogger(logger)

	server, err := New(Deps{
		Config:  config.APIConfig{},
		Logger:  logger,
		Engine:  engine,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return server.buildRouter(), adapter
}

// doJSON performs a request with an optional JSON body and decodes the response.
func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling request body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decoding response body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func lightBody(id, name string) map[string]any {
	return map[string]any{
		"device_id":                 id,
		"device_name":               name,
		"device_type":               "extended color light",
		"device_controller_address": "http://bridge.local/api/u1/lights/1",
		"device_data":               map[string]any{"on": true, "bri": 100},
	}
}

func TestHandleCreateDevice(t *testing.T) {
	handler, _ := newTestServer(t)

	t.Run("creates and returns record with uri", func(t *testing.T) {
		rec, body := doJSON(t, handler, http.MethodPost, "/devices", lightBody("light-1", "Hall"))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
		}
		if body["uri"] != "/devices/light-1" {
			t.Errorf("uri = %v, want /devices/light-1", body["uri"])
		}
		if body["device_id"] != "light-1" {
			t.Errorf("device_id = %v, want light-1", body["device_id"])
		}
	})

	t.Run("duplicate ID returns 409", func(t *testing.T) {
		doJSON(t, handler, http.MethodPost, "/devices", lightBody("light-dup", "First"))
		rec, body := doJSON(t, handler, http.MethodPost, "/devices", lightBody("light-dup", "Second"))
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
		if body["code"] != ErrCodeConflict {
			t.Errorf("code = %v, want %q", body["code"], ErrCodeConflict)
		}
	})

	t.Run("incomplete record returns 400", func(t *testing.T) {
		incomplete := lightBody("light-bad", "No Address")
		delete(incomplete, "device_controller_address")
		rec, _ := doJSON(t, handler, http.MethodPost, "/devices", incomplete)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("malformed JSON returns 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/devices", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleListDevices(t *testing.T) {
	handler, adapter := newTestServer(t)

	for _, id := range []string{"list-1", "list-2", "list-3"} {
		rec, _ := doJSON(t, handler, http.MethodPost, "/devices", lightBody(id, id))
		if rec.Code != http.StatusOK {
			t.Fatalf("seed create %s status = %d", id, rec.Code)
		}
	}

	t.Run("returns bare ordered array with live overlay", func(t *testing.T) {
		adapter.liveState = device.Data{"bri": float64(7)}

		req := httptest.NewRequest(http.MethodGet, "/devices", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var devices []map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &devices); err != nil {
			t.Fatalf("response is not a bare array: %v (body %s)", err, rec.Body.String())
		}
		if len(devices) != 3 {
			t.Fatalf("got %d devices, want 3", len(devices))
		}
		for i, want := range []string{"list-1", "list-2", "list-3"} {
			if devices[i]["device_id"] != want {
				t.Errorf("[%d].device_id = %v, want %q", i, devices[i]["device_id"], want)
			}
		}
		data := devices[0]["device_data"].(map[string]any)
		if data["bri"] != float64(7) {
			t.Errorf("device_data.bri = %v, want live 7", data["bri"])
		}
	})
}

func TestHandleGetDevice(t *testing.T) {
	handler, adapter := newTestServer(t)
	doJSON(t, handler, http.MethodPost, "/devices", lightBody("get-1", "Hall"))

	t.Run("returns record with uri and live state", func(t *testing.T) {
		adapter.liveState = device.Data{"bri": float64(42)}

		rec, body := doJSON(t, handler, http.MethodGet, "/devices/get-1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if body["uri"] != "/devices/get-1" {
			t.Errorf("uri = %v, want /devices/get-1", body["uri"])
		}
		data := body["device_data"].(map[string]any)
		if data["bri"] != float64(42) {
			t.Errorf("device_data.bri = %v, want 42", data["bri"])
		}
	})

	t.Run("missing device returns 404", func(t *testing.T) {
		rec, body := doJSON(t, handler, http.MethodGet, "/devices/no-such", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if body["code"] != ErrCodeNotFound {
			t.Errorf("code = %v, want %q", body["code"], ErrCodeNotFound)
		}
	})
}

func TestHandleUpdateDevice(t *testing.T) {
	handler, adapter := newTestServer(t)
	doJSON(t, handler, http.MethodPost, "/devices", lightBody("up-1", "Hall"))

	t.Run("metadata patch returns updated record", func(t *testing.T) {
		rec, body := doJSON(t, handler, http.MethodPatch, "/devices/up-1", map[string]any{
			"device_name": "Hallway",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
		}
		if body["device_name"] != "Hallway" {
			t.Errorf("device_name = %v, want Hallway", body["device_name"])
		}
	})

	t.Run("unknown patch key returns 400", func(t *testing.T) {
		rec, _ := doJSON(t, handler, http.MethodPatch, "/devices/up-1", map[string]any{
			"colour": "red",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("control patch to unsupported type returns 400", func(t *testing.T) {
		exotic := lightBody("up-sensor", "Sensor")
		exotic["device_type"] = "motion sensor"
		doJSON(t, handler, http.MethodPost, "/devices", exotic)

		rec, _ := doJSON(t, handler, http.MethodPatch, "/devices/up-sensor", map[string]any{
			"device_data": map[string]any{"motion": true},
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unreachable controller returns 502", func(t *testing.T) {
		adapter.fetchErr = fmt.Errorf("%w: connection refused", device.ErrAdapterUnavailable)
		defer func() { adapter.fetchErr = nil }()

		rec, body := doJSON(t, handler, http.MethodPatch, "/devices/up-1", map[string]any{
			"device_data": map[string]any{"on": false},
		})
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rec.Code)
		}
		if body["code"] != ErrCodeBadGateway {
			t.Errorf("code = %v, want %q", body["code"], ErrCodeBadGateway)
		}
	})

	t.Run("adapter rejection returns 400", func(t *testing.T) {
		adapter.applyErr = fmt.Errorf("%w: bri out of range", device.ErrAdapterRejected)
		defer func() { adapter.applyErr = nil }()

		rec, _ := doJSON(t, handler, http.MethodPatch, "/devices/up-1", map[string]any{
			"device_data": map[string]any{"bri": 9000},
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("missing device returns 404", func(t *testing.T) {
		rec, _ := doJSON(t, handler, http.MethodPatch, "/devices/no-such", map[string]any{
			"device_name": "x",
		})
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestHandleDeleteDevice(t *testing.T) {
	handler, _ := newTestServer(t)
	doJSON(t, handler, http.MethodPost, "/devices", lightBody("del-1", "Doomed"))

	t.Run("deletes and echoes the record", func(t *testing.T) {
		rec, body := doJSON(t, handler, http.MethodDelete, "/devices/del-1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if body["device_id"] != "del-1" {
			t.Errorf("device_id = %v, want del-1", body["device_id"])
		}

		rec, _ = doJSON(t, handler, http.MethodGet, "/devices/del-1", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status after delete = %d, want 404", rec.Code)
		}
	})

	t.Run("missing device returns 404", func(t *testing.T) {
		rec, _ := doJSON(t, handler, http.MethodDelete, "/devices/no-such", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestHandleHealth(t *testing.T) {
	handler, _ := newTestServer(t)

	rec, body := doJSON(t, handler, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}
