package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devgrid/devicehub/internal/device"
)

// deviceResponse is a device record extended with its canonical URI.
// Clients store the uri and follow it verbatim for subsequent requests.
type deviceResponse struct {
	device.Device
	URI string `json:"uri"`
}

func newDeviceResponse(d *device.Device) deviceResponse {
	return deviceResponse{
		Device: *d,
		URI:    "/devices/" + d.ID,
	}
}

// handleListDevices returns every device in insertion order, each with
// live state reconciled onto its stored record.
//
// The response is a bare JSON array; order is creation order and survives
// updates to any record.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.engine.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("device listing failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, devices)
}

// handleGetDevice returns a single device by ID with live state reconciled.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.engine.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("device fetch failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, newDeviceResponse(dev))
}

// handleCreateDevice registers a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	created, err := s.engine.CreateDevice(r.Context(), &dev)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrExists):
			writeConflict(w, "device_id already registered")
		case errors.Is(err, device.ErrInvalidDevice):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("device create failed", "error", err)
			writeInternalError(w, "failed to create device")
		}
		return
	}

	s.announceDeviceEvent(EventDeviceCreated, created)
	writeJSON(w, http.StatusOK, newDeviceResponse(created))
}

// handleUpdateDevice applies a partial update to a device.
//
// Metadata fields are replaced wholesale; device_data keys are dispatched
// to the device's controller adapter before being persisted. The update is
// all-or-nothing: any rejected field or failed dispatch leaves the stored
// record untouched.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	updated, err := s.engine.UpdateDevice(r.Context(), id, patch)
	if err != nil {
		s.writeUpdateError(w, id, err)
		return
	}

	s.announceDeviceEvent(EventDeviceUpdated, updated)
	writeJSON(w, http.StatusOK, newDeviceResponse(updated))
}

// writeUpdateError maps update failures to HTTP status codes.
func (s *Server) writeUpdateError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, device.ErrNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrExists):
		writeConflict(w, "device_id already registered")
	case errors.Is(err, device.ErrInvalidAttributes),
		errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrUnsupportedType),
		errors.Is(err, device.ErrAdapterRejected):
		writeBadRequest(w, err.Error())
	case errors.Is(err, device.ErrAdapterUnavailable):
		writeBadGateway(w, err.Error())
	default:
		s.logger.Error("device update failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to update device")
	}
}

// handleDeleteDevice removes a device and echoes the removed record.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, err := s.engine.DeleteDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("device delete failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to delete device")
		return
	}

	s.announceDeviceEvent(EventDeviceDeleted, removed)
	writeJSON(w, http.StatusOK, *removed)
}
