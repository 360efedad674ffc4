package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-core/internal/control"
	"github.com/nerrad567/smarthome-core/internal/device"
)

// configurationRequest is the wire form of device.Configuration. Relays are
// decoded as a list so a wrong slot count can be rejected.
type configurationRequest struct {
	Sensors []device.Sensor `json:"sensors"`
	Relays  []device.Relay  `json:"relays"`
}

// createDeviceRequest is the request body for POST /devices.
type createDeviceRequest struct {
	DeviceID      string                `json:"deviceId"`
	Name          string                `json:"name"`
	Type          device.Type           `json:"type"`
	Location      string                `json:"location"`
	Configuration *configurationRequest `json:"configuration"`
}

// updateDeviceRequest is the request body for PUT /devices/{id}.
// Absent fields keep their stored value; deviceId cannot change.
type updateDeviceRequest struct {
	Name          *string      `json:"name"`
	Type          *device.Type `json:"type"`
	Location      *string      `json:"location"`
	Configuration *struct {
		Sensors *[]device.Sensor `json:"sensors"`
		Relays  *[]device.Relay  `json:"relays"`
	} `json:"configuration"`
}

// handleListDevices returns the caller's devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.ListByOwner(r.Context(), ownerID(r))
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns one of the caller's devices.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadOwnedDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": dev})
}

// handleCreateDevice registers a device for the caller.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev := &device.Device{
		DeviceID: req.DeviceID,
		Name:     req.Name,
		Type:     req.Type,
		Location: req.Location,
		Owner:    ownerID(r),
		Configuration: device.Configuration{
			Sensors: []device.Sensor{},
			Relays:  device.DefaultRelays(),
		},
	}
	if req.Configuration != nil {
		relays, err := device.RelaysFromList(req.Configuration.Relays)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		dev.Configuration.Relays = relays
		if req.Configuration.Sensors != nil {
			dev.Configuration.Sensors = req.Configuration.Sensors
		}
	}

	if err := device.ValidateDevice(dev); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := s.devices.Create(r.Context(), dev); err != nil {
		if errors.Is(err, device.ErrDeviceExists) {
			writeBadRequest(w, "Device already exists")
			return
		}
		s.logger.Error("creating device", "device_id", dev.DeviceID, "error", err)
		writeInternalError(w, "failed to create device")
		return
	}

	s.logger.Info("device registered", "device_id", dev.DeviceID, "owner", dev.Owner)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Device added successfully",
		"device":  dev,
	})
}

// handleUpdateDevice changes name, type, location or configuration of one
// of the caller's devices.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, ok := s.loadOwnedDevice(w, r)
	if !ok {
		return
	}

	if req.Name != nil {
		dev.Name = *req.Name
	}
	if req.Type != nil {
		dev.Type = *req.Type
	}
	if req.Location != nil {
		dev.Location = *req.Location
	}
	if cfg := req.Configuration; cfg != nil {
		if cfg.Sensors != nil {
			dev.Configuration.Sensors = *cfg.Sensors
		}
		if cfg.Relays != nil {
			relays, err := device.RelaysFromList(*cfg.Relays)
			if err != nil {
				writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
				return
			}
			dev.Configuration.Relays = relays
		}
	}

	if err := device.ValidateDevice(dev); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := s.devices.Update(r.Context(), dev); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "Device not found")
			return
		}
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("updating device", "device_id", dev.DeviceID, "error", err)
		writeInternalError(w, "failed to update device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Device updated successfully",
		"device":  dev,
	})
}

// handleDeleteDevice removes one of the caller's devices. Its telemetry is kept.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.devices.Delete(r.Context(), id, ownerID(r)); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "Device not found")
			return
		}
		s.logger.Error("deleting device", "id", id, "error", err)
		writeInternalError(w, "failed to delete device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Device deleted successfully"})
}

// handleControlDevice publishes a relay command for one of the caller's devices.
func (s *Server) handleControlDevice(w http.ResponseWriter, r *http.Request) {
	// An empty body re-sends the stored state.
	var intent control.ControlIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "relay values must be booleans")
		return
	}

	cmd, err := s.dispatcher.DispatchControl(r.Context(), chi.URLParam(r, "id"), ownerID(r), intent)
	if err != nil {
		if !errors.Is(err, control.ErrNotFound) {
			s.logger.Warn("control request failed", "id", chi.URLParam(r, "id"), "error", err)
		}
		writeControlError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Control command sent successfully",
		"controlCommand": cmd,
	})
}

// handleDeviceStatus returns liveness and relay state of one of the caller's devices.
func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.dispatcher.GetStatus(r.Context(), chi.URLParam(r, "id"), ownerID(r))
	if err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// loadOwnedDevice fetches the {id} device for the caller, writing the error
// response itself when it returns false.
func (s *Server) loadOwnedDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	id := chi.URLParam(r, "id")

	dev, err := s.devices.GetByIDAndOwner(r.Context(), id, ownerID(r))
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "Device not found")
			return nil, false
		}
		s.logger.Error("loading device", "id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return nil, false
	}
	return dev, true
}
