package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/telemetry"
)

// handleLatestSensorData returns the newest reading of each of the caller's devices.
func (s *Server) handleLatestSensorData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devices, err := s.devices.ListByOwner(ctx, ownerID(r))
	if err != nil {
		s.logger.Error("listing devices for latest telemetry", "error", err)
		writeInternalError(w, "failed to load sensor data")
		return
	}

	ids := make([]string, len(devices))
	for i, d := range devices {
		ids[i] = d.DeviceID
	}

	records, err := s.telemetry.Latest(ctx, ids)
	if err != nil {
		s.logger.Error("loading latest telemetry", "error", err)
		writeInternalError(w, "failed to load sensor data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sensorData": records})
}

// handleDeviceSensorData returns one device's readings, newest first.
//
// Query parameters:
//   - limit: page size (default 50, capped at 1000)
//   - startDate, endDate: inclusive bounds, RFC 3339 or YYYY-MM-DD
func (s *Server) handleDeviceSensorData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := chi.URLParam(r, "deviceId")

	q, err := parseHistoryQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	dev, err := s.devices.GetByDeviceID(ctx, deviceID)
	if err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		s.logger.Error("loading device for telemetry", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to load sensor data")
		return
	}
	if dev == nil || dev.Owner != ownerID(r) {
		writeNotFound(w, "Device not found")
		return
	}

	records, err := s.telemetry.ListByDevice(ctx, deviceID, q)
	if err != nil {
		s.logger.Error("loading telemetry", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to load sensor data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sensorData": records})
}

func parseHistoryQuery(r *http.Request) (telemetry.Query, error) {
	var q telemetry.Query
	values := r.URL.Query()

	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, fmt.Errorf("limit must be a positive integer")
		}
		q.Limit = n
	}

	var err error
	if q.Start, err = parseDateParam(values.Get("startDate"), false); err != nil {
		return q, fmt.Errorf("startDate: %w", err)
	}
	if q.End, err = parseDateParam(values.Get("endDate"), true); err != nil {
		return q, fmt.Errorf("endDate: %w", err)
	}
	if !q.Start.IsZero() && !q.End.IsZero() && q.End.Before(q.Start) {
		return q, fmt.Errorf("endDate is before startDate")
	}
	return q, nil
}

// parseDateParam accepts RFC 3339 or a bare date. A bare end date covers
// the whole day.
func parseDateParam(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return t, nil
}
