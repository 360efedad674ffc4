package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware())
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.With(requirePermission(auth.PermSystemAdmin)).Get("/metrics", s.handleMetrics)

			r.Route("/devices", func(r chi.Router) {
				r.With(requirePermission(auth.PermDeviceRead)).Get("/", s.handleListDevices)
				r.With(requirePermission(auth.PermDeviceConfigure)).Post("/", s.handleCreateDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.With(requirePermission(auth.PermDeviceRead)).Get("/", s.handleGetDevice)
					r.With(requirePermission(auth.PermDeviceConfigure)).Put("/", s.handleUpdateDevice)
					r.With(requirePermission(auth.PermDeviceConfigure)).Delete("/", s.handleDeleteDevice)
					r.With(requirePermission(auth.PermDeviceOperate)).Post("/control", s.handleControlDevice)
					r.With(requirePermission(auth.PermDeviceRead)).Get("/status", s.handleDeviceStatus)
				})
			})

			r.Route("/sensors", func(r chi.Router) {
				r.Use(requirePermission(auth.PermDeviceRead))
				r.Get("/latest", s.handleLatestSensorData)
				r.Get("/device/{deviceId}", s.handleDeviceSensorData)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	mqttStatus := "disabled"
	if s.mqtt != nil {
		switch {
		case s.mqtt.Ready():
			mqttStatus = "connected"
		case s.mqtt.IsConnected():
			mqttStatus = "restoring"
		default:
			mqttStatus = "disconnected"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"mqtt":    mqttStatus,
	})
}
