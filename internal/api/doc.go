// Package api implements the HTTP REST API and WebSocket server.
//
// This package provides:
//   - Owner-scoped device CRUD, relay control and liveness status
//   - Read access to stored telemetry
//   - A WebSocket hub that pushes every routed bus message to connected clients
//   - Bearer JWT verification with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Security
//
// Every route except /health requires a bearer token. The token subject is
// the owner id; a device belonging to someone else is reported as not found.
// WebSocket connections use single-use tickets so the JWT never appears in a URL.
//
// # Graceful Degradation
//
// The server operates without a connected broker: reads and WebSocket
// sessions keep working and control requests fail with a publish error.
package api
