// Package api implements the HTTP REST API and WebSocket server.
//
// This package provides:
//   - REST endpoints for entity state, commands, presets and mode sets
//   - Per-unit state history from the SQLite history table
//   - WebSocket hub relaying entity and controller state changes
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/metrics
//	GET  /api/v1/entities[?kind=unit|group|all]
//	GET  /api/v1/entities/{id}
//	GET  /api/v1/entities/{id}/history[?limit=N]
//	POST /api/v1/entities/{id}/commands
//	POST /api/v1/entities/{id}/preset
//	PUT  /api/v1/entities/{id}/modes
//	GET  /api/v1/mode-sets
//	PUT  /api/v1/mode-sets/active
//	GET  /api/v1/presets
//	GET  /api/v1/controller
//	POST /api/v1/controller/refresh
//	GET  /api/v1/ws
//
// Commands go through the same hvac.Service as MQTT commands, so validation
// and error classification match the MQTT acknowledgements. A dispatch in
// which only some member writes failed returns 207 with per-unit results.
//
// # WebSocket
//
// Clients send {"type":"subscribe","payload":{"channels":["entity.state_changed"]}}
// and then receive one event per published entity state. The hub is
// registered as a bridge listener, so it sees exactly what MQTT sees.
package api
