// Package api implements the HTTP API and WebSocket server for the scooter
// telemetry services.
//
// This package provides:
//   - Health, system and Prometheus endpoints for both services
//   - The bridge status endpoint backed by the orchestrator
//   - Paginated history queries over the stored telemetry
//   - WebSocket hub that relays ingested snapshots on the "telemetry" channel
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Routes
//
// Routes are mounted only for the dependencies supplied in Deps:
//
//	GET /api/v1/health             always
//	GET /api/v1/system             always
//	GET /metrics                   always
//	GET /api/v1/state              Deps.Bridge
//	GET /api/v1/data               Deps.History (joined rows)
//	GET /api/v1/data/general       Deps.History
//	GET /api/v1/data/battery       Deps.History
//	GET /api/v1/data/location      Deps.History
//	GET /ws                        Deps.Hub
//
// History endpoints accept start_time, end_time, order, limit and offset.
// A start_time after end_time is answered with 400.
//
// The API is read-only and unauthenticated; bind it to a trusted network.
package api
