// Package handler implements the HTTP control surface for topomap.
//
// # Endpoints
//
//	POST /start_scan?mode=single|continuous  start scanning (idempotent)
//	POST /stop_scan                           cooperative stop, bounded wait
//	POST /scan_host                           trace one host, body {"ip": "..."}
//	GET  /nodes                               registry snapshot
//	GET  /nodes/{ip}                          single node
//	GET  /graph                               snapshot as a visualization graph
//	GET  /network-summary                     {"description": "..."}
//	GET  /status                              orchestrator state and last cycle
//	GET  /export/{format}                     json, yaml or ansible-inventory
//	GET  /events                              SSE stream of scan events
//	GET  /metrics                             Prometheus metrics
//
// Scan control endpoints always answer 200 with a message; starting a scan
// that is already running is not an error.
//
// # Response Format
//
// Success responses return JSON. Errors return {error, code, details}, with
// the status derived from the error code: VALIDATION is 400, NOT_FOUND is 404
// and anything unexpected is 500.
package handler
