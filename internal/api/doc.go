// Package api adapts HTTP and WebSocket clients to the task service. It
// decodes and validates requests, resolves the verified actor, maps domain
// errors to status codes, and streams committed task events to sockets.
package api
