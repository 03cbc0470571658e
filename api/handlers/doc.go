// Package handlers implements the HTTP surface: chain and workflow
// execution (buffered and SSE streaming), the permission flow, memory
// status, and health. Handlers return the shared Response envelope and map
// engine error codes onto HTTP statuses.
package handlers
