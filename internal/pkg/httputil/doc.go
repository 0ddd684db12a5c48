// Package httputil contains small helpers for writing JSON HTTP responses
// with a consistent error envelope. Handlers should never write raw JSON
// or status codes directly; everything goes through these helpers so the
// API surface stays uniform.
package httputil
