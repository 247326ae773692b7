// Package app wires one process of the index: configuration, logging,
// OpenTelemetry with a Prometheus registry, the index and health services,
// and the HTTP router and server.
//
// The CLI builds an Application from a loaded configuration and calls one
// of RunPipeline, RunStability or Serve, then Stop. Initialization errors
// are returned to the caller; the package never exits the process.
package app
