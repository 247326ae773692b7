// Package http serves the latest index results over a read-only JSON API.
//
// Handlers stay thin: they validate query parameters, call the index
// service and render the result. Failures are answered with RFC 7807
// problem details through the shared error handler.
//
// Routes:
//
//	GET /healthz                      liveness summary
//	GET /healthz/ready                503 until a run has produced results
//	GET /healthz/live                 runtime information
//	GET /version                      build information
//	GET /metrics                      Prometheus exposition
//	GET /api/v1/scores                ranked scores, ?limit=&countries=
//	GET /api/v1/indicators            polarity-corrected indicator table
//	GET /api/v1/diagnostics/{check}   collinearity, missing, zeros, outliers or pca
package http
