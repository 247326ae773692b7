// Package shared holds helpers used across the index packages that do not
// belong to any one of them.
//
// The testutil subpackage provides a capturing slog handler, so tests can
// assert on the warnings the pipeline emits for routine data-quality
// conditions, and small CSV fixtures shared by the loader, service and
// HTTP tests. It depends only on the standard library so any package can
// use it from its tests without creating an import cycle.
package shared
