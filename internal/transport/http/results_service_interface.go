package http

import (
	"context"

	"github.com/ONEcampaign/toughest-places-index/internal/services"
)

// ResultsServiceInterface is the part of the index service the results
// routes read from.
type ResultsServiceInterface interface {
	Latest() (*services.RunResult, error)
	Names() map[string]string
}

// DiagnosticsServiceInterface runs the data-quality audits.
type DiagnosticsServiceInterface interface {
	Diagnose(ctx context.Context, req services.DiagnosticsRequest) (*services.DiagnosticsReport, error)
}

// Ensure the index service satisfies both.
var (
	_ ResultsServiceInterface     = (*services.IndexService)(nil)
	_ DiagnosticsServiceInterface = (*services.IndexService)(nil)
)
