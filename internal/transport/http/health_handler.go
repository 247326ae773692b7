package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/ONEcampaign/toughest-places-index/internal/services"
)

// HealthHandler serves the probes used by orchestrators and the version
// endpoint.
type HealthHandler struct {
	service *services.HealthService
	logger  *slog.Logger
}

func NewHealthHandler(service *services.HealthService, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{service: service, logger: logger.With("handler", "health")}
}

// HealthCheck is GET /healthz.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.HealthCheck(r.Context()))
}

// ReadinessCheck is GET /healthz/ready. Any failed probe turns it 503.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	st := h.service.ReadinessCheck(r.Context())
	if st.Status != "ready" {
		h.logger.DebugContext(r.Context(), "not ready", "services", st.Services)
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, st)
}

// LivenessCheck is GET /healthz/live.
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.LivenessCheck(r.Context()))
}

// Version is GET /version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version())
}
