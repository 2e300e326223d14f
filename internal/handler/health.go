package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"nookipedia-gateway/internal/config"
	"nookipedia-gateway/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	key     service.KeyFunc
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, key service.KeyFunc, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, key: key, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns gateway status information. The key itself is never included,
// only whether one is currently available.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":             "ok",
		"version":            string(h.version),
		"upstream_url":       h.cfg.Upstream.BaseURL,
		"mount":              h.cfg.Nookipedia.Mount,
		"accept_version":     h.cfg.Nookipedia.AcceptVersion,
		"api_key_configured": strings.TrimSpace(h.key()) != "",
	})
}
