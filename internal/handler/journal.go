package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"nookipedia-gateway/internal/config"
	"nookipedia-gateway/internal/journal"
)

// JournalHandler lists recent relay journal entries.
type JournalHandler struct {
	journal  journal.Store
	maxLimit int
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(j journal.Store, cfg *config.Config) *JournalHandler {
	return &JournalHandler{journal: j, maxLimit: cfg.Journal.RecentLimit}
}

// Recent serves GET /proxy/journal?limit=N. N defaults to, and is capped at,
// journal.recent_limit.
func (h *JournalHandler) Recent(c echo.Context) error {
	if !h.journal.Enabled() {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "relay journal is disabled",
		})
	}

	limit := h.maxLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
		}
		limit = min(n, h.maxLimit)
	}

	entries, err := h.journal.Recent(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "journal unavailable",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries": entries,
	})
}
