package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"nookipedia-gateway/internal/config"
	"nookipedia-gateway/internal/journal"
	"nookipedia-gateway/internal/metrics"
	"nookipedia-gateway/internal/model"
	"nookipedia-gateway/internal/service"
)

// ProxyErrorTitle is the fixed title of every failure envelope.
const ProxyErrorTitle = "Proxy Error"

// ProxyHandler relays requests under the mount prefix to the upstream API.
type ProxyHandler struct {
	service *service.GatewayService
	journal journal.Store
	metrics *metrics.Metrics
	mount   string
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
func NewProxyHandler(svc *service.GatewayService, j journal.Store, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		journal: j,
		metrics: m,
		mount:   cfg.Nookipedia.Mount,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle relays the request and writes back the upstream status, content type
// and body. Failures become a 500 with the proxy error envelope.
func (h *ProxyHandler) Handle(c echo.Context) error {
	start := time.Now()
	req := c.Request()
	suffix := h.suffix(req)

	resp, err := h.service.Relay(&model.RelayRequest{
		Ctx:    req.Context(),
		Suffix: suffix,
	})
	if err != nil {
		writeErr := h.fail(c, suffix, err)
		h.record(c, journal.Entry{
			Suffix:   suffix,
			Status:   http.StatusInternalServerError,
			Outcome:  journal.OutcomeFailed,
			FailKind: service.Kind(err),
		}, start)
		return writeErr
	}

	writeErr := c.Blob(resp.StatusCode, resp.ContentType, resp.Body)
	h.record(c, journal.Entry{
		Suffix:  suffix,
		Status:  resp.StatusCode,
		Outcome: journal.OutcomeRelayed,
		Bytes:   len(resp.Body),
	}, start)
	return writeErr
}

// suffix returns the raw request target after the mount prefix. The unparsed
// RequestURI is preferred so escapes and query order survive untouched.
func (h *ProxyHandler) suffix(req *http.Request) string {
	raw := req.RequestURI
	if !strings.HasPrefix(raw, "/") {
		// Empty, or absolute-form ("http://host/...") request target.
		raw = req.URL.RequestURI()
	}
	if rest, ok := strings.CutPrefix(raw, h.mount); ok {
		return rest
	}
	return strings.TrimPrefix(req.URL.RequestURI(), h.mount)
}

func (h *ProxyHandler) fail(c echo.Context, suffix string, err error) error {
	kind := service.Kind(err)
	h.logger.Warn("relay failed",
		"err", err,
		"kind", kind,
		"suffix", suffix,
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
	)
	if h.metrics != nil {
		h.metrics.RelayFailures.WithLabelValues(kind).Inc()
	}
	return c.JSON(http.StatusInternalServerError, model.ErrorEnvelope{
		Title:   ProxyErrorTitle,
		Details: err.Error(),
	})
}

// record writes a journal entry. It runs after the response is written and
// never affects it.
func (h *ProxyHandler) record(c echo.Context, e journal.Entry, start time.Time) {
	if !h.journal.Enabled() {
		return
	}
	e.RequestID = c.Response().Header().Get(echo.HeaderXRequestID)
	e.Method = c.Request().Method
	e.DurationMS = time.Since(start).Milliseconds()

	ctx := context.WithoutCancel(c.Request().Context())
	if err := h.journal.Record(ctx, e); err != nil {
		h.logger.Warn("journal record failed", "err", err, "suffix", e.Suffix)
	}
}
