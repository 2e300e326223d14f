// Package client provides the upstream HTTP client for the Nookipedia API.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"

	"nookipedia-gateway/internal/config"
	"nookipedia-gateway/internal/metrics"
	"nookipedia-gateway/internal/model"
)

// ErrResponseTooLarge is returned when an upstream body exceeds upstream.max_response_size.
var ErrResponseTooLarge = errors.New("upstream response exceeds size limit")

// UpstreamClient sends requests to the upstream Nookipedia API.
type UpstreamClient struct {
	cfg     config.UpstreamConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	once       sync.Once
	httpClient *http.Client
	maxBody    uint64
}

// NewUpstreamClient creates an UpstreamClient. The transport is not built until
// EnsureInitialized is called, either at startup or by the first request.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	return &UpstreamClient{
		cfg:     cfg.Upstream,
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// EnsureInitialized builds the pooled transport. It is safe to call any number
// of times from any goroutine; only the first call does work.
func (c *UpstreamClient) EnsureInitialized() {
	c.once.Do(func() {
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        c.cfg.IdleConnections,
			MaxIdleConnsPerHost: c.cfg.IdleConnections,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		}
		c.httpClient = &http.Client{
			Transport: transport,
			Timeout:   time.Duration(c.cfg.TimeoutSeconds) * time.Second,
		}
		c.maxBody = c.cfg.MaxResponseBytes()
		c.logger.Debug("upstream client initialized",
			"timeout_seconds", c.cfg.TimeoutSeconds,
			"idle_connections", c.cfg.IdleConnections,
			"max_response_size", c.cfg.MaxResponseSize,
		)
	})
}

// Get issues a GET to target with exactly the given headers and buffers the
// whole response body. Any status code is a successful result.
// The provided context controls the lifetime of the upstream request.
func (c *UpstreamClient) Get(ctx context.Context, target string, header http.Header) (*model.RelayResponse, error) {
	c.EnsureInitialized()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	c.logger.Debug("upstream request", "path", req.URL.Path)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(start, "")
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := c.readBody(resp.Body)
	c.observe(start, strconv.Itoa(resp.StatusCode))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("upstream response",
		"status", resp.StatusCode,
		"size", humanize.Bytes(uint64(len(body))),
	)

	return &model.RelayResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *UpstreamClient) readBody(r io.Reader) ([]byte, error) {
	if c.maxBody == 0 || c.maxBody >= math.MaxInt64 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upstream body: %w", err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, int64(c.maxBody)+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if uint64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w (%s)", ErrResponseTooLarge, humanize.Bytes(c.maxBody))
	}
	return body, nil
}

// observe records upstream latency and, when a response arrived, its status.
func (c *UpstreamClient) observe(start time.Time, status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(http.MethodGet).Observe(time.Since(start).Seconds())
	if status != "" {
		c.metrics.UpstreamResponses.WithLabelValues(http.MethodGet, status).Inc()
	}
}
