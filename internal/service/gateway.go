// Package service implements the core forwarding logic.
package service

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"nookipedia-gateway/internal/client"
	"nookipedia-gateway/internal/config"
	"nookipedia-gateway/internal/model"
)

// FallbackContentType is sent when the upstream omits Content-Type.
const FallbackContentType = "application/json"

// KeyFunc returns the upstream API key. It is called once per relayed request.
type KeyFunc func() string

// NewKeyFunc reads the environment variable named by nookipedia.api_key_env on
// every call, falling back to the static nookipedia.api_key.
func NewKeyFunc(cfg *config.Config) KeyFunc {
	env := cfg.Nookipedia.APIKeyEnv
	static := cfg.Nookipedia.APIKey
	return func() string {
		if v := os.Getenv(env); strings.TrimSpace(v) != "" {
			return v
		}
		return static
	}
}

// GatewayService relays mount-relative requests to the upstream API.
type GatewayService struct {
	client        *client.UpstreamClient
	key           KeyFunc
	baseURL       string
	acceptVersion string
	logger        *slog.Logger
}

// NewGatewayService creates a GatewayService.
func NewGatewayService(c *client.UpstreamClient, cfg *config.Config, key KeyFunc, logger *slog.Logger) *GatewayService {
	return &GatewayService{
		client:        c,
		key:           key,
		baseURL:       strings.TrimRight(cfg.Upstream.BaseURL, "/"),
		acceptVersion: cfg.Nookipedia.AcceptVersion,
		logger:        logger.With("component", "gateway_service"),
	}
}

// Relay forwards the request upstream and returns the allow-listed response.
// Upstream error statuses are results, not errors. The returned error is a
// *ConfigurationError or a *TransportError.
func (s *GatewayService) Relay(rr *model.RelayRequest) (*model.RelayResponse, error) {
	apiKey := strings.TrimSpace(s.key())
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	target := s.TargetURL(rr.Suffix)

	s.logger.Debug("relaying request", "suffix", rr.Suffix)

	resp, err := s.client.Get(rr.Ctx, target, s.upstreamHeaders(apiKey))
	if err != nil {
		return nil, &TransportError{Err: redact(err, apiKey)}
	}

	if resp.ContentType == "" {
		resp.ContentType = FallbackContentType
	}
	return resp, nil
}

// TargetURL joins the upstream base and the suffix without re-encoding.
func (s *GatewayService) TargetURL(suffix string) string {
	return s.baseURL + suffix
}

// upstreamHeaders is the complete header set sent upstream.
func (s *GatewayService) upstreamHeaders(apiKey string) http.Header {
	h := make(http.Header, 4)
	h.Set("Accept", "application/json")
	h.Set("X-API-KEY", apiKey)
	h.Set("Accept-Version", s.acceptVersion)
	// An empty User-Agent stops net/http from adding its default one.
	h["User-Agent"] = []string{""}
	return h
}

// redactedError hides the key in the message of an error while keeping the
// chain intact for errors.Is/As.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, apiKey string) error {
	msg := err.Error()
	if !strings.Contains(msg, apiKey) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(msg, apiKey, "[REDACTED]"), err: err}
}
