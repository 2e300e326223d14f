package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"nookipedia-gateway/internal/client"
	"nookipedia-gateway/internal/config"
	"nookipedia-gateway/internal/handler"
	"nookipedia-gateway/internal/journal"
	"nookipedia-gateway/internal/metrics"
	"nookipedia-gateway/internal/middleware"
	"nookipedia-gateway/internal/server"
	"nookipedia-gateway/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("nookipedia-gateway"),
		kong.Description("Key-injecting gateway for the Nookipedia API."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			newMetrics,
			newEcho,
			journal.New,
			service.NewKeyFunc,
			client.NewUpstreamClient,
			service.NewGatewayService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
			handler.NewJournalHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, warnMissingKey, initUpstream, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

// newMetrics always builds the collectors; they are only exposed and fed by
// middleware when metrics are enabled.
func newMetrics(cfg *config.Config) *metrics.Metrics {
	return metrics.New(cfg.Nookipedia.Mount)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Upstream.TimeoutSeconds+30) * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

// warnMissingKey reports a missing key at startup. The gateway still starts;
// requests fail with the proxy error envelope until a key is provided.
func warnMissingKey(cfg *config.Config, key service.KeyFunc, logger *slog.Logger) {
	if strings.TrimSpace(key()) == "" {
		logger.Warn("no Nookipedia API key configured; relays will fail until one is set",
			"env", cfg.Nookipedia.APIKeyEnv,
		)
	}
}

func initUpstream(lc fx.Lifecycle, c *client.UpstreamClient) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.EnsureInitialized()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ln, err := server.Listen(&cfg.Server)
			if err != nil {
				return err
			}
			logger.Info("starting server",
				"addr", ln.Addr().String(),
				"mount", cfg.Nookipedia.Mount,
				"upstream", cfg.Upstream.BaseURL,
				"proxy_protocol", cfg.Server.ProxyProtocol,
			)
			e.Listener = ln
			go func() {
				if err := e.Start(""); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
