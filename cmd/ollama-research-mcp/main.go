// Command ollama-research-mcp exposes a local Ollama host as a set of MCP
// tools over stdio, centered on a multi-model research orchestrator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/triepod-ai/ollama-research-mcp/internal/envconfig"
	"github.com/triepod-ai/ollama-research-mcp/internal/health"
	"github.com/triepod-ai/ollama-research-mcp/internal/mcpserver"
	"github.com/triepod-ai/ollama-research-mcp/internal/observe"
	"github.com/triepod-ai/ollama-research-mcp/internal/ollamaclient"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/capability"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/executor"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/history"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/orchestrator"
	"github.com/triepod-ai/ollama-research-mcp/internal/research/selector"
)

func main() {
	os.Exit(run())
}

func run() int {
	hostFlag := flag.String("ollama-host", "", "base URL of the upstream Ollama host (overrides OLLAMA_HOST)")
	flag.Parse()

	cfg, err := envconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ollama-research-mcp: %v\n", err)
		return 1
	}
	if *hostFlag != "" {
		cfg.OllamaHost = *hostFlag
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: "0.1.0"})
	if err != nil {
		slog.Error("failed to initialize telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown error", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()

	upstream := ollamaclient.New(cfg.OllamaHost)
	registry := capability.New(upstream)
	hist := history.New()
	sel := selector.New(hist)
	exec := executor.New(upstream, hist)
	orch := orchestrator.New(registry, sel, exec, orchestrator.WithMetrics(metrics))

	slog.Info("ollama-research-mcp starting",
		"ollama_host", cfg.OllamaHost,
		"metrics_addr", cfg.MetricsAddr,
		"log_level", cfg.LogLevel,
	)

	var httpServer *http.Server
	if cfg.MetricsAddr != "" {
		httpServer = buildHTTPServer(cfg.MetricsAddr, metrics, orch)
		go func() {
			slog.Info("health/metrics server listening", "addr", cfg.MetricsAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("health/metrics server error", "err", err)
			}
		}()
	}

	server := mcpserver.New(orch, registry, upstream, cfg.DefaultTimeout)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx, &mcp.StdioTransport{})
	}()

	slog.Info("mcp server ready on stdio")

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mcp server error", "err", err)
			stopHTTP(httpServer)
			return 1
		}
	}

	stopHTTP(httpServer)
	slog.Info("goodbye")
	return 0
}

func stopHTTP(s *http.Server) {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.Error("health/metrics server shutdown error", "err", err)
	}
}

func buildHTTPServer(addr string, metrics *observe.Metrics, orch *orchestrator.Orchestrator) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	checker := health.New(health.Checker{
		Name: "ollama",
		Check: func(ctx context.Context) error {
			status := orch.HealthCheck(ctx)
			if !status.Healthy {
				return errors.New(status.Message)
			}
			return nil
		},
	})
	checker.Register(mux)

	return &http.Server{
		Addr:         addr,
		Handler:      observe.Middleware(metrics)(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
