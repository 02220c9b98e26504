// Command relay-server runs the rendezvous and relay HTTP service:
// session matching by transfer code, signaling forwarding, and the
// bandwidth-limited binary relay fallback (§4.5).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantarax/relay/internal/observability"
	"github.com/quantarax/relay/internal/rendezvous"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	maxSessions := flag.Int("max-sessions", 1000, "maximum concurrent sessions")
	sessionTTL := flag.Duration("session-ttl", 10*time.Minute, "session expiry from creation")
	relayRate := flag.Int64("relay-rate-limit", 10*1024*1024, "relay forwarding rate limit, bytes/second")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	metricsAddr := flag.String("metrics-addr", "", "address for the /metrics endpoint, empty disables it")
	flag.Parse()

	logger := observability.NewLogger("relay-server", version(), os.Stdout)

	if shutdown, err := observability.InitTracing(context.Background(), "relay-server"); err == nil {
		defer shutdown(context.Background())
	} else {
		logger.Warn(fmt.Sprintf("tracing disabled: %v", err))
	}

	cfg := rendezvous.Config{
		MaxSessions:    *maxSessions,
		SessionTTL:     *sessionTTL,
		RelayRateBytes: float64(*relayRate),
	}
	_ = *logLevel // accepted but not applied: NewLogger has no level gate, so every level is written

	server := rendezvous.NewServer(cfg, logger)

	metrics := observability.NewMetrics()
	server.SetMetrics(metrics)

	stop := make(chan struct{})
	server.StartCleanup(stop)

	httpServer := &http.Server{
		Addr:         *addr,
		Handler:      server.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
	}

	if *metricsAddr != "" {
		diagnostics := server.Diagnostics(version())
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.HandleFunc("/internal/health", diagnostics.Handler())
			logger.Info(fmt.Sprintf("metrics listening on %s", *metricsAddr))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error(err, "metrics server exited")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info(fmt.Sprintf("relay-server listening on %s (max_sessions=%d, session_ttl=%s)", *addr, *maxSessions, *sessionTTL))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "http server exited")
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received")
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(err, "graceful shutdown failed")
	}
}

// version is overridden at build time via -ldflags.
var buildVersion = "dev"

func version() string { return buildVersion }
