package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jfehre/countdart/panel/internal/backend"
	"github.com/jfehre/countdart/panel/internal/config"
	"github.com/jfehre/countdart/panel/internal/logger"
	"github.com/jfehre/countdart/panel/internal/metrics"
	"github.com/jfehre/countdart/panel/internal/panel"
)

var (
	configPath  = flag.String("config", "", "TOML config file")
	httpAddr    = flag.String("http", "", "HTTP server address")
	backendURL  = flag.String("backend", "", "countdart API base URL")
	pprofAddr   = flag.String("pprof", "", "pprof server address (disabled when empty)")
	recordPath  = flag.String("record-path", "", "Recording output path")
	maxClients  = flag.Int("max-clients", -1, "Maximum relay clients")
	stunServers = flag.String("stun", "", "STUN server URLs (comma-separated)")
	logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, cfg.LogColor)

	client, err := backend.NewClient(cfg.BackendURL, 0)
	if err != nil {
		log.Fatalf("Invalid backend URL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := panel.NewServer(cfg, client, metrics.New())
	srv.Start(ctx)

	logger.Info("Main", "Control panel listening on %s", cfg.Addr)
	logger.Info("Main", "Backend: %s", client.BaseURL())
	logger.Info("Main", "Log level: %s", level)

	if *pprofAddr != "" {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				logger.Error("Main", "pprof server error: %v", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Main", "Shutting down...")
	case err := <-errCh:
		if err != nil {
			logger.Error("Main", "server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Main", "HTTP shutdown: %v", err)
	}
	if err := srv.Close(); err != nil {
		logger.Warn("Main", "panel shutdown: %v", err)
	}
	logger.Info("Main", "Stopped")
}

// applyFlags lets explicitly set flags win over the config file.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.Addr = *httpAddr
		case "backend":
			cfg.BackendURL = *backendURL
		case "record-path":
			cfg.RecordingOutputPath = *recordPath
		case "max-clients":
			cfg.RelayMaxClients = *maxClients
		case "stun":
			cfg.STUNServers = splitList(*stunServers)
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-color":
			cfg.LogColor = *logColor
		}
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
