// Command toolroute-server is the MCP tool server behind toolroute. It serves
// the chat, image, speech, camera and member tools over stdio (the default,
// for use as a toolroute subprocess) or streamable HTTP.
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
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/toolroute/internal/config"
	"github.com/MrWong99/toolroute/internal/health"
	"github.com/MrWong99/toolroute/internal/members"
	"github.com/MrWong99/toolroute/internal/observe"
	"github.com/MrWong99/toolroute/internal/toolserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	serveHTTP := flag.Bool("http", false, "serve streamable HTTP on toolserver.listen_addr instead of stdio")
	addr := flag.String("addr", "", "override toolserver.listen_addr (implies -http)")
	flag.Parse()

	// A missing config file is fine: everything has a default and the API
	// key can come from the environment.
	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.LoadFromReader(strings.NewReader(""))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolroute-server: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.ToolServer.ListenAddr = *addr
		*serveHTTP = true
	}
	if cfg.ToolServer.Chat.APIKey == "" {
		cfg.ToolServer.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
		config.ApplyDefaults(cfg)
	}

	// stdout carries the MCP stream in stdio mode; logs go to stderr.
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "toolroute-server",
		ServiceVersion: toolserver.Version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Members store ─────────────────────────────────────────────────────────
	var (
		store    members.Store
		checkers []health.Checker
	)
	if dsn := cfg.ToolServer.PostgresDSN; dsn != "" {
		pg, err := members.Open(ctx, dsn)
		if err != nil {
			slog.Error("failed to open members database", "err", err)
			return 1
		}
		defer pg.Close()
		store = pg
		checkers = append(checkers, health.Ping("database", pg))
		slog.Info("members store ready", "backend", "postgres")
	} else {
		store = members.NewMemStore()
		slog.Warn("toolserver.postgres_dsn is empty, members are kept in memory")
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	config.RegisterBuiltins(reg)
	providers, err := buildProviders(cfg.ToolServer, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	srv, err := toolserver.New(providers, store, toolserver.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to create tool server", "err", err)
		return 1
	}

	if !*serveHTTP {
		slog.Info("serving MCP over stdio")
		if err := srv.Run(ctx); err != nil {
			slog.Error("stdio server error", "err", err)
			return 1
		}
		return 0
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", srv.Handler())
	mux.Handle("GET /metrics", observe.MetricsHandler())
	health.New(checkers).Register(mux)

	httpSrv := &http.Server{
		Addr:              cfg.ToolServer.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving MCP over streamable HTTP", "addr", httpSrv.Addr, "path", "/mcp")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
			return 1
		}
	}
	slog.Info("goodbye")
	return 0
}

// buildProviders instantiates the tool backends named in cfg. A provider
// whose name is not registered is left nil; its tool then reports an error
// to the caller instead of preventing startup.
func buildProviders(cfg config.ToolServerConfig, reg *config.Registry) (toolserver.Providers, error) {
	var ps toolserver.Providers

	chat, err := reg.CreateLLM(cfg.Chat)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("provider not registered, tool disabled", "kind", "chat", "name", cfg.Chat.Name)
	case err != nil:
		return ps, fmt.Errorf("create chat provider %q: %w", cfg.Chat.Name, err)
	default:
		ps.Chat = chat
		slog.Info("provider created", "kind", "chat", "name", cfg.Chat.Name, "model", cfg.Chat.Model)
	}

	vision, err := reg.CreateLLM(cfg.Vision)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("provider not registered, tool disabled", "kind", "vision", "name", cfg.Vision.Name)
	case err != nil:
		return ps, fmt.Errorf("create vision provider %q: %w", cfg.Vision.Name, err)
	default:
		ps.Vision = vision
		slog.Info("provider created", "kind", "vision", "name", cfg.Vision.Name, "model", cfg.Vision.Model)
	}

	images, err := reg.CreateImageGen(cfg.Images)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("provider not registered, tool disabled", "kind", "imagegen", "name", cfg.Images.Name)
	case err != nil:
		return ps, fmt.Errorf("create imagegen provider %q: %w", cfg.Images.Name, err)
	default:
		ps.Images = images
		slog.Info("provider created", "kind", "imagegen", "name", cfg.Images.Name, "model", cfg.Images.Model)
	}

	speech, err := reg.CreateTTS(cfg.Speech)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("provider not registered, tool disabled", "kind", "tts", "name", cfg.Speech.Name)
	case err != nil:
		return ps, fmt.Errorf("create tts provider %q: %w", cfg.Speech.Name, err)
	default:
		ps.Speech = speech
		slog.Info("provider created", "kind", "tts", "name", cfg.Speech.Name, "model", cfg.Speech.Model)
	}

	return ps, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
