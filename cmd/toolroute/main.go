// Command toolroute is the conversational front end: it routes each user turn
// to a tool on the toolroute MCP server and serves the results over HTTP and,
// optionally, an interactive console.
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

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/toolroute/internal/app"
	"github.com/MrWong99/toolroute/internal/artifact"
	"github.com/MrWong99/toolroute/internal/config"
	"github.com/MrWong99/toolroute/internal/console"
	"github.com/MrWong99/toolroute/internal/dispatch"
	"github.com/MrWong99/toolroute/internal/health"
	"github.com/MrWong99/toolroute/internal/mcp"
	"github.com/MrWong99/toolroute/internal/mcp/bridge"
	"github.com/MrWong99/toolroute/internal/observe"
	"github.com/MrWong99/toolroute/internal/resilience"
	"github.com/MrWong99/toolroute/internal/router"
	"github.com/MrWong99/toolroute/internal/tools"
	"github.com/MrWong99/toolroute/internal/web"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	withConsole := flag.Bool("console", false, "read turns from stdin")
	noHTTP := flag.Bool("no-http", false, "do not serve the HTTP API")
	audioDir := flag.String("audio-dir", "", "directory the console saves synthesized speech to")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "toolroute: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "toolroute: %v\n", err)
		}
		return 1
	}
	if *noHTTP && !*withConsole {
		fmt.Fprintln(os.Stderr, "toolroute: -no-http requires -console, nothing to serve")
		return 1
	}
	if *noHTTP {
		cfg.Server.ListenAddr = ""
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The console owns stdout, so logs always go to stderr.
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("toolroute starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "toolroute",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Pipeline ──────────────────────────────────────────────────────────────
	application, toolBridge, err := buildApp(cfg, metrics)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg, *withConsole)
	if names, err := toolBridge.Tools(ctx); err != nil {
		slog.Warn("tool server not reachable at startup", "server", cfg.MCP.Server.Name, "err", err)
	} else {
		slog.Info("tool server reachable", "server", cfg.MCP.Server.Name, "tools", len(names))
	}

	// ── Sinks ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if addr := cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr: addr,
			Handler: web.New(application,
				web.WithMetrics(metrics),
				web.WithHealth(health.New([]health.Checker{health.Ping("toolserver", toolBridge)})),
			).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http api listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if *withConsole {
		var opts []console.Option
		if *audioDir != "" {
			opts = append(opts, console.WithAudioDir(*audioDir))
		}
		repl := console.New(application, os.Stdin, os.Stdout, opts...)
		g.Go(func() error {
			err := repl.Run(gctx)
			// Leaving the console ends the process.
			stop()
			return err
		})
	}

	slog.Info("ready, press Ctrl+C to shut down")
	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildApp assembles the oracle, the bridge, the artifact store and the turn
// pipeline from cfg. The bridge is also returned for health checks.
func buildApp(cfg *config.Config, metrics *observe.Metrics) (*app.App, *bridge.Bridge, error) {
	reg := config.NewRegistry()
	config.RegisterBuiltins(reg)
	for _, name := range reg.Names(config.KindLLM) {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}

	oracle, err := reg.CreateLLM(cfg.Oracle)
	if err != nil {
		return nil, nil, fmt.Errorf("create oracle %q: %w", cfg.Oracle.Name, err)
	}
	slog.Info("provider created", "kind", "oracle", "name", cfg.Oracle.Name, "model", cfg.Oracle.Model)

	bridgeOpts := []bridge.Option{
		bridge.WithCallTimeout(cfg.MCP.CallTimeout),
		bridge.WithMetrics(metrics),
	}
	if bc := cfg.MCP.Breaker; bc.MaxFailures > 0 {
		bridgeOpts = append(bridgeOpts, bridge.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{
			Name:         cfg.MCP.Server.Name,
			MaxFailures:  bc.MaxFailures,
			ResetTimeout: bc.ResetTimeout,
		})))
	}
	b, err := bridge.New(cfg.MCP.Server.ServerConfig(), bridgeOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create mcp bridge: %w", err)
	}

	var store artifact.Store = artifact.Disabled{}
	if cfg.Artifacts.Enabled() {
		store, err = artifact.NewSupabase(cfg.Artifacts.URL, cfg.Artifacts.Key, cfg.Artifacts.Bucket,
			artifact.WithMetrics(metrics),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("create artifact store: %w", err)
		}
	}

	registry := tools.Default()
	r := router.New(oracle, registry,
		router.WithTimeout(cfg.Oracle.Timeout),
		router.WithMetrics(metrics),
	)
	d := dispatch.New(b, store,
		dispatch.WithRegistry(registry),
		dispatch.WithMetrics(metrics),
	)
	return app.New(r, d, app.WithMetrics(metrics)), b, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, withConsole bool) {
	// Keep stdout clean for the console.
	w := os.Stdout
	if withConsole {
		w = os.Stderr
	}
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        toolroute, startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Oracle", describe(cfg.Oracle.Name, cfg.Oracle.Model))
	server := cfg.MCP.Server
	target := server.Command
	if server.Transport != mcp.TransportStdio {
		target = server.URL
	}
	printRow(w, "Tool server", describe(string(server.Transport), target))
	if cfg.Artifacts.Enabled() {
		printRow(w, "Artifacts", cfg.Artifacts.Bucket)
	} else {
		printRow(w, "Artifacts", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	}
	if withConsole {
		printRow(w, "Console", "enabled")
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func describe(name, detail string) string {
	switch {
	case name == "":
		return "(not configured)"
	case detail == "":
		return name
	default:
		return name + " / " + detail
	}
}

func printRow(w *os.File, label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

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
