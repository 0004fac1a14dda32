package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/toolroute/internal/mcp"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":      {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":      {"openai"},
	"imagegen": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
//
// Before parsing, variables from a .env file in the working directory are added
// to the process environment (existing variables win), and ${VAR} references
// in the file are expanded. Secrets can therefore stay out of the YAML.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files into the environment. Missing files
// are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
		slog.Debug("loaded environment file", "path", p)
	}
	return nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values in cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownDeadline
	}

	if cfg.Oracle.Name == "" {
		cfg.Oracle.Name = DefaultOracleProvider
	}
	if cfg.Oracle.Model == "" && cfg.Oracle.Name == DefaultOracleProvider {
		cfg.Oracle.Model = DefaultOracleModel
	}
	if cfg.Oracle.Timeout == 0 {
		cfg.Oracle.Timeout = DefaultOracleTimeout
	}

	srv := &cfg.MCP.Server
	if srv.Name == "" {
		srv.Name = DefaultToolServerName
	}
	if srv.Transport == "" {
		srv.Transport = mcp.TransportStdio
	}
	if srv.Transport == mcp.TransportStdio && srv.Command == "" {
		srv.Command = DefaultToolServerCmd
	}
	if cfg.MCP.CallTimeout == 0 {
		cfg.MCP.CallTimeout = DefaultMCPCallTimeout
	}

	if cfg.Artifacts.Bucket == "" {
		cfg.Artifacts.Bucket = DefaultArtifactsBucket
	}

	ts := &cfg.ToolServer
	if ts.ListenAddr == "" {
		ts.ListenAddr = DefaultToolServerAddr
	}
	defaultEntry(&ts.Chat, ts.Chat, "gpt-4o")
	defaultEntry(&ts.Vision, ts.Chat, "gpt-4o")
	defaultEntry(&ts.Images, ts.Chat, "dall-e-3")
	defaultEntry(&ts.Speech, ts.Chat, "gpt-4o-mini-tts")
}

// defaultEntry fills e from base: the provider name falls back to openai and
// the credentials are inherited when e names the same provider as base.
func defaultEntry(e *ProviderEntry, base ProviderEntry, model string) {
	if e.Name == "" {
		e.Name = DefaultOracleProvider
	}
	if e.Name == base.Name || base.Name == "" {
		if e.APIKey == "" {
			e.APIKey = base.APIKey
		}
		if e.BaseURL == "" {
			e.BaseURL = base.BaseURL
		}
	}
	if e.Model == "" && e.Name == DefaultOracleProvider {
		e.Model = model
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Oracle
	if cfg.Oracle.Name == "" {
		errs = append(errs, errors.New("oracle.name is required"))
	}
	validateProviderName("llm", cfg.Oracle.Name)
	if cfg.Oracle.Timeout < 0 {
		errs = append(errs, fmt.Errorf("oracle.timeout %s must not be negative", cfg.Oracle.Timeout))
	}
	if cfg.Oracle.Name != "ollama" && cfg.Oracle.APIKey == "" {
		slog.Warn("oracle.api_key is empty; the provider will fall back to its environment variable", "provider", cfg.Oracle.Name)
	}

	// MCP server
	srv := cfg.MCP.Server
	if srv.Name == "" {
		errs = append(errs, errors.New("mcp.server.name is required"))
	}
	if srv.Transport != "" && !srv.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("mcp.server.transport %q is invalid; valid values: stdio, streamable-http", srv.Transport))
	}
	if srv.Transport == mcp.TransportStdio && srv.Command == "" {
		errs = append(errs, errors.New("mcp.server.command is required when transport is stdio"))
	}
	if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
		errs = append(errs, errors.New("mcp.server.url is required when transport is streamable-http"))
	}
	if cfg.MCP.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("mcp.call_timeout %s must not be negative", cfg.MCP.CallTimeout))
	}
	if cfg.MCP.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("mcp.breaker.max_failures %d must not be negative", cfg.MCP.Breaker.MaxFailures))
	}
	if cfg.MCP.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("mcp.breaker.reset_timeout %s must not be negative", cfg.MCP.Breaker.ResetTimeout))
	}

	// Artifacts
	if cfg.Artifacts.URL != "" && cfg.Artifacts.Key == "" {
		errs = append(errs, errors.New("artifacts.key is required when artifacts.url is set"))
	}
	if cfg.Artifacts.URL == "" {
		slog.Warn("artifacts.url is empty; captured photos cannot be uploaded")
	}

	// Tool server
	validateProviderName("llm", cfg.ToolServer.Chat.Name)
	validateProviderName("llm", cfg.ToolServer.Vision.Name)
	if cfg.ToolServer.Vision.Name != "" && cfg.ToolServer.Vision.Name != "openai" {
		slog.Warn("toolserver.vision provider may not accept image inputs", "name", cfg.ToolServer.Vision.Name)
	}
	validateProviderName("imagegen", cfg.ToolServer.Images.Name)
	validateProviderName("tts", cfg.ToolServer.Speech.Name)
	if cfg.ToolServer.PostgresDSN == "" {
		slog.Debug("toolserver.postgres_dsn is empty; members are kept in memory")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
