package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewSession_DefaultDependencies(t *testing.T) {
	session, err := NewSession(Config{}, WithAdapter(newFakeAdapter()))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	deps := session.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorFactory == nil {
		t.Fatalf("expected default error factory")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil {
		t.Fatalf("expected default config provider")
	}
	if deps.OptionsResolver == nil {
		t.Fatalf("expected default options resolver")
	}
	if _, ok := deps.EntitySink.(NopEntitySink); !ok {
		t.Fatalf("expected nop entity sink, got %T", deps.EntitySink)
	}
	cfg := session.Config()
	if cfg.SessionName != "peerlink" {
		t.Fatalf("expected default session_name=peerlink, got %q", cfg.SessionName)
	}
	if cfg.Transport != DefaultTransport {
		t.Fatalf("expected default transport %q, got %q", DefaultTransport, cfg.Transport)
	}
	if !cfg.Media.DataChannel {
		t.Fatalf("expected data channel enabled by default")
	}
}

func TestNewSession_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	customFactory := func(message string, category ...goerrors.Category) *goerrors.Error {
		return goerrors.New("custom:"+message, category...)
	}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	configProvider := &fixedConfigProvider{cfg: Config{SessionName: "from-provider", Transport: "loopback"}}
	optionsResolver := &fixedOptionsResolver{cfg: Config{SessionName: "resolved", Transport: "loopback"}}
	sink := &recordingSink{}
	journal := NewMemoryPresenceJournal()

	session, err := NewSession(Config{SessionName: "runtime"},
		WithAdapter(newFakeAdapter()),
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorFactory(customFactory),
		WithErrorMapper(customMapper),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithEntitySink(sink),
		WithPresenceJournal(journal),
	)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	deps := session.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolved := deps.LoggerProvider.GetLogger("peerlink.override"); resolved != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.ConfigProvider != configProvider {
		t.Fatalf("expected custom config provider override")
	}
	if deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected custom options resolver override")
	}
	if deps.EntitySink != sink {
		t.Fatalf("expected custom entity sink")
	}
	if deps.PresenceJournal != nil {
		t.Fatalf("expected journal to stay detached while journal.enabled is false")
	}
	if got := session.Config().SessionName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
}

func TestNewSession_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"session_name": "from-config",
		"app":          "config-app",
		"room":         "config-room",
		"journal": map[string]any{
			"enabled": true,
		},
	}})

	session, err := NewSession(Config{SessionName: "from-runtime"},
		WithConfigProvider(provider),
		WithAdapter(newFakeAdapter()),
		WithPresenceJournal(NewMemoryPresenceJournal()),
	)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	cfg := session.Config()
	if cfg.SessionName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.SessionName)
	}
	if cfg.App != "config-app" || cfg.Room != "config-room" {
		t.Fatalf("expected config layer values, got %q %q", cfg.App, cfg.Room)
	}
	if !cfg.Journal.Enabled {
		t.Fatalf("expected journal enabled from config layer")
	}
	if session.Dependencies().PresenceJournal == nil {
		t.Fatalf("expected journal attached when enabled")
	}
}

func TestYAMLConfigLoader_LoadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peerlink.yaml")
	content := "app: yaml-app\nroom: yaml-room\ntransport: websocket\ntransport_options:\n  write_timeout: 5s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	provider := NewCfgxConfigProvider(YAMLConfigLoader{Path: path})
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App != "yaml-app" || cfg.Room != "yaml-room" || cfg.Transport != "websocket" {
		t.Fatalf("unexpected yaml config %#v", cfg)
	}
	if cfg.TransportOptions["write_timeout"] != "5s" {
		t.Fatalf("expected transport options from yaml, got %#v", cfg.TransportOptions)
	}
}

func TestYAMLConfigLoader_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	raw, err := YAMLConfigLoader{Path: missing, Optional: true}.LoadRaw(context.Background())
	if err != nil || len(raw) != 0 {
		t.Fatalf("expected empty optional config, got %#v %v", raw, err)
	}
	if _, err := (YAMLConfigLoader{Path: missing}).LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected error for required missing file")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SessionName = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected session_name validation error")
	}
	cfg = DefaultConfig()
	cfg.Transport = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected transport validation error")
	}
}
