package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type sessionBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	adapter         Adapter
	adapterResolver AdapterResolver
	entitySink      EntitySink
	listeners       []Listener
	journal         PresenceJournal
	clock           func() time.Time
}

type Option func(*sessionBuilder)

func WithLogger(logger Logger) Option {
	return func(b *sessionBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *sessionBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *sessionBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *sessionBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *sessionBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *sessionBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *sessionBuilder) {
		b.optionsResolver = resolver
	}
}

// WithAdapter injects a ready adapter. It takes precedence over WithAdapterResolver.
func WithAdapter(adapter Adapter) Option {
	return func(b *sessionBuilder) {
		b.adapter = adapter
	}
}

func WithAdapterResolver(resolver AdapterResolver) Option {
	return func(b *sessionBuilder) {
		b.adapterResolver = resolver
	}
}

func WithEntitySink(sink EntitySink) Option {
	return func(b *sessionBuilder) {
		b.entitySink = sink
	}
}

func WithListener(listener Listener) Option {
	return func(b *sessionBuilder) {
		if listener != nil {
			b.listeners = append(b.listeners, listener)
		}
	}
}

// WithPresenceJournal records presence notifications. The journal is only
// attached when journal.enabled is set in the resolved config.
func WithPresenceJournal(journal PresenceJournal) Option {
	return func(b *sessionBuilder) {
		b.journal = journal
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *sessionBuilder) {
		b.clock = clock
	}
}

func defaultSessionBuilder(runtime Config) sessionBuilder {
	loggerProvider, logger := glog.Resolve("peerlink", nil, nil)
	return sessionBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		entitySink:      NopEntitySink{},
		clock:           time.Now,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return sessionErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	return copyAnyMap(l.Values), nil
}

// StaticConfigLoader serves a fixed raw map, mostly useful in tests and
// embedded setups.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

// YAMLConfigLoader reads raw config values from a YAML document on disk. A
// missing file yields an empty map when Optional is set.
type YAMLConfigLoader struct {
	Path     string
	Optional bool
}

func (l YAMLConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if l.Optional && os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config %q: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: parse config %q: %w", path, err)
	}
	return raw, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults < loaded < runtime. Boolean flags can only
// be switched on by higher layers.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			layer[key] = strings.TrimSpace(value)
		}
	}
	setString("session_name", cfg.SessionName)
	setString("server_address", cfg.ServerAddress)
	setString("app", cfg.App)
	setString("room", cfg.Room)
	setString("transport", strings.ToLower(cfg.Transport))

	if includeZero || len(cfg.TransportOptions) > 0 {
		layer["transport_options"] = copyAnyMap(cfg.TransportOptions)
	}
	if includeZero || cfg.Media.Audio || cfg.Media.Video || cfg.Media.DataChannel {
		media := map[string]any{}
		if includeZero || cfg.Media.Audio {
			media["audio"] = cfg.Media.Audio
		}
		if includeZero || cfg.Media.Video {
			media["video"] = cfg.Media.Video
		}
		if includeZero || cfg.Media.DataChannel {
			media["data_channel"] = cfg.Media.DataChannel
		}
		layer["media"] = media
	}
	if includeZero || cfg.Journal.Enabled {
		layer["journal"] = map[string]any{
			"enabled": cfg.Journal.Enabled,
		}
	}
	return layer
}
