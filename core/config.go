package core

import (
	"fmt"
	"strings"
)

const DefaultTransport = "loopback"

type JournalConfig struct {
	Enabled bool `koanf:"enabled" mapstructure:"enabled" yaml:"enabled"`
}

type Config struct {
	SessionName      string         `koanf:"session_name" mapstructure:"session_name" yaml:"session_name"`
	ServerAddress    string         `koanf:"server_address" mapstructure:"server_address" yaml:"server_address"`
	App              string         `koanf:"app" mapstructure:"app" yaml:"app"`
	Room             string         `koanf:"room" mapstructure:"room" yaml:"room"`
	Transport        string         `koanf:"transport" mapstructure:"transport" yaml:"transport"`
	TransportOptions map[string]any `koanf:"transport_options" mapstructure:"transport_options" yaml:"transport_options"`
	Media            MediaOptions   `koanf:"media" mapstructure:"media" yaml:"media"`
	Journal          JournalConfig  `koanf:"journal" mapstructure:"journal" yaml:"journal"`
}

func DefaultConfig() Config {
	return Config{
		SessionName: "peerlink",
		Transport:   DefaultTransport,
		Media: MediaOptions{
			DataChannel: true,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.SessionName) == "" {
		return fmt.Errorf("core: session_name is required")
	}
	if strings.TrimSpace(c.Transport) == "" {
		return fmt.Errorf("core: transport is required")
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	out.TransportOptions = copyAnyMap(c.TransportOptions)
	return out
}
