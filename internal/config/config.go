// Package config provides configuration management for the dev server
// using Viper for loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports a YAML file (.devreload.yml),
// environment variable overrides with the DEVRELOAD_ prefix and validation.
// It describes the listening address, the source and output directories,
// the two pipeline entries and the watcher/reload timings.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Artifact file names inside the output directory.
const (
	StylesheetFile      = "styles.css"
	PageFile            = "index.html"
	HydrationScriptFile = "hydrate.js"
)

// URL paths served by the dev server.
const (
	LiveReloadPath   = "/ws"
	SourcePrefix     = "/src/"
	RuntimePath      = "/_dev/runtime.js"
	DefaultMountID   = "root"
	DefaultConfigEnv = "DEVRELOAD"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Paths   PathsConfig   `mapstructure:"paths" yaml:"paths"`
	Style   StyleConfig   `mapstructure:"style" yaml:"style"`
	Render  RenderConfig  `mapstructure:"render" yaml:"render"`
	Watcher WatcherConfig `mapstructure:"watcher" yaml:"watcher"`
	Reload  ReloadConfig  `mapstructure:"reload" yaml:"reload"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type PathsConfig struct {
	Source string `mapstructure:"source" yaml:"source"`
	Output string `mapstructure:"output" yaml:"output"`
}

type StyleConfig struct {
	Entry            string   `mapstructure:"entry" yaml:"entry"`
	Extensions       []string `mapstructure:"extensions" yaml:"extensions"`
	TransformCommand []string `mapstructure:"transform_command" yaml:"transform_command,omitempty"`
}

type RenderConfig struct {
	Entry      string                 `mapstructure:"entry" yaml:"entry"`
	Extensions []string               `mapstructure:"extensions" yaml:"extensions"`
	RuntimeURL string                 `mapstructure:"runtime_url" yaml:"runtime_url"`
	Props      map[string]interface{} `mapstructure:"props" yaml:"props,omitempty"`
}

type WatcherConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type ReloadConfig struct {
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// StyleEntryPath returns the style entry joined with the source root.
func (c *Config) StyleEntryPath() string {
	return filepath.Join(c.Paths.Source, c.Style.Entry)
}

// RenderEntryPath returns the component entry joined with the source root.
func (c *Config) RenderEntryPath() string {
	return filepath.Join(c.Paths.Source, c.Render.Entry)
}

var envKeyReplacer = strings.NewReplacer(".", "_")

// ConfigureEnv enables DEVRELOAD_* environment overrides on v, e.g.
// DEVRELOAD_SERVER_PORT for server.port.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(DefaultConfigEnv)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(envKeyReplacer)
}

// SetDefaults registers every default with v so environment variables
// can override keys that never appear in a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("paths.source", "src")
	v.SetDefault("paths.output", "dist")

	v.SetDefault("style.entry", "index.css")
	v.SetDefault("style.extensions", []string{".css", ".scss"})
	v.SetDefault("style.transform_command", []string{})

	v.SetDefault("render.entry", "App.html")
	v.SetDefault("render.extensions", []string{".html", ".tmpl", ".gohtml"})
	v.SetDefault("render.runtime_url", RuntimePath)

	v.SetDefault("watcher.debounce", 50*time.Millisecond)
	v.SetDefault("reload.reconnect_delay", time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Default returns the configuration produced by the registered defaults.
func Default() *Config {
	v := viper.New()
	cfg, err := LoadFrom(v)
	if err != nil {
		// defaults are static and always valid
		panic(err)
	}
	return cfg
}

// Load reads the configuration from the global viper instance, which the
// CLI has already bound to flags, env and the config file.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// viper keeps empty slices from flags; fall back to the defaults
	if len(config.Style.Extensions) == 0 {
		config.Style.Extensions = []string{".css", ".scss"}
	}
	if len(config.Render.Extensions) == 0 {
		config.Render.Extensions = []string{".html", ".tmpl", ".gohtml"}
	}
	if config.Render.Props == nil {
		config.Render.Props = make(map[string]interface{})
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
