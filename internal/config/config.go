// Package config provides configuration management for tsxlive using Viper
// for loading from files, environment variables and command-line flags.
//
// Configuration comes from a YAML file (.tsxlive.yml by default), TSXLIVE_
// prefixed environment variables and bound flags. Load applies defaults for
// every section and validates the result.
package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/tsxlive/internal/types"
)

// Config is the full tsxlive configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Compile CompileConfig `yaml:"compile" mapstructure:"compile"`
	Sandbox SandboxConfig `yaml:"sandbox" mapstructure:"sandbox"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Preview PreviewConfig `yaml:"preview" mapstructure:"preview"`
	Watch   WatchConfig   `yaml:"watch" mapstructure:"watch"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// CompileConfig drives the transform engine, the worker channel and the
// dispatcher.
type CompileConfig struct {
	Debounce  time.Duration   `yaml:"debounce" mapstructure:"debounce"`
	Workers   int             `yaml:"workers" mapstructure:"workers"`
	QueueSize int             `yaml:"queue_size" mapstructure:"queue_size"`
	Target    string          `yaml:"target" mapstructure:"target"`
	Filename  string          `yaml:"filename" mapstructure:"filename"`
	Minify    bool            `yaml:"minify" mapstructure:"minify"`
	Globals   []GlobalBinding `yaml:"globals" mapstructure:"globals"`
}

// GlobalBinding maps an importable package to the host global holding it.
// Globals are a list rather than a map so package names such as "chart.js"
// or "@Scope/Pkg" survive viper's key splitting and lowercasing.
type GlobalBinding struct {
	Package string `yaml:"package" mapstructure:"package"`
	Global  string `yaml:"global" mapstructure:"global"`
}

// GlobalMap returns the bindings as the package-to-global table the
// transform engine and sandbox take. Later entries win on duplicates.
func (c CompileConfig) GlobalMap() map[string]string {
	m := make(map[string]string, len(c.Globals))
	for _, b := range c.Globals {
		m[b.Package] = b.Global
	}
	return m
}

// BindingsFrom converts a package-to-global table into bindings sorted by
// package name.
func BindingsFrom(globals map[string]string) []GlobalBinding {
	bindings := make([]GlobalBinding, 0, len(globals))
	for pkg, global := range globals {
		bindings = append(bindings, GlobalBinding{Package: pkg, Global: global})
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].Package < bindings[j].Package })
	return bindings
}

type SandboxConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	ScriptID    string        `yaml:"script_id" mapstructure:"script_id"`
	ContainerID string        `yaml:"container_id" mapstructure:"container_id"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxSize int64         `yaml:"max_size" mapstructure:"max_size"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PreviewConfig shapes the browser playground.
type PreviewConfig struct {
	Title string `yaml:"title" mapstructure:"title"`
	// Scripts are loaded before compiled code and must provide the globals.
	Scripts []string `yaml:"scripts" mapstructure:"scripts"`
}

type WatchConfig struct {
	Extensions []string `yaml:"extensions" mapstructure:"extensions"`
	Ignore     []string `yaml:"ignore" mapstructure:"ignore"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ShutdownTimeout: 5 * time.Second,
		},
		Compile: CompileConfig{
			Debounce:  500 * time.Millisecond,
			Workers:   1,
			QueueSize: 64,
			Target:    "es2017",
			Filename:  "userCode.tsx",
			Globals:   BindingsFrom(types.DefaultGlobals()),
		},
		Sandbox: SandboxConfig{
			Enabled:     true,
			ScriptID:    "sandbox-script",
			ContainerID: "sandbox",
			Timeout:     2 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxSize: 16 << 20,
			TTL:     10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Preview: PreviewConfig{
			Title: "tsxlive",
			Scripts: []string{
				"https://unpkg.com/react@18/umd/react.development.js",
				"https://unpkg.com/react-dom@18/umd/react-dom.development.js",
				"https://unpkg.com/@ant-design/plots@1/dist/plots.min.js",
			},
		},
		Watch: WatchConfig{
			Extensions: []string{".tsx", ".ts", ".jsx", ".js"},
			Ignore:     []string{"node_modules", ".git"},
		},
	}
}

// SetDefaults registers every default on v so that IsSet, env overrides and
// config dumps see the full key set.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("compile.debounce", d.Compile.Debounce)
	v.SetDefault("compile.workers", d.Compile.Workers)
	v.SetDefault("compile.queue_size", d.Compile.QueueSize)
	v.SetDefault("compile.target", d.Compile.Target)
	v.SetDefault("compile.filename", d.Compile.Filename)
	v.SetDefault("compile.minify", d.Compile.Minify)

	v.SetDefault("sandbox.enabled", d.Sandbox.Enabled)
	v.SetDefault("sandbox.script_id", d.Sandbox.ScriptID)
	v.SetDefault("sandbox.container_id", d.Sandbox.ContainerID)
	v.SetDefault("sandbox.timeout", d.Sandbox.Timeout)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.max_size", d.Cache.MaxSize)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("preview.title", d.Preview.Title)
	v.SetDefault("preview.scripts", d.Preview.Scripts)

	v.SetDefault("watch.extensions", d.Watch.Extensions)
	v.SetDefault("watch.ignore", d.Watch.Ignore)
}

// Load reads the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds a validated Config from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Decode builds a Config from v with defaults applied but without
// validating it.
func Decode(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	// An empty globals list means the built-in table.
	if len(config.Compile.Globals) == 0 {
		config.Compile.Globals = BindingsFrom(types.DefaultGlobals())
	}

	// Handle slices set via viper (workaround for viper slice handling)
	if v.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("watch.extensions") && len(config.Watch.Extensions) == 0 {
		config.Watch.Extensions = v.GetStringSlice("watch.extensions")
	}

	return &config, nil
}

// Validate returns the first validation error, if any.
func (c *Config) Validate() error {
	result := ValidateConfigWithDetails(c)
	if result.HasErrors() {
		return &result.Errors[0]
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
