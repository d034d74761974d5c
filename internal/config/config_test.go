package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tsxlive/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	config, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, Default(), config)
	assert.Equal(t, 500*time.Millisecond, config.Compile.Debounce)
	assert.Equal(t, "sandbox-script", config.Sandbox.ScriptID)
	assert.Equal(t, types.DefaultGlobals(), config.Compile.GlobalMap())
	assert.Equal(t, "localhost:8080", config.Addr())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(v *viper.Viper)
		expectError bool
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "overrides from viper",
			setup: func(v *viper.Viper) {
				v.Set("server.port", 3000)
				v.Set("compile.debounce", "250ms")
				v.Set("compile.workers", 2)
				v.Set("sandbox.timeout", "1s")
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 3000, c.Server.Port)
				assert.Equal(t, 250*time.Millisecond, c.Compile.Debounce)
				assert.Equal(t, 2, c.Compile.Workers)
				assert.Equal(t, time.Second, c.Sandbox.Timeout)
			},
		},
		{
			name: "custom globals",
			setup: func(v *viper.Viper) {
				v.Set("compile.globals", []interface{}{
					map[string]interface{}{"package": "react", "global": "UILibrary"},
				})
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, map[string]string{"react": "UILibrary"}, c.Compile.GlobalMap())
			},
		},
		{
			name: "allowed origins slice",
			setup: func(v *viper.Viper) {
				v.Set("server.allowed_origins", []string{"localhost:*", "example.com"})
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, []string{"localhost:*", "example.com"}, c.Server.AllowedOrigins)
			},
		},
		{
			name:        "invalid port type",
			setup:       func(v *viper.Viper) { v.Set("server.port", "invalid_port") },
			expectError: true,
		},
		{
			name:        "zero debounce",
			setup:       func(v *viper.Viper) { v.Set("compile.debounce", "0s") },
			expectError: true,
		},
		{
			name:        "unknown target",
			setup:       func(v *viper.Viper) { v.Set("compile.target", "es3") },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			tt.setup(v)

			config, err := LoadFrom(v)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, config)
				return
			}
			require.NoError(t, err)
			tt.check(t, config)
		})
	}
}

func TestGlobalsKeepPackageNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".tsxlive.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
compile:
  globals:
    - package: react
      global: React
    - package: chart.js
      global: Chart
    - package: "@Scope/Widgets"
      global: Widgets
`), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"react":          "React",
		"chart.js":       "Chart",
		"@Scope/Widgets": "Widgets",
	}, config.Compile.GlobalMap())
}

func TestBindingsFrom(t *testing.T) {
	bindings := BindingsFrom(map[string]string{"react-dom": "ReactDOM", "react": "React"})
	assert.Equal(t, []GlobalBinding{
		{Package: "react", Global: "React"},
		{Package: "react-dom", Global: "ReactDOM"},
	}, bindings)
	assert.Equal(t, map[string]string{"react": "React", "react-dom": "ReactDOM"},
		CompileConfig{Globals: bindings}.GlobalMap())
}

func TestDecodeSkipsValidation(t *testing.T) {
	v := viper.New()
	v.Set("server.port", -1)

	config, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, -1, config.Server.Port)
	assert.Error(t, config.Validate())

	_, err = LoadFrom(v)
	assert.Error(t, err)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".tsxlive.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
compile:
  debounce: 300ms
  target: esnext
log:
  level: debug
  format: json
watch:
  extensions: [".tsx"]
`), 0o600))

	t.Setenv("TSXLIVE_SERVER_HOST", "0.0.0.0")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TSXLIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	require.NoError(t, v.ReadInConfig())

	config, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 300*time.Millisecond, config.Compile.Debounce)
	assert.Equal(t, "esnext", config.Compile.Target)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, []string{".tsx"}, config.Watch.Extensions)
	// Untouched sections keep their defaults.
	assert.Equal(t, "sandbox", config.Sandbox.ContainerID)
}

func TestValidateConfigWithDetails(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		field       string
		wantError   bool
		wantWarning bool
	}{
		{"defaults", func(c *Config) {}, "", false, false},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port", true, false},
		{"privileged port", func(c *Config) { c.Server.Port = 80 }, "server.port", false, true},
		{"dangerous host", func(c *Config) { c.Server.Host = "localhost;rm" }, "server.host", true, false},
		{"short debounce", func(c *Config) { c.Compile.Debounce = 10 * time.Millisecond }, "compile.debounce", false, true},
		{"long debounce", func(c *Config) { c.Compile.Debounce = 2 * time.Minute }, "compile.debounce", true, false},
		{"no workers", func(c *Config) { c.Compile.Workers = 0 }, "compile.workers", true, false},
		{"several workers", func(c *Config) { c.Compile.Workers = 4 }, "compile.workers", false, true},
		{"empty queue", func(c *Config) { c.Compile.QueueSize = 0 }, "compile.queue_size", true, false},
		{"path filename", func(c *Config) { c.Compile.Filename = "src/app.tsx" }, "compile.filename", true, false},
		{"bad global", func(c *Config) { c.Compile.Globals = []GlobalBinding{{Package: "react", Global: "1React"}} }, "compile.globals", true, false},
		{"empty package", func(c *Config) { c.Compile.Globals = []GlobalBinding{{Global: "React"}} }, "compile.globals", true, false},
		{"duplicate package", func(c *Config) {
			c.Compile.Globals = []GlobalBinding{{Package: "react", Global: "React"}, {Package: "react", Global: "Preact"}}
		}, "compile.globals", true, false},
		{"empty script id", func(c *Config) { c.Sandbox.ScriptID = "" }, "sandbox.script_id", true, false},
		{"no timeout", func(c *Config) { c.Sandbox.Timeout = 0 }, "sandbox.timeout", false, true},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Second }, "cache.ttl", true, false},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level", true, false},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format", true, false},
		{"extension", func(c *Config) { c.Watch.Extensions = []string{"tsx"} }, "watch.extensions", true, false},
		{"ignore pattern", func(c *Config) { c.Watch.Ignore = []string{"["} }, "watch.ignore", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			result := ValidateConfigWithDetails(c)

			assert.Equal(t, tt.wantError, result.HasErrors(), result.String())
			assert.Equal(t, tt.wantWarning, result.HasWarnings(), result.String())
			assert.Equal(t, !tt.wantError, result.Valid)

			if tt.field != "" {
				assert.Contains(t, result.String(), tt.field)
			}
			if tt.wantError {
				err := c.Validate()
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.field)
			}
		})
	}
}
