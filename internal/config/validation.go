package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/tsxlive/internal/logging"
	"github.com/conneroisu/tsxlive/internal/transform"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}
	write("Validation errors", vr.Errors)
	write("Validation warnings", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServer(&config.Server, result)
	validateCompile(&config.Compile, result)
	validateSandbox(&config.Sandbox, result)
	validateCache(&config.Cache, result)
	validateLog(&config.Log, result)
	validateWatch(&config.Watch, result)

	result.Valid = !result.HasErrors()
	return result
}

var dangerousHostChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}

func validateServer(config *ServerConfig, result *ValidationResult) {
	// Port 0 lets the system assign one, which tests rely on.
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Common development ports: 3000, 8080, 8000")
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port, "port below 1024 requires elevated privileges")
	}

	for _, char := range dangerousHostChars {
		if strings.Contains(config.Host, char) {
			result.addError("server.host", config.Host,
				fmt.Sprintf("host contains dangerous character: %q", char),
				"Use 'localhost' for local development", "Use '0.0.0.0' to bind to all interfaces")
			break
		}
	}

	if config.ShutdownTimeout < 0 {
		result.addError("server.shutdown_timeout", config.ShutdownTimeout, "shutdown timeout cannot be negative")
	}
}

func validateCompile(config *CompileConfig, result *ValidationResult) {
	switch {
	case config.Debounce <= 0:
		result.addError("compile.debounce", config.Debounce, "debounce must be positive",
			"The default quiet period is 500ms")
	case config.Debounce > time.Minute:
		result.addError("compile.debounce", config.Debounce, "debounce longer than a minute")
	case config.Debounce < 50*time.Millisecond:
		result.addWarning("compile.debounce", config.Debounce,
			"very short debounce compiles on almost every keystroke")
	}

	if config.Workers < 1 || config.Workers > 64 {
		result.addError("compile.workers", config.Workers, "workers must be between 1 and 64")
	} else if config.Workers > 1 {
		result.addWarning("compile.workers", config.Workers,
			"results may complete out of order; stale ones are dropped")
	}

	if config.QueueSize < 1 {
		result.addError("compile.queue_size", config.QueueSize, "queue size must be at least 1")
	}

	if !transform.ValidTarget(config.Target) {
		result.addError("compile.target", config.Target, "unsupported target",
			"Use one of es2015 through es2022, or esnext")
	}

	if config.Filename == "" || strings.ContainsAny(config.Filename, `/\`) || filepath.Ext(config.Filename) == "" {
		result.addError("compile.filename", config.Filename,
			"filename must be a bare file name with an extension", "Use 'userCode.tsx'")
	}

	seen := make(map[string]bool, len(config.Globals))
	for _, b := range config.Globals {
		if b.Package == "" {
			result.addError("compile.globals", b.Global, "package name cannot be empty")
		} else if seen[b.Package] {
			result.addError("compile.globals", b.Package,
				fmt.Sprintf("package %q is bound more than once", b.Package))
		}
		seen[b.Package] = true
		if !transform.IsIdentifier(b.Global) {
			result.addError("compile.globals", b.Global,
				fmt.Sprintf("global %q for package %q is not a valid identifier", b.Global, b.Package))
		}
	}
}

func validateSandbox(config *SandboxConfig, result *ValidationResult) {
	if config.ScriptID == "" {
		result.addError("sandbox.script_id", config.ScriptID, "script id cannot be empty")
	}
	if config.ContainerID == "" {
		result.addError("sandbox.container_id", config.ContainerID, "container id cannot be empty")
	}
	if config.Timeout < 0 {
		result.addError("sandbox.timeout", config.Timeout, "timeout cannot be negative")
	} else if config.Timeout == 0 && config.Enabled {
		result.addWarning("sandbox.timeout", config.Timeout, "scripts can run forever without a timeout")
	}
}

func validateCache(config *CacheConfig, result *ValidationResult) {
	if config.MaxSize < 0 {
		result.addError("cache.max_size", config.MaxSize, "max size cannot be negative")
	}
	if config.TTL < 0 {
		result.addError("cache.ttl", config.TTL, "ttl cannot be negative", "Use 0 to disable expiry")
	}
}

func validateLog(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("log.level", config.Level, err.Error(), "Use debug, info, warn or error")
	}
	switch config.Format {
	case "", "text", "json":
	default:
		result.addError("log.format", config.Format, "format must be text or json")
	}
}

func validateWatch(config *WatchConfig, result *ValidationResult) {
	for _, ext := range config.Extensions {
		if !strings.HasPrefix(ext, ".") {
			result.addError("watch.extensions", ext, "extension must start with a dot")
		}
	}
	for _, pattern := range config.Ignore {
		if _, err := filepath.Match(pattern, "x"); err != nil {
			result.addError("watch.ignore", pattern, fmt.Sprintf("bad pattern: %v", err))
		}
	}
}
