package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tsxlive/internal/cache"
	"github.com/conneroisu/tsxlive/internal/config"
	"github.com/conneroisu/tsxlive/internal/logging"
	"github.com/conneroisu/tsxlive/internal/preview"
	"github.com/conneroisu/tsxlive/internal/sandbox"
	"github.com/conneroisu/tsxlive/internal/transform"
	"github.com/conneroisu/tsxlive/internal/types"
)

// loadConfig loads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) logging.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: w,
	})
}

func newEngine(cfg *config.Config) (*transform.Engine, error) {
	return transform.New(transform.Options{
		Filename: cfg.Compile.Filename,
		Target:   cfg.Compile.Target,
		Globals:  cfg.Compile.GlobalMap(),
		Minify:   cfg.Compile.Minify,
	})
}

func newSandbox(cfg *config.Config, logger logging.Logger) (*sandbox.Sandbox, error) {
	return sandbox.New(
		sandbox.WithScriptID(cfg.Sandbox.ScriptID),
		sandbox.WithTimeout(cfg.Sandbox.Timeout),
		sandbox.WithGlobals(cfg.Compile.GlobalMap()),
		sandbox.WithSurface(sandbox.NewSurface(cfg.Sandbox.ContainerID)),
		sandbox.WithLogger(logger),
	)
}

// newPipeline wires a terminal pipeline from configuration.
func newPipeline(cfg *config.Config, logger logging.Logger, listener preview.Listener) (*preview.Pipeline, error) {
	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}

	opts := []preview.Option{
		preview.WithDelay(cfg.Compile.Debounce),
		preview.WithWorkers(cfg.Compile.Workers),
		preview.WithQueueSize(cfg.Compile.QueueSize),
		preview.WithLogger(logger),
		preview.WithContainer(cfg.Sandbox.ContainerID),
		preview.WithListener(listener),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, preview.WithCache(cache.New(cfg.Cache.MaxSize, cfg.Cache.TTL)))
	}
	if cfg.Sandbox.Enabled {
		sb, err := newSandbox(cfg, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, preview.WithSandbox(sb))
	}

	return preview.New(engine, opts...), nil
}

// readSource reads path, or stdin for "-". An explicit language flag wins
// over the file extension.
func readSource(cmd *cobra.Command, path, langFlag string) (types.SourceDocument, error) {
	var (
		content []byte
		err     error
	)
	if path == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
	} else {
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return types.SourceDocument{}, fmt.Errorf("reading source: %w", err)
	}

	lang, err := resolveLanguage(path, langFlag)
	if err != nil {
		return types.SourceDocument{}, err
	}
	return types.SourceDocument{Source: string(content), Language: lang}, nil
}

func resolveLanguage(path, langFlag string) (types.Language, error) {
	if langFlag != "" {
		return types.ParseLanguage(langFlag)
	}
	if lang, ok := types.LanguageForFile(path); ok {
		return lang, nil
	}
	return types.DefaultLanguage, nil
}
