package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/tsxlive/internal/preview"
	"github.com/conneroisu/tsxlive/internal/types"
	"github.com/conneroisu/tsxlive/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file|dir>",
	Short: "Recompile and render a file on every save",
	Long: `Watch a source file and run it through the live preview pipeline on
every save. Given a directory, every file matching watch.extensions feeds
the preview. Saves are debounced the same way keystrokes are in the
playground, so only the settled contents compile.

Examples:
  tsxlive watch app.tsx
  tsxlive watch app.tsx --language jsx
  tsxlive watch src/`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addCompileFlags(watchCmd.Flags())
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := bindCompileFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	info, err := os.Stat(args[0])
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", args[0], err)
	}

	langFlag, _ := cmd.Flags().GetString("language")
	if langFlag != "" {
		if _, err := resolveLanguage(args[0], langFlag); err != nil {
			return err
		}
	}

	printer := &eventPrinter{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
	pipeline, err := newPipeline(cfg, logger, printer.print)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	fw, err := watcher.NewFileWatcher(logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fw.Stop() }()

	target := args[0]
	if info.IsDir() {
		// Every matching file in the tree feeds the same preview; the most
		// recently saved one wins.
		fw.AddFilter(watcher.ExtensionFilter(cfg.Watch.Extensions...))
		fw.AddFilter(watcher.IgnoreFilter(cfg.Watch.Ignore...))
		if err := fw.AddRecursive(args[0], cfg.Watch.Ignore...); err != nil {
			return fmt.Errorf("failed to watch %s: %w", args[0], err)
		}
	} else {
		if target, err = fw.AddFile(args[0]); err != nil {
			return fmt.Errorf("failed to watch %s: %w", args[0], err)
		}

		// Compile the current contents right away.
		doc, err := readSource(cmd, target, langFlag)
		if err != nil {
			return err
		}
		pipeline.Update(doc)
		pipeline.Flush()
	}

	fw.AddHandler(watcher.SourceFeed(func(doc types.SourceDocument) {
		if langFlag != "" {
			doc.Language, _ = resolveLanguage("", langFlag)
		}
		pipeline.Update(doc)
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (press Ctrl+C to stop)\n", target)
	<-ctx.Done()
	return nil
}

// eventPrinter writes pipeline events to the terminal. Events arrive on
// worker goroutines.
type eventPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

var kindTitle = cases.Title(language.English)

func (p *eventPrinter) print(ev preview.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	header := fmt.Sprintf("[%d] %s", ev.RequestID, kindTitle.String(string(ev.Kind)))
	switch ev.Kind {
	case preview.EventCompiled:
		fmt.Fprintf(p.errOut, "%s: %d bytes\n", header, len(ev.Code))
	case preview.EventDiagnostic:
		fmt.Fprintf(p.errOut, "%s: %s\n", header, ev.Diagnostic.String())
	case preview.EventRendered:
		fmt.Fprintln(p.out, header)
		printReport(p.out, p.errOut, reportFor(ev))
	}
}
