package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tsxlive/internal/preview"
	"github.com/conneroisu/tsxlive/internal/sandbox"
	"github.com/conneroisu/tsxlive/internal/types"
)

// runWait bounds how long run waits for the pipeline beyond the sandbox
// timeout.
const runWait = 30 * time.Second

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run [file|-]",
	Short: "Compile and render a source file once",
	Long: `Compile a source file, execute it in the sandbox and print the rendered
HTML followed by anything the script logged.

Examples:
  tsxlive run app.tsx
  tsxlive run app.tsx --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addCompileFlags(runCmd.Flags())
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the outcome as JSON")
}

// RunReport is the --json output of run.
type RunReport struct {
	ID         types.RequestID    `json:"id"`
	Diagnostic *types.Diagnostic  `json:"diagnostic,omitempty"`
	HTML       string             `json:"html,omitempty"`
	Error      string             `json:"error,omitempty"`
	Logs       []sandbox.LogEntry `json:"logs,omitempty"`
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := bindCompileFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// A single run always executes the module.
	cfg.Sandbox.Enabled = true

	path := "-"
	if len(args) == 1 {
		path = args[0]
	}
	langFlag, _ := cmd.Flags().GetString("language")
	doc, err := readSource(cmd, path, langFlag)
	if err != nil {
		return err
	}
	if doc.Empty() {
		return fmt.Errorf("source is empty")
	}

	events := make(chan preview.Event, 4)
	pipeline, err := newPipeline(cfg, newLogger(cfg, os.Stderr), func(ev preview.Event) {
		if ev.Kind == preview.EventCompiled {
			return
		}
		select {
		case events <- ev:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer pipeline.Close()

	pipeline.Update(doc)
	pipeline.Flush()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, cfg.Sandbox.Timeout+runWait)
	defer cancel()

	select {
	case ev := <-events:
		report := reportFor(ev)
		if runJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			printReport(cmd.OutOrStdout(), cmd.ErrOrStderr(), report)
		}
		if report.Diagnostic != nil || report.Error != "" {
			return fmt.Errorf("run failed")
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for render: %w", ctx.Err())
	}
}

func reportFor(ev preview.Event) RunReport {
	report := RunReport{ID: ev.RequestID, Diagnostic: ev.Diagnostic, HTML: ev.HTML}
	if ev.Execution != nil {
		report.Logs = ev.Execution.Logs
		if ev.Execution.Err != nil {
			report.Error = ev.Execution.Err.Error()
		}
	}
	return report
}

func printReport(out, errOut io.Writer, report RunReport) {
	if report.Diagnostic != nil {
		fmt.Fprintln(errOut, report.Diagnostic.String())
		return
	}
	if report.HTML != "" {
		fmt.Fprintln(out, report.HTML)
	}
	for _, entry := range report.Logs {
		fmt.Fprintf(errOut, "[%s] %s\n", entry.Level, entry.Message)
	}
	if report.Error != "" {
		fmt.Fprintln(errOut, report.Error)
	}
}
