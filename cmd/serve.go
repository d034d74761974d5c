package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tsxlive/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the browser playground",
	Long: `Start the live preview server. The playground page edits TSX in the
browser, streams edits over a WebSocket and renders each compiled result.

Examples:
  tsxlive serve                 # Serve on the configured host and port
  tsxlive serve -p 3000         # Serve on port 3000
  tsxlive serve --host 0.0.0.0  # Listen on every interface`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	engine, err := newEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure compiler: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving playground at http://%s\n", cfg.Addr())

	if err := server.New(cfg, engine, logger).Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
