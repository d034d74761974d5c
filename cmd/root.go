// Package cmd provides the command-line interface for tsxlive.
//
// Configuration System:
//
//	The CLI reads configuration from several sources with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. TSXLIVE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (TSXLIVE_SERVER_PORT, etc.)
//	4. Configuration files (.tsxlive.yml) - lowest priority
//
// Environment Variables:
//
//	TSXLIVE_CONFIG_FILE: Path to custom configuration file
//	TSXLIVE_SERVER_PORT: Override server port
//	TSXLIVE_COMPILE_DEBOUNCE: Override the edit quiet period
//	And more following the TSXLIVE_<SECTION>_<OPTION> pattern
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tsxlive/internal/version"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tsxlive",
	Short: "Live TSX preview: compile, run and render as you type",
	Long: `tsxlive compiles TSX, TypeScript and JSX off the editing path, runs the
result in an embedded JavaScript sandbox and streams compiled code,
diagnostics and rendered output to a browser playground or the terminal.

Quick Start:
  tsxlive serve                   Start the browser playground
  tsxlive watch app.tsx           Recompile and render a file on every save
  tsxlive compile app.tsx         Print the compiled UMD module
  tsxlive run app.tsx             Compile once and print the rendered HTML`,
	SilenceUsage: true,
	Version:      version.Get().Short(),

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configErr
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .tsxlive.yml, can also use TSXLIVE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// configErr holds a failure from initConfig. OnInitialize hooks cannot
// return errors, so the root PersistentPreRunE reports it.
var configErr error

// initConfig initializes the configuration system.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag
//  2. TSXLIVE_CONFIG_FILE environment variable
//  3. .tsxlive.yml in the current directory
func initConfig() {
	explicit := cfgFile
	if explicit == "" {
		explicit = os.Getenv("TSXLIVE_CONFIG_FILE")
	}
	configErr = readConfig(viper.GetViper(), explicit)
}

// readConfig points v at the config file and reads it. Only a missing
// default .tsxlive.yml is tolerated; an explicitly named file must exist
// and parse.
func readConfig(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".tsxlive")
	}

	// Examples: TSXLIVE_SERVER_PORT, TSXLIVE_SANDBOX_TIMEOUT
	v.SetEnvPrefix("TSXLIVE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	return nil
}
