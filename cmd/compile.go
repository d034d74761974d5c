package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tsxlive/internal/errors"
)

var compileOutput string

var compileCmd = &cobra.Command{
	Use:   "compile [file|-]",
	Short: "Compile a source file to a UMD module",
	Long: `Compile TSX, TypeScript or JSX into the UMD module the sandbox runs.
Reads stdin when the file is "-" or omitted.

Examples:
  tsxlive compile app.tsx
  tsxlive compile app.tsx -o app.js --minify
  cat app.jsx | tsxlive compile --language jsx`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	addCompileFlags(compileCmd.Flags())
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "", "write the module to a file instead of stdout")
}

func runCompile(cmd *cobra.Command, args []string) error {
	if err := bindCompileFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := "-"
	if len(args) == 1 {
		path = args[0]
	}
	langFlag, _ := cmd.Flags().GetString("language")
	doc, err := readSource(cmd, path, langFlag)
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure compiler: %w", err)
	}

	code, err := engine.Compile(doc.Source, doc.Language)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), errors.DiagnosticFrom(err).String())
		return fmt.Errorf("compilation failed")
	}

	if compileOutput == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), code)
		return err
	}
	if err := os.WriteFile(compileOutput, []byte(code), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", compileOutput, err)
	}
	return nil
}
