// Package transform compiles TSX/TypeScript/JSX source into a UMD module
// body that runs without any bundler support.
//
// The engine wraps esbuild's build API. A fixed preset (loaders, JSX factory,
// target and the package-to-global table) is configured once in New and every
// Compile call is a pure function of its inputs.
package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/tsxlive/internal/errors"
	"github.com/conneroisu/tsxlive/internal/types"
)

// DefaultFilename is the name compiled sources carry in diagnostics.
const DefaultFilename = "userCode.tsx"

// Options configures the compile preset.
type Options struct {
	// Filename is reported in diagnostics.
	Filename string
	// Target is an ECMAScript version such as "es2017" or "esnext".
	Target string
	// Globals maps importable package names to host global identifiers.
	Globals map[string]string
	// JSXFactory defaults to "<global for react>.createElement".
	JSXFactory string
	// JSXFragment defaults to "<global for react>.Fragment".
	JSXFragment string
	// Minify shrinks whitespace and identifiers in the output.
	Minify bool
}

// DefaultOptions returns the preset used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Filename: DefaultFilename,
		Target:   "es2017",
		Globals:  types.DefaultGlobals(),
	}
}

// Engine is a configured source-to-source compiler. It is safe for
// concurrent use.
type Engine struct {
	opts        Options
	target      api.Target
	externals   []string
	globalsJSON string
	fingerprint string
}

// New validates opts and builds the preset.
func New(opts Options) (*Engine, error) {
	defaults := DefaultOptions()
	if opts.Filename == "" {
		opts.Filename = defaults.Filename
	}
	if opts.Target == "" {
		opts.Target = defaults.Target
	}
	if len(opts.Globals) == 0 {
		opts.Globals = defaults.Globals
	}

	target, err := parseTarget(opts.Target)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}

	for pkg, global := range opts.Globals {
		if !IsIdentifier(global) {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("global %q for package %q is not a valid identifier", global, pkg))
		}
	}

	uiGlobal, ok := opts.Globals[types.PackageUILibrary]
	if !ok {
		uiGlobal = types.GlobalUILibrary
	}
	if opts.JSXFactory == "" {
		opts.JSXFactory = uiGlobal + ".createElement"
	}
	if opts.JSXFragment == "" {
		opts.JSXFragment = uiGlobal + ".Fragment"
	}

	externals := make([]string, 0, len(opts.Globals))
	for pkg := range opts.Globals {
		externals = append(externals, pkg)
	}
	sort.Strings(externals)

	// encoding/json sorts map keys, so the table is deterministic.
	globalsJSON, err := json.Marshal(opts.Globals)
	if err != nil {
		return nil, fmt.Errorf("encoding globals: %w", err)
	}

	e := &Engine{
		opts:        opts,
		target:      target,
		externals:   externals,
		globalsJSON: string(globalsJSON),
	}
	e.fingerprint = e.computeFingerprint()

	return e, nil
}

// Options returns the effective preset.
func (e *Engine) Options() Options {
	return e.opts
}

// Fingerprint identifies the preset so cached outputs from a different
// configuration are never reused.
func (e *Engine) Fingerprint() string {
	return e.fingerprint
}

// Compile transpiles source. On failure the error is a *errors.PipelineError
// of type compile whose Diagnostic describes the first problem.
func (e *Engine) Compile(source string, lang types.Language) (string, error) {
	loader, err := loaderFor(lang)
	if err != nil {
		return "", err
	}

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   source,
			Sourcefile: e.opts.Filename,
			Loader:     loader,
		},
		Bundle:            true,
		TreeShaking:       api.TreeShakingFalse,
		External:          e.externals,
		Format:            api.FormatCommonJS,
		Platform:          api.PlatformNeutral,
		Target:            e.target,
		JSX:               api.JSXTransform,
		JSXFactory:        e.opts.JSXFactory,
		JSXFragment:       e.opts.JSXFragment,
		MinifyWhitespace:  e.opts.Minify,
		MinifyIdentifiers: e.opts.Minify,
		MinifySyntax:      e.opts.Minify,
		Charset:           api.CharsetUTF8,
		LogLevel:          api.LogLevelSilent,
		Write:             false,
	})

	if len(result.Errors) > 0 {
		return "", compileError(result.Errors)
	}
	if len(result.OutputFiles) == 0 {
		return "", errors.NewInternalError(errors.ErrCodeCompileFailed, "compiler produced no output", nil)
	}

	return wrapUMD(string(result.OutputFiles[0].Contents), e.globalsJSON), nil
}

func (e *Engine) computeFingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%t\x00%s",
		e.opts.Filename, e.opts.Target, e.opts.JSXFactory, e.opts.JSXFragment, e.opts.Minify, e.globalsJSON)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// compileError converts esbuild messages into the pipeline error shape.
func compileError(msgs []api.Message) *errors.PipelineError {
	first := msgs[0]

	var message string
	if loc := first.Location; loc != nil && loc.File != "" {
		message = errors.FormatLocated(loc.File, first.Text, loc.Line, loc.Column)
	} else {
		message = first.Text
	}

	pe := errors.NewCompileError(message, nil)
	if len(msgs) > 1 {
		pe.WithContext("additional_errors", len(msgs)-1)
	}
	if first.Location != nil && first.Location.LineText != "" {
		pe.WithContext("line_text", first.Location.LineText)
	}

	return pe
}

func loaderFor(lang types.Language) (api.Loader, error) {
	switch lang {
	case "", types.LanguageTSX:
		return api.LoaderTSX, nil
	case types.LanguageTypeScript:
		return api.LoaderTS, nil
	case types.LanguageJSX:
		return api.LoaderJSX, nil
	case types.LanguageJavaScript:
		return api.LoaderJS, nil
	default:
		return api.LoaderNone, errors.NewValidationError(errors.ErrCodeUnsupportedLang,
			fmt.Sprintf("unsupported language %q", lang)).
			WithDiagnostic(types.Diagnostic{Message: fmt.Sprintf("unsupported language %q", lang)})
	}
}

// ValidTarget reports whether s names a supported output target.
func ValidTarget(s string) bool {
	_, err := parseTarget(s)
	return err == nil
}

func parseTarget(s string) (api.Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "es2015", "es6":
		return api.ES2015, nil
	case "es2016":
		return api.ES2016, nil
	case "es2017":
		return api.ES2017, nil
	case "es2018":
		return api.ES2018, nil
	case "es2019":
		return api.ES2019, nil
	case "es2020":
		return api.ES2020, nil
	case "es2021":
		return api.ES2021, nil
	case "es2022":
		return api.ES2022, nil
	case "esnext":
		return api.ESNext, nil
	default:
		return api.DefaultTarget, fmt.Errorf("unsupported target %q", s)
	}
}

// IsIdentifier reports whether s can name a global binding.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
