package transform

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tsxlive/internal/errors"
	"github.com/conneroisu/tsxlive/internal/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := New(DefaultOptions())
	require.NoError(t, err)
	return engine
}

func TestCompileTSXRewritesJSXToUIGlobal(t *testing.T) {
	engine := newTestEngine(t)

	code, err := engine.Compile("<Table data={[]} />", types.LanguageTSX)
	require.NoError(t, err)

	assert.Contains(t, code, "React.createElement(Table, { data: [] })")
	assert.Contains(t, code, "define.amd")
	assert.Contains(t, code, `"react":"React"`)
	assert.Contains(t, code, `"@ant-design/plots":"Charts"`)
}

func TestCompileStripsTypeAnnotations(t *testing.T) {
	engine := newTestEngine(t)

	source := `
interface Props { title: string }
const count: number = 3;
function Title(props: Props): any { return <h1>{props.title}</h1>; }
export default Title;
`
	code, err := engine.Compile(source, types.LanguageTSX)
	require.NoError(t, err)

	assert.NotContains(t, code, "interface Props")
	assert.NotContains(t, code, ": number")
	assert.Contains(t, code, "React.createElement(\"h1\"")
}

func TestCompileRewritesKnownImportsToRequireShim(t *testing.T) {
	engine := newTestEngine(t)

	source := `
import React from "react";
import { createRoot } from "react-dom/client";
import { Line } from "@ant-design/plots";

createRoot(document.getElementById("sandbox")).render(<Line data={[]} />);
`
	code, err := engine.Compile(source, types.LanguageTSX)
	require.NoError(t, err)

	assert.Contains(t, code, `require("react")`)
	assert.Contains(t, code, `require("react-dom/client")`)
	assert.Contains(t, code, `require("@ant-design/plots")`)
	assert.True(t, strings.HasPrefix(code, "(function (global, factory) {"))
}

func TestCompileSyntaxErrorProducesStructuredDiagnostic(t *testing.T) {
	engine := newTestEngine(t)

	code, err := engine.Compile("const x = ;", types.LanguageTSX)
	require.Error(t, err)
	assert.Empty(t, code)
	assert.True(t, errors.IsCompileError(err))

	diag := errors.DiagnosticFrom(err)
	assert.True(t, diag.Structured)
	assert.Equal(t, DefaultFilename, diag.File)
	assert.Equal(t, 1, diag.Line)
	assert.Greater(t, diag.Column, 0)
	assert.Contains(t, diag.Description, "Unexpected")
}

func TestCompileUnknownImportFails(t *testing.T) {
	engine := newTestEngine(t)

	for _, source := range []string{
		`import _ from "lodash"; console.log(_);`,
		`import { helper } from "./helper"; helper();`,
	} {
		_, err := engine.Compile(source, types.LanguageTSX)
		require.Error(t, err, source)

		diag := errors.DiagnosticFrom(err)
		assert.Contains(t, diag.Message, "Could not resolve")
	}
}

func TestCompileLanguages(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Compile("const a: number = 1;", types.LanguageTypeScript)
	assert.NoError(t, err)

	_, err = engine.Compile("const a = <div />;", types.LanguageJSX)
	assert.NoError(t, err)

	_, err = engine.Compile("const a = 1;", types.LanguageJavaScript)
	assert.NoError(t, err)

	_, err = engine.Compile("const a: number = 1;", types.LanguageJavaScript)
	assert.Error(t, err)

	_, err = engine.Compile("const a = 1;", types.Language("ruby"))
	require.Error(t, err)
	var pe *errors.PipelineError
	require.True(t, stderrors.As(err, &pe))
	assert.Equal(t, errors.ErrorTypeValidation, pe.Type)
	assert.NotNil(t, pe.Diagnostic)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Target: "es1999"})
	assert.Error(t, err)

	_, err = New(Options{Globals: map[string]string{"react": "not-an-identifier"}})
	assert.Error(t, err)

	engine, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultFilename, engine.Options().Filename)
	assert.Equal(t, "React.createElement", engine.Options().JSXFactory)
	assert.Equal(t, "React.Fragment", engine.Options().JSXFragment)
}

func TestCustomGlobalsDriveJSXFactory(t *testing.T) {
	engine, err := New(Options{Globals: map[string]string{"react": "UILibrary"}})
	require.NoError(t, err)

	code, err := engine.Compile("<Table data={[]} />", types.LanguageTSX)
	require.NoError(t, err)
	assert.Contains(t, code, "UILibrary.createElement(Table")
}

func TestFingerprint(t *testing.T) {
	a, err := New(DefaultOptions())
	require.NoError(t, err)
	b, err := New(DefaultOptions())
	require.NoError(t, err)
	c, err := New(Options{Target: "esnext"})
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)
}
