// Package types provides the data model shared by every stage of the preview
// pipeline. It lives in its own package to avoid import cycles between the
// dispatcher, the worker channel and the transform engine.
package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Language is the preset tag attached to a source document.
type Language string

const (
	LanguageTSX        Language = "typescript+jsx"
	LanguageTypeScript Language = "typescript"
	LanguageJSX        Language = "javascript+jsx"
	LanguageJavaScript Language = "javascript"
)

// DefaultLanguage is used when a document carries no tag.
const DefaultLanguage = LanguageTSX

// Languages lists every supported preset tag.
func Languages() []Language {
	return []Language{LanguageTSX, LanguageTypeScript, LanguageJSX, LanguageJavaScript}
}

// ParseLanguage resolves a tag or one of its short aliases.
func ParseLanguage(tag string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "", "typescript+jsx", "tsx":
		return LanguageTSX, nil
	case "typescript", "ts":
		return LanguageTypeScript, nil
	case "javascript+jsx", "jsx":
		return LanguageJSX, nil
	case "javascript", "js":
		return LanguageJavaScript, nil
	default:
		return "", fmt.Errorf("unsupported language %q", tag)
	}
}

// LanguageForFile infers the preset from a file extension.
func LanguageForFile(path string) (Language, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx":
		return LanguageTSX, true
	case ".ts", ".mts", ".cts":
		return LanguageTypeScript, true
	case ".jsx":
		return LanguageJSX, true
	case ".js", ".mjs", ".cjs":
		return LanguageJavaScript, true
	default:
		return "", false
	}
}

// Alias is the short name of the tag, such as "tsx".
func (l Language) Alias() string {
	switch l {
	case LanguageTSX:
		return "tsx"
	case LanguageTypeScript:
		return "ts"
	case LanguageJSX:
		return "jsx"
	case LanguageJavaScript:
		return "js"
	default:
		return string(l)
	}
}

// SourceDocument is the current editor contents.
type SourceDocument struct {
	Source   string   `json:"source"`
	Language Language `json:"language"`
}

// Empty reports whether there is no active document.
func (d SourceDocument) Empty() bool {
	return strings.TrimSpace(d.Source) == ""
}

// RequestID tags a compile request. Zero is never issued.
type RequestID uint64

// CompileRequest is created once per debounce settlement and never mutated.
type CompileRequest struct {
	ID       RequestID `json:"id"`
	Source   string    `json:"source"`
	Language Language  `json:"language"`
}

// Diagnostic describes a compile failure. When Structured is false only
// Message is meaningful.
type Diagnostic struct {
	Message     string `json:"message"`
	File        string `json:"file,omitempty"`
	Description string `json:"description,omitempty"`
	Line        int    `json:"line,omitempty"`
	Column      int    `json:"column,omitempty"`
	Structured  bool   `json:"structured"`
}

// String renders the diagnostic for terminals and overlays.
func (d Diagnostic) String() string {
	if !d.Structured {
		return d.Message
	}
	file := d.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d: %s", file, d.Line, d.Column, d.Description)
}

// CompileResult is either a success carrying Code or a failure carrying a
// Diagnostic, always tagged with the originating request id.
type CompileResult struct {
	ID         RequestID   `json:"id"`
	Code       string      `json:"code,omitempty"`
	Diagnostic *Diagnostic `json:"diagnostic,omitempty"`
}

// Success builds the success variant.
func Success(id RequestID, code string) CompileResult {
	return CompileResult{ID: id, Code: code}
}

// Failure builds the failure variant.
func Failure(id RequestID, diag Diagnostic) CompileResult {
	return CompileResult{ID: id, Diagnostic: &diag}
}

// OK reports whether the result is a success.
func (r CompileResult) OK() bool {
	return r.Diagnostic == nil
}
