// Package errors provides structured pipeline errors and best-effort parsing
// of compiler diagnostics.
//
// Diagnostic parsing is an enrichment: the expected shapes come from specific
// toolchains, so every parse falls back to the raw message instead of failing.
package errors

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/tsxlive/internal/types"
)

type diagnosticPattern struct {
	name        string
	regex       *regexp.Regexp
	parseFields func(matches []string) (file, description string, line, column int)
}

var diagnosticPatterns = []diagnosticPattern{
	{
		// userCode.tsx: Unexpected token (1:10)
		name:  "location-suffix",
		regex: regexp.MustCompile(`^(.*?):\s*(.*?)\s*\((\d+):(\d+)\)`),
		parseFields: func(m []string) (string, string, int, int) {
			line, _ := strconv.Atoi(m[3])
			column, _ := strconv.Atoi(m[4])
			return m[1], m[2], line, column
		},
	},
	{
		// userCode.tsx:1:10: ERROR: Unexpected ";"
		name:  "location-prefix",
		regex: regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*(?:(?:ERROR|error):\s*)?(.+)$`),
		parseFields: func(m []string) (string, string, int, int) {
			line, _ := strconv.Atoi(m[2])
			column, _ := strconv.Atoi(m[3])
			return m[1], m[4], line, column
		},
	},
}

// ParseDiagnostic extracts {file, description, line, column} from a compiler
// message. Messages that match no known shape yield an unstructured
// diagnostic carrying only the raw text.
func ParseDiagnostic(message string) types.Diagnostic {
	diag := types.Diagnostic{Message: message}

	firstLine := strings.TrimSpace(strings.SplitN(message, "\n", 2)[0])
	if firstLine == "" {
		return diag
	}

	for _, pattern := range diagnosticPatterns {
		m := pattern.regex.FindStringSubmatch(firstLine)
		if m == nil {
			continue
		}
		file, description, line, column := pattern.parseFields(m)
		if strings.TrimSpace(file) == "" || description == "" {
			continue
		}
		diag.File = strings.TrimSpace(file)
		diag.Description = description
		diag.Line = line
		diag.Column = column
		diag.Structured = true
		return diag
	}

	return diag
}

// FormatLocated renders a message in the shape ParseDiagnostic reads first.
func FormatLocated(file, description string, line, column int) string {
	return file + ": " + description + " (" + strconv.Itoa(line) + ":" + strconv.Itoa(column) + ")"
}
