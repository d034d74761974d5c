package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/conneroisu/tsxlive/internal/types"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeCompile    ErrorType = "compile"
	ErrorTypeRuntime    ErrorType = "runtime"
	ErrorTypeChannel    ErrorType = "channel"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeCompileFailed    = "ERR_COMPILE_FAILED"
	ErrCodeUnsupportedLang  = "ERR_UNSUPPORTED_LANGUAGE"
	ErrCodeCompilerPanic    = "ERR_COMPILER_PANIC"
	ErrCodeQueueFull        = "ERR_QUEUE_FULL"
	ErrCodeRuntimeException = "ERR_RUNTIME_EXCEPTION"
	ErrCodeRuntimeTimeout   = "ERR_RUNTIME_TIMEOUT"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
)

// PipelineError is a structured error raised by one of the preview stages.
type PipelineError struct {
	Type       ErrorType
	Code       string
	Message    string
	Cause      error
	Context    map[string]interface{}
	File       string
	Line       int
	Column     int
	Diagnostic *types.Diagnostic
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.File != "" {
		location := e.File
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	// A cause that already starts with the message only adds detail, such
	// as a script location, so it replaces the message.
	var cause string
	if e.Cause != nil {
		cause = e.Cause.Error()
	}
	if cause != "" && strings.HasPrefix(cause, e.Message) {
		return strings.Join(append(parts, cause), " ")
	}

	result := strings.Join(append(parts, e.Message), " ")
	if cause != "" {
		result += ": " + cause
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches on Type and Code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *PipelineError) WithLocation(file string, line, column int) *PipelineError {
	e.File = file
	e.Line = line
	e.Column = column

	return e
}

// WithDiagnostic attaches the user-facing diagnostic.
func (e *PipelineError) WithDiagnostic(diag types.Diagnostic) *PipelineError {
	e.Diagnostic = &diag
	if diag.Structured && e.File == "" {
		e.File, e.Line, e.Column = diag.File, diag.Line, diag.Column
	}

	return e
}

// NewCompileError creates a compile error whose message is the compiler's
// text. The diagnostic is derived from that text.
func NewCompileError(message string, cause error) *PipelineError {
	pe := &PipelineError{
		Type:    ErrorTypeCompile,
		Code:    ErrCodeCompileFailed,
		Message: message,
		Cause:   cause,
	}

	return pe.WithDiagnostic(ParseDiagnostic(message))
}

// NewRuntimeError creates a sandbox runtime error.
func NewRuntimeError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeRuntime,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewChannelError creates a worker channel error.
func NewChannelError(code, message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeChannel,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsCompileError checks if an error came from the transform engine.
func IsCompileError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeCompile
	}

	return false
}

// IsRuntimeError checks if an error came from executing compiled code.
func IsRuntimeError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == ErrorTypeRuntime
	}

	return false
}

// DiagnosticFrom converts any error into a renderable diagnostic.
func DiagnosticFrom(err error) types.Diagnostic {
	if err == nil {
		return types.Diagnostic{}
	}

	var pe *PipelineError
	if errors.As(err, &pe) && pe.Diagnostic != nil {
		return *pe.Diagnostic
	}

	return ParseDiagnostic(err.Error())
}

// Logger is the subset of logging.Logger used by the handler.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// Report logs err at a level matching its type. Compile and validation
// problems are user mistakes and are logged as warnings.
func Report(ctx context.Context, logger Logger, err error) {
	if err == nil || logger == nil {
		return
	}

	var pe *PipelineError
	if !errors.As(err, &pe) {
		logger.Error(ctx, err, "Unhandled pipeline error")
		return
	}

	switch pe.Type {
	case ErrorTypeCompile, ErrorTypeValidation, ErrorTypeRuntime:
		logger.Warn(ctx, err, "Preview error", "type", pe.Type, "code", pe.Code, "file", pe.File)
	default:
		logger.Error(ctx, err, "Pipeline error", "type", pe.Type, "code", pe.Code)
	}
}
