package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorFormatting(t *testing.T) {
	err := NewRuntimeError(ErrCodeRuntimeException, "script threw", errors.New("ReferenceError: x is not defined")).
		WithLocation("sandbox-script.js", 4, 2)

	assert.Equal(t,
		"[ERR_RUNTIME_EXCEPTION] sandbox-script.js:4:2 script threw: ReferenceError: x is not defined",
		err.Error())
	assert.True(t, IsRuntimeError(err))
	assert.False(t, IsCompileError(err))
}

func TestPipelineErrorCauseRepeatingMessage(t *testing.T) {
	cause := errors.New("ReferenceError: Table is not defined at sandbox-script.js:17:37(3)")
	err := NewRuntimeError(ErrCodeRuntimeException, "ReferenceError: Table is not defined", cause)

	assert.Equal(t,
		"[ERR_RUNTIME_EXCEPTION] ReferenceError: Table is not defined at sandbox-script.js:17:37(3)",
		err.Error())
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestPipelineErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewChannelError(ErrCodeQueueFull, "queue full"))

	assert.True(t, errors.Is(err, &PipelineError{Type: ErrorTypeChannel, Code: ErrCodeQueueFull}))
	assert.False(t, errors.Is(err, &PipelineError{Type: ErrorTypeChannel, Code: ErrCodeCompilerPanic}))
}

func TestNewCompileErrorCarriesDiagnostic(t *testing.T) {
	err := NewCompileError("userCode.tsx: Unexpected \";\" (1:10)", nil)

	require.NotNil(t, err.Diagnostic)
	assert.True(t, err.Diagnostic.Structured)
	assert.Equal(t, "userCode.tsx", err.File)
	assert.Equal(t, 1, err.Line)
	assert.Equal(t, 10, err.Column)
	assert.True(t, IsCompileError(err))
}

func TestDiagnosticFrom(t *testing.T) {
	t.Run("pipeline error", func(t *testing.T) {
		diag := DiagnosticFrom(fmt.Errorf("compile: %w", NewCompileError("a.tsx: bad (2:3)", nil)))
		assert.True(t, diag.Structured)
		assert.Equal(t, "bad", diag.Description)
	})

	t.Run("plain error falls back to parsing", func(t *testing.T) {
		diag := DiagnosticFrom(errors.New("worker crashed"))
		assert.False(t, diag.Structured)
		assert.Equal(t, "worker crashed", diag.Message)
	})

	t.Run("nil error", func(t *testing.T) {
		assert.Equal(t, "", DiagnosticFrom(nil).Message)
	})
}

type recordingLogger struct {
	errors []string
	warns  []string
}

func (r *recordingLogger) Error(_ context.Context, _ error, msg string, _ ...interface{}) {
	r.errors = append(r.errors, msg)
}

func (r *recordingLogger) Warn(_ context.Context, _ error, msg string, _ ...interface{}) {
	r.warns = append(r.warns, msg)
}

func TestReport(t *testing.T) {
	logger := &recordingLogger{}

	Report(context.Background(), logger, NewCompileError("bad", nil))
	Report(context.Background(), logger, NewInternalError(ErrCodeCompilerPanic, "panic", nil))
	Report(context.Background(), logger, errors.New("plain"))
	Report(context.Background(), logger, nil)

	assert.Len(t, logger.warns, 1)
	assert.Len(t, logger.errors, 2)
}
