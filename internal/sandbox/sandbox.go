// Package sandbox executes compiled preview code in an embedded JavaScript
// runtime and records what it renders.
//
// A Sandbox owns one goja runtime and one Surface. Every Run replaces the
// previously mounted unit, hides the AMD `define` hook for the duration of
// the script so UMD bundles take their globals branch, and never lets a
// script failure escape to the caller.
package sandbox

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/conneroisu/tsxlive/internal/errors"
	"github.com/conneroisu/tsxlive/internal/logging"
	"github.com/conneroisu/tsxlive/internal/types"
)

const (
	// DefaultScriptID names the mounted execution unit.
	DefaultScriptID = "sandbox-script"
	// DefaultTimeout bounds a single Run.
	DefaultTimeout = 2 * time.Second

	maxLogEntries = 200
)

// LogEntry is one console call made by a script.
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Execution describes one Run.
type Execution struct {
	UnitID   string        `json:"unit_id"`
	Seq      uint64        `json:"seq"`
	Err      error         `json:"-"`
	Logs     []LogEntry    `json:"logs,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the script completed without an exception.
func (e Execution) OK() bool {
	return e.Err == nil
}

// Sandbox runs compiled code. Runs are serialized.
type Sandbox struct {
	scriptID string
	timeout  time.Duration
	globals  map[string]string
	logger   logging.Logger
	surface  *Surface

	mu     sync.Mutex
	vm     *goja.Runtime
	logs   []LogEntry
	closed bool
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithScriptID overrides the unit id.
func WithScriptID(id string) Option {
	return func(s *Sandbox) {
		if id != "" {
			s.scriptID = id
		}
	}
}

// WithTimeout overrides the per-run time limit. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *Sandbox) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// WithGlobals sets the package-to-global table the host binds. It must
// match the table the code was compiled with.
func WithGlobals(globals map[string]string) Option {
	return func(s *Sandbox) {
		if len(globals) > 0 {
			s.globals = globals
		}
	}
}

// WithSurface renders into an existing surface.
func WithSurface(surface *Surface) Option {
	return func(s *Sandbox) {
		if surface != nil {
			s.surface = surface
		}
	}
}

// WithLogger sets the sandbox logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Sandbox) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a sandbox and evaluates the host prelude.
func New(opts ...Option) (*Sandbox, error) {
	s := &Sandbox{
		scriptID: DefaultScriptID,
		timeout:  DefaultTimeout,
		globals:  types.DefaultGlobals(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.surface == nil {
		s.surface = NewSurface()
	}
	s.logger = s.logger.WithComponent("sandbox")

	if err := s.init(); err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeRuntimeException, "initializing sandbox runtime", err)
	}
	return s, nil
}

func (s *Sandbox) init() error {
	vm := goja.New()
	s.vm = vm

	value, err := vm.RunScript("prelude.js", prelude)
	if err != nil {
		return fmt.Errorf("evaluating prelude: %w", err)
	}
	factory, ok := goja.AssertFunction(value)
	if !ok {
		return fmt.Errorf("prelude did not return a function")
	}
	result, err := factory(goja.Undefined(), s.hostObject())
	if err != nil {
		return fmt.Errorf("building builtins: %w", err)
	}
	builtins := result.ToObject(vm)

	if err := vm.Set("window", vm.GlobalObject()); err != nil {
		return err
	}
	for _, name := range []string{"console", "document"} {
		if err := vm.Set(name, builtins.Get(name)); err != nil {
			return err
		}
	}

	for pkg, global := range s.globals {
		kind := builtinFor(pkg)
		if kind == "" {
			s.logger.Warn(context.Background(), nil, "No host library for package, binding empty object",
				"package", pkg, "global", global)
			if err := vm.Set(global, vm.NewObject()); err != nil {
				return err
			}
			continue
		}
		if err := vm.Set(global, builtins.Get(kind)); err != nil {
			return err
		}
	}
	return nil
}

func builtinFor(pkg string) string {
	switch pkg {
	case types.PackageUILibrary:
		return "ui"
	case types.PackageUIDOM, types.PackageUIDOMClient:
		return "dom"
	case types.PackageChartLibrary:
		return "charts"
	default:
		return ""
	}
}

// hostObject exposes the surface to the prelude. Callbacks run on the
// goroutine executing Run, which holds s.mu.
func (s *Sandbox) hostObject() *goja.Object {
	vm := s.vm
	host := vm.NewObject()

	_ = host.Set("render", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		root := nodeFromValue(call.Argument(1).Export())
		if err := s.surface.render(id, root); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	})
	_ = host.Set("clear", func(call goja.FunctionCall) goja.Value {
		s.surface.clear(call.Argument(0).String())
		return goja.Undefined()
	})
	_ = host.Set("hasContainer", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(s.surface.HasContainer(call.Argument(0).String()))
	})
	_ = host.Set("log", func(call goja.FunctionCall) goja.Value {
		s.appendLog(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})

	return host
}

func (s *Sandbox) appendLog(level, message string) {
	if len(s.logs) >= maxLogEntries {
		return
	}
	s.logs = append(s.logs, LogEntry{Level: level, Message: message})
	s.logger.Debug(context.Background(), "Script console output",
		"level", level, "message", logging.Truncate(message, 512))
}

// Surface returns the rendering surface.
func (s *Sandbox) Surface() *Surface {
	return s.surface
}

// ScriptID returns the id every mounted unit carries.
func (s *Sandbox) ScriptID() string {
	return s.scriptID
}

// Run replaces the mounted unit with code and executes it. Script errors
// are reported in Execution.Err and logged, never returned.
func (s *Sandbox) Run(ctx context.Context, code string) (exec Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if s.closed {
		exec.Err = errors.NewRuntimeError(errors.ErrCodeRuntimeException, "sandbox is closed", nil)
		return exec
	}

	s.surface.Unmount(s.scriptID)
	unit := s.surface.Mount(s.scriptID)
	exec.UnitID = unit.ID
	exec.Seq = unit.Seq
	s.logs = nil

	defer func() {
		exec.Logs = s.logs
		s.logs = nil
		exec.Duration = time.Since(start)
		if exec.Err != nil {
			s.logger.Warn(ctx, exec.Err, "Script raised an error", "unit", exec.UnitID, "seq", exec.Seq)
		}
	}()

	exec.Err = s.execute(ctx, code)
	return exec
}

func (s *Sandbox) execute(ctx context.Context, code string) (err error) {
	restore := s.hideDefine()
	defer restore()

	defer func() {
		if r := recover(); r != nil {
			err = errors.NewRuntimeError(errors.ErrCodeRuntimeException, fmt.Sprintf("sandbox panic: %v", r), nil)
			s.appendLog("error", err.Error())
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	stop := s.watch(ctx)
	defer stop()

	// Strict like a module script: an undeclared assignment throws instead of
	// creating a global that outlives the unit.
	_, runErr := s.vm.RunScript(s.scriptID+".js", "(function () {\"use strict\";\n"+code+"\n})();")
	if runErr == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if stderrors.As(runErr, &interrupted) {
		return errors.NewRuntimeError(errors.ErrCodeRuntimeTimeout,
			fmt.Sprintf("execution interrupted: %v", interrupted.Value()), runErr)
	}

	message := runErr.Error()
	var exception *goja.Exception
	if stderrors.As(runErr, &exception) && exception.Value() != nil {
		message = exception.Value().String()
	}
	s.appendLog("error", message)
	return errors.NewRuntimeError(errors.ErrCodeRuntimeException, message, runErr)
}

// hideDefine nulls the global define hook and returns the function that
// puts it back exactly as it was.
func (s *Sandbox) hideDefine() func() {
	global := s.vm.GlobalObject()
	previous := global.Get("define")
	_ = global.Set("define", goja.Null())

	return func() {
		if previous == nil {
			_ = global.Delete("define")
			return
		}
		_ = global.Set("define", previous)
	}
}

// watch interrupts the runtime when ctx ends. The returned function must be
// called once the script has returned.
func (s *Sandbox) watch(ctx context.Context) func() {
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			s.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	return func() {
		close(done)
		<-exited
		s.vm.ClearInterrupt()
	}
}

// Close interrupts any running script and unmounts the unit. Safe to call
// more than once.
func (s *Sandbox) Close() {
	s.vm.Interrupt("sandbox closed")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.surface.Unmount(s.scriptID)
	s.vm.ClearInterrupt()
}
