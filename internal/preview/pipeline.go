// Package preview assembles the live preview pipeline: edits go through the
// dispatcher to the compile worker channel, and surviving results are
// executed in the sandbox. Listeners observe every stage as Events.
package preview

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/tsxlive/internal/cache"
	"github.com/conneroisu/tsxlive/internal/dispatch"
	"github.com/conneroisu/tsxlive/internal/logging"
	"github.com/conneroisu/tsxlive/internal/sandbox"
	"github.com/conneroisu/tsxlive/internal/types"
	"github.com/conneroisu/tsxlive/internal/worker"
)

// EventKind identifies a pipeline stage.
type EventKind string

const (
	EventCompiled   EventKind = "compiled"
	EventDiagnostic EventKind = "diagnostic"
	EventRendered   EventKind = "rendered"
)

// Event is emitted to listeners. Code is set for compiled events,
// Diagnostic for diagnostic events, and Execution plus HTML for rendered
// events.
type Event struct {
	Kind       EventKind
	RequestID  types.RequestID
	Code       string
	Diagnostic *types.Diagnostic
	Execution  *sandbox.Execution
	HTML       string
}

// Listener observes pipeline events. Listeners run on compile worker
// goroutines and must not call Close.
type Listener func(Event)

// Pipeline is one editor session's preview pipeline.
type Pipeline struct {
	dispatcher *dispatch.Dispatcher
	channel    *worker.Channel
	sandbox    *sandbox.Sandbox
	container  string
	logger     logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	listeners []Listener

	renderMu     sync.Mutex
	lastRendered types.RequestID

	closed    atomic.Bool
	closeOnce sync.Once
}

type settings struct {
	delay     time.Duration
	workers   int
	queueSize int
	cache     *cache.Cache
	metrics   *worker.Metrics
	logger    logging.Logger
	sandbox   *sandbox.Sandbox
	container string
	listeners []Listener
}

// Option configures a Pipeline.
type Option func(*settings)

// WithDelay sets the debounce quiet period.
func WithDelay(d time.Duration) Option {
	return func(s *settings) { s.delay = d }
}

// WithWorkers sets the number of compile goroutines.
func WithWorkers(n int) Option {
	return func(s *settings) { s.workers = n }
}

// WithQueueSize bounds pending compile requests.
func WithQueueSize(n int) Option {
	return func(s *settings) { s.queueSize = n }
}

// WithCache shares a compile-output cache with the pipeline.
func WithCache(c *cache.Cache) Option {
	return func(s *settings) { s.cache = c }
}

// WithMetrics records compile statistics into m.
func WithMetrics(m *worker.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithLogger sets the logger for every stage.
func WithLogger(logger logging.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithSandbox executes compiled code in sb. The pipeline takes ownership
// and closes it. Without a sandbox the pipeline only compiles.
func WithSandbox(sb *sandbox.Sandbox) Option {
	return func(s *settings) { s.sandbox = sb }
}

// WithContainer selects the container serialized into rendered events.
func WithContainer(id string) Option {
	return func(s *settings) { s.container = id }
}

// WithListener registers a listener at construction time.
func WithListener(l Listener) Option {
	return func(s *settings) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// New builds a pipeline around compiler. Nothing starts until the first
// document settles.
func New(compiler worker.Compiler, opts ...Option) *Pipeline {
	s := settings{
		delay:     dispatch.DefaultDelay,
		logger:    logging.NewNop(),
		container: sandbox.DefaultContainerID,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}

	channelOpts := []worker.Option{
		worker.WithWorkers(s.workers),
		worker.WithQueueSize(s.queueSize),
		worker.WithLogger(s.logger),
	}
	if s.cache != nil {
		channelOpts = append(channelOpts, worker.WithCache(s.cache))
	}
	if s.metrics != nil {
		channelOpts = append(channelOpts, worker.WithMetrics(s.metrics))
	}

	p := &Pipeline{
		channel:   worker.NewChannel(compiler, channelOpts...),
		sandbox:   s.sandbox,
		container: s.container,
		logger:    s.logger.WithComponent("preview"),
		listeners: s.listeners,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.dispatcher = dispatch.New(p.channel, sink{p},
		dispatch.WithDelay(s.delay),
		dispatch.WithLogger(s.logger),
	)

	return p
}

// OnEvent registers a listener.
func (p *Pipeline) OnEvent(l Listener) {
	if l == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Update feeds the current editor contents.
func (p *Pipeline) Update(doc types.SourceDocument) {
	if p.closed.Load() {
		return
	}
	p.dispatcher.Update(doc)
}

// Flush submits a pending document without waiting for the quiet period.
func (p *Pipeline) Flush() {
	p.dispatcher.Flush()
}

// State reports the dispatcher state.
func (p *Pipeline) State() dispatch.State {
	return p.dispatcher.State()
}

// Metrics returns compile statistics.
func (p *Pipeline) Metrics() worker.Metrics {
	return p.channel.Metrics().Snapshot()
}

// Surface returns the sandbox surface, or nil for compile-only pipelines.
func (p *Pipeline) Surface() *sandbox.Surface {
	if p.sandbox == nil {
		return nil
	}
	return p.sandbox.Surface()
}

// Close stops compilation, unmounts the execution unit and releases the
// workers. It is safe to call more than once.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.cancel()
		if p.sandbox != nil {
			p.sandbox.Close()
		}
		p.dispatcher.Close()
		p.logger.Debug(context.Background(), "Preview pipeline closed")
	})
}

func (p *Pipeline) emit(ev Event) {
	if p.closed.Load() {
		return
	}
	p.mu.RLock()
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (p *Pipeline) render(id types.RequestID, code string) {
	if p.sandbox == nil {
		return
	}

	p.renderMu.Lock()
	defer p.renderMu.Unlock()

	// With several workers an older result can reach here after a newer one.
	if id <= p.lastRendered || p.closed.Load() {
		return
	}
	p.lastRendered = id

	exec := p.sandbox.Run(p.ctx, code)
	p.emit(Event{
		Kind:      EventRendered,
		RequestID: id,
		Execution: &exec,
		HTML:      p.sandbox.Surface().HTML(p.container),
	})
}

// sink adapts the pipeline to dispatch.Sink.
type sink struct {
	p *Pipeline
}

func (s sink) Compiled(id types.RequestID, code string) {
	s.p.emit(Event{Kind: EventCompiled, RequestID: id, Code: code})
	s.p.render(id, code)
}

func (s sink) Failed(id types.RequestID, diag types.Diagnostic) {
	s.p.logger.Debug(context.Background(), "Compile failed", "request_id", id, "diagnostic", diag.String())
	s.p.emit(Event{Kind: EventDiagnostic, RequestID: id, Diagnostic: &diag})
}
