// Package worker provides the compile worker channel: an isolated set of
// goroutines that own the transform engine, receive tagged compile requests
// and deliver tagged results asynchronously.
//
// The channel starts lazily on the first Submit, is reused for every later
// request and must be disposed by its owner. Results are delivered in
// completion order, which with more than one worker is not submission order;
// consumers must match results by request id.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conneroisu/tsxlive/internal/cache"
	"github.com/conneroisu/tsxlive/internal/errors"
	"github.com/conneroisu/tsxlive/internal/logging"
	"github.com/conneroisu/tsxlive/internal/types"
)

// Compiler is the engine hosted by the channel.
type Compiler interface {
	Compile(source string, lang types.Language) (string, error)
}

// fingerprinter is implemented by compilers whose output depends on a preset.
type fingerprinter interface {
	Fingerprint() string
}

// ResultHandler receives every completed compile.
type ResultHandler func(result types.CompileResult)

const (
	defaultWorkers   = 1
	defaultQueueSize = 64
)

// Channel is the asynchronous compile request/response channel.
type Channel struct {
	compiler  Compiler
	workers   int
	queueSize int
	cache     *cache.Cache
	metrics   *Metrics
	logger    logging.Logger

	// mu guards lifecycle state and the handler list.
	mu       sync.Mutex
	queue    chan types.CompileRequest
	handlers []ResultHandler
	started  bool
	disposed bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures a Channel.
type Option func(*Channel)

// WithWorkers sets the number of compile goroutines.
func WithWorkers(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize bounds the number of requests waiting for a worker.
func WithQueueSize(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithCache enables the compile-output cache.
func WithCache(cc *cache.Cache) Option {
	return func(c *Channel) {
		c.cache = cc
	}
}

// WithMetrics records compile statistics into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

// WithLogger sets the channel logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChannel creates a channel around compiler. No goroutines run until the
// first Submit.
func NewChannel(compiler Compiler, opts ...Option) *Channel {
	c := &Channel{
		compiler:  compiler,
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		metrics:   NewMetrics(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("worker")

	return c
}

// OnResult registers a handler for completed compiles.
func (c *Channel) OnResult(handler ResultHandler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// Submit enqueues req without blocking. A full queue produces a tagged
// Failure instead of blocking the caller.
func (c *Channel) Submit(req types.CompileRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		c.logger.Warn(context.Background(), nil, "Submit after dispose dropped", "request_id", req.ID)
		return
	}
	c.startLocked()

	select {
	case c.queue <- req:
	default:
		// wg.Add happens under mu before Dispose can reach wg.Wait.
		c.wg.Add(1)
		ctx := c.ctx
		go func() {
			defer c.wg.Done()
			err := errors.NewChannelError(errors.ErrCodeQueueFull,
				fmt.Sprintf("compile queue full (%d pending)", c.queueSize))
			c.metrics.RecordDropped()
			c.deliver(ctx, types.Failure(req.ID, types.Diagnostic{Message: err.Error()}))
		}()
	}
}

// startLocked spins up the workers exactly once. c.mu must be held.
func (c *Channel) startLocked() {
	if c.started {
		return
	}
	c.started = true
	c.queue = make(chan types.CompileRequest, c.queueSize)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(c.ctx, i)
	}
	c.logger.Debug(c.ctx, "Compile workers started", "workers", c.workers)
}

// Dispose stops the workers and waits for them. It is safe to call more than
// once and on a channel that never started.
func (c *Channel) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	started := c.started
	cancel := c.cancel
	c.mu.Unlock()

	if !started {
		return
	}

	cancel()
	c.wg.Wait()
	c.logger.Debug(context.Background(), "Compile workers stopped")
}

// Started reports whether the workers have been created.
func (c *Channel) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Disposed reports whether Dispose has been called.
func (c *Channel) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Metrics returns the channel's compile statistics.
func (c *Channel) Metrics() *Metrics {
	return c.metrics
}

func (c *Channel) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	defer c.logger.Debug(context.Background(), "Compile worker exiting", "worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.queue:
			result := c.process(req)
			c.deliver(ctx, result)
		}
	}
}

// process compiles one request. It never panics: compiler panics become
// tagged Failures.
func (c *Channel) process(req types.CompileRequest) (result types.CompileResult) {
	start := time.Now()
	cacheHit := false

	defer func() {
		if r := recover(); r != nil {
			err := errors.NewInternalError(errors.ErrCodeCompilerPanic,
				"compiler panicked", fmt.Errorf("%v", r))
			c.logger.Error(context.Background(), err, "Recovered compiler panic", "request_id", req.ID)
			result = types.Failure(req.ID, types.Diagnostic{Message: err.Error()})
		}
		c.metrics.Record(result, cacheHit, time.Since(start))
	}()

	key := ""
	if c.cache != nil {
		fingerprint := ""
		if fp, ok := c.compiler.(fingerprinter); ok {
			fingerprint = fp.Fingerprint()
		}
		key = cache.Key(fingerprint, req.Language, req.Source)
		if code, ok := c.cache.Get(key); ok {
			cacheHit = true
			return types.Success(req.ID, code)
		}
	}

	code, err := c.compiler.Compile(req.Source, req.Language)
	if err != nil {
		errors.Report(context.Background(), c.logger, err)
		return types.Failure(req.ID, errors.DiagnosticFrom(err))
	}

	if c.cache != nil {
		c.cache.Set(key, code)
	}

	return types.Success(req.ID, code)
}

func (c *Channel) deliver(ctx context.Context, result types.CompileResult) {
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	handlers := make([]ResultHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(result)
	}
}
