// Package dispatch turns a stream of editor changes into compile requests.
//
// The Dispatcher applies a trailing debounce: every change restarts a quiet
// period timer and only the last document of a burst is submitted. Each
// submission gets the next id from a monotonic counter, and results are
// forwarded only when they carry the id of the most recent submission.
// There is no mid-compile cancellation; superseded requests still run in
// the channel and their results are dropped here.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/tsxlive/internal/logging"
	"github.com/conneroisu/tsxlive/internal/types"
	"github.com/conneroisu/tsxlive/internal/worker"
)

// DefaultDelay is the debounce quiet period.
const DefaultDelay = 500 * time.Millisecond

// Channel is the compile worker channel as seen by the dispatcher.
type Channel interface {
	Submit(req types.CompileRequest)
	OnResult(handler worker.ResultHandler)
	Dispose()
}

// Sink receives the results that survive stale filtering.
type Sink interface {
	Compiled(id types.RequestID, code string)
	Failed(id types.RequestID, diag types.Diagnostic)
}

// State is the dispatcher lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePendingSubmit
	StateAwaitingResult
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingSubmit:
		return "pending_submit"
	case StateAwaitingResult:
		return "awaiting_result"
	default:
		return "unknown"
	}
}

// Dispatcher coalesces edits and filters stale results.
type Dispatcher struct {
	channel Channel
	sink    Sink
	delay   time.Duration
	logger  logging.Logger

	mu       sync.Mutex
	state    State
	pending  types.SourceDocument
	timer    *time.Timer
	timerGen uint64
	nextID   types.RequestID
	latest   types.RequestID
	closed   bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDelay overrides the quiet period.
func WithDelay(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.delay = d
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger logging.Logger) Option {
	return func(disp *Dispatcher) {
		if logger != nil {
			disp.logger = logger
		}
	}
}

// New wires a dispatcher to ch and sink. The channel is not touched until
// the first submission, so an unused dispatcher never starts workers.
func New(ch Channel, sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		channel: ch,
		sink:    sink,
		delay:   DefaultDelay,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithComponent("dispatcher")

	ch.OnResult(d.handleResult)

	return d
}

// Update records a new document and restarts the quiet period. An empty
// document cancels any scheduled submission, submits nothing and makes
// any in-flight result stale.
func (d *Dispatcher) Update(doc types.SourceDocument) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.stopTimerLocked()

	if doc.Empty() {
		// No document: nothing pending, and an in-flight result is stale.
		// Id 0 is never issued, so no result can match it.
		d.pending = types.SourceDocument{}
		d.latest = 0
		d.state = StateIdle
		return
	}

	d.pending = doc
	d.state = StatePendingSubmit
	d.timerGen++
	gen := d.timerGen
	d.timer = time.AfterFunc(d.delay, func() {
		d.fire(gen)
	})
}

// Flush submits a scheduled document immediately.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	if d.closed || d.state != StatePendingSubmit {
		d.mu.Unlock()
		return
	}
	d.stopTimerLocked()
	req := d.buildRequestLocked()
	d.mu.Unlock()

	d.channel.Submit(req)
}

// fire runs when a quiet period elapses.
func (d *Dispatcher) fire(gen uint64) {
	d.mu.Lock()
	// A superseded timer may still fire if Stop lost the race.
	if d.closed || gen != d.timerGen || d.state != StatePendingSubmit {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	req := d.buildRequestLocked()
	d.mu.Unlock()

	d.logger.Debug(context.Background(), "Submitting compile request",
		"request_id", req.ID, "language", req.Language, "bytes", len(req.Source))
	d.channel.Submit(req)
}

func (d *Dispatcher) buildRequestLocked() types.CompileRequest {
	d.nextID++
	lang := d.pending.Language
	if lang == "" {
		lang = types.DefaultLanguage
	}
	req := types.CompileRequest{
		ID:       d.nextID,
		Source:   d.pending.Source,
		Language: lang,
	}
	d.latest = req.ID
	d.pending = types.SourceDocument{}
	d.state = StateAwaitingResult
	return req
}

func (d *Dispatcher) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	// Invalidate any callback that already fired but has not run yet.
	d.timerGen++
}

// handleResult is registered on the channel.
func (d *Dispatcher) handleResult(result types.CompileResult) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if result.ID != d.latest {
		latest := d.latest
		d.mu.Unlock()
		d.logger.Debug(context.Background(), "Dropping stale compile result",
			"request_id", result.ID, "latest", latest)
		return
	}
	if d.state == StateAwaitingResult {
		d.state = StateIdle
	}
	d.mu.Unlock()

	if result.OK() {
		d.sink.Compiled(result.ID, result.Code)
		return
	}
	d.sink.Failed(result.ID, *result.Diagnostic)
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Latest returns the id of the most recent submission, or zero before the
// first one and after the document is cleared.
func (d *Dispatcher) Latest() types.RequestID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest
}

// Close cancels pending work and disposes the channel. Safe to call more
// than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.stopTimerLocked()
	d.state = StateIdle
	d.mu.Unlock()

	d.channel.Dispose()
}
