package preview

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tsxlive/internal/cache"
	"github.com/conneroisu/tsxlive/internal/dispatch"
	"github.com/conneroisu/tsxlive/internal/sandbox"
	"github.com/conneroisu/tsxlive/internal/transform"
	"github.com/conneroisu/tsxlive/internal/types"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) listen(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (l *eventLog) last(kind EventKind) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Kind == kind {
			return l.events[i], true
		}
	}
	return Event{}, false
}

func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, *eventLog) {
	t.Helper()
	engine, err := transform.New(transform.DefaultOptions())
	require.NoError(t, err)
	sb, err := sandbox.New()
	require.NoError(t, err)

	log := &eventLog{}
	opts = append([]Option{WithDelay(10 * time.Millisecond), WithSandbox(sb), WithListener(log.listen)}, opts...)
	p := New(engine, opts...)
	t.Cleanup(p.Close)
	return p, log
}

func tsx(src string) types.SourceDocument {
	return types.SourceDocument{Source: src, Language: types.LanguageTSX}
}

func TestPipelineCompilesAndRenders(t *testing.T) {
	p, log := newTestPipeline(t)

	p.Update(tsx(`
import { createRoot } from "react-dom/client";
createRoot(document.getElementById("sandbox")).render(<h2>Live</h2>);
`))

	require.Eventually(t, func() bool {
		_, ok := log.last(EventRendered)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []EventKind{EventCompiled, EventRendered}, log.kinds())

	rendered, _ := log.last(EventRendered)
	assert.Equal(t, types.RequestID(1), rendered.RequestID)
	require.NotNil(t, rendered.Execution)
	assert.NoError(t, rendered.Execution.Err)
	assert.Equal(t, `<div id="sandbox"><h2>Live</h2></div>`, rendered.HTML)
	assert.Equal(t, dispatch.StateIdle, p.State())
	assert.Equal(t, "Live", p.Surface().Root(sandbox.DefaultContainerID).TextContent())
}

func TestPipelineReportsDiagnostics(t *testing.T) {
	p, log := newTestPipeline(t)

	p.Update(tsx("const x = ;"))

	require.Eventually(t, func() bool {
		_, ok := log.last(EventDiagnostic)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	ev, _ := log.last(EventDiagnostic)
	require.NotNil(t, ev.Diagnostic)
	assert.True(t, ev.Diagnostic.Structured)
	assert.Equal(t, 1, ev.Diagnostic.Line)
	assert.Equal(t, "userCode.tsx", ev.Diagnostic.File)
	assert.Equal(t, []EventKind{EventDiagnostic}, log.kinds())
}

func TestPipelineCoalescesEdits(t *testing.T) {
	p, log := newTestPipeline(t, WithDelay(40*time.Millisecond))

	for _, src := range []string{"<p>1</p>", "<p>12</p>", "<p>123</p>"} {
		p.Update(tsx(src))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		_, ok := log.last(EventCompiled)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	compiled := 0
	for _, k := range log.kinds() {
		if k == EventCompiled {
			compiled++
		}
	}
	assert.Equal(t, 1, compiled)
	assert.Equal(t, int64(1), p.Metrics().TotalCompiles)
}

func TestPipelineRuntimeErrorIsRendered(t *testing.T) {
	p, log := newTestPipeline(t)

	p.Update(tsx(`throw new Error("render blew up");`))
	p.Flush()

	require.Eventually(t, func() bool {
		_, ok := log.last(EventRendered)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	ev, _ := log.last(EventRendered)
	require.Error(t, ev.Execution.Err)
	assert.Contains(t, ev.Execution.Err.Error(), "render blew up")
}

func TestPipelineCompileOnly(t *testing.T) {
	engine, err := transform.New(transform.DefaultOptions())
	require.NoError(t, err)

	var compiled atomic.Int32
	p := New(engine, WithDelay(5*time.Millisecond), WithListener(func(ev Event) {
		if ev.Kind == EventCompiled {
			compiled.Add(1)
		}
		assert.NotEqual(t, EventRendered, ev.Kind)
	}))
	defer p.Close()

	assert.Nil(t, p.Surface())
	p.Update(tsx("<div />"))
	require.Eventually(t, func() bool { return compiled.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestPipelineCacheSharedAcrossSubmissions(t *testing.T) {
	c := cache.New(1<<20, 0)
	p, log := newTestPipeline(t, WithCache(c))

	for i := 0; i < 2; i++ {
		p.Update(tsx("<em>same</em>"))
		p.Flush()
		want := i + 1
		require.Eventually(t, func() bool {
			n := 0
			for _, k := range log.kinds() {
				if k == EventRendered {
					n++
				}
			}
			return n == want
		}, 5*time.Second, 10*time.Millisecond)
	}

	assert.Equal(t, int64(1), p.Metrics().CacheHits)
}

func TestPipelineCloseIsIdempotent(t *testing.T) {
	p, log := newTestPipeline(t, WithDelay(20*time.Millisecond))

	p.Update(tsx("<p>never</p>"))
	p.Close()
	p.Close()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, log.kinds())
	assert.Empty(t, p.Surface().Units())

	p.Update(tsx("<p>after</p>"))
	p.Flush()
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, log.kinds())
}

func TestPipelineCloseWithoutUse(t *testing.T) {
	engine, err := transform.New(transform.DefaultOptions())
	require.NoError(t, err)

	p := New(engine)
	assert.NotPanics(t, p.Close)
	assert.NotPanics(t, p.Close)
}
