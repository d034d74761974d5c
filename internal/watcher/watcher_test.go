package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tsxlive/internal/types"
)

type docRecorder struct {
	mu   sync.Mutex
	docs []types.SourceDocument
}

func (r *docRecorder) update(doc types.SourceDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
}

func (r *docRecorder) last() (types.SourceDocument, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.docs) == 0 {
		return types.SourceDocument{}, false
	}
	return r.docs[len(r.docs)-1], true
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "created", EventTypeCreated.String())
	assert.Equal(t, "modified", EventTypeModified.String())
	assert.Equal(t, "deleted", EventTypeDeleted.String())
	assert.Equal(t, "renamed", EventTypeRenamed.String())
	assert.Equal(t, "unknown", EventType(99).String())
}

func TestExtensionFilter(t *testing.T) {
	filter := ExtensionFilter(".tsx", ".TS")
	assert.True(t, filter("app.tsx"))
	assert.True(t, filter("dir/lib.ts"))
	assert.True(t, filter("APP.TSX"))
	assert.False(t, filter("style.css"))
	assert.False(t, filter("noext"))
}

func TestIgnoreFilter(t *testing.T) {
	filter := IgnoreFilter("node_modules", ".git", "*.bak")
	assert.True(t, filter("src/app.tsx"))
	assert.False(t, filter("node_modules/react/index.js"))
	assert.False(t, filter("/repo/.git/HEAD"))
	assert.False(t, filter("src/app.tsx.bak"))
}

func TestSourceFeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.jsx")
	require.NoError(t, os.WriteFile(path, []byte("<div />"), 0o600))

	rec := &docRecorder{}
	feed := SourceFeed(rec.update)

	require.NoError(t, feed(ChangeEvent{Type: EventTypeModified, Path: path}))
	doc, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "<div />", doc.Source)
	assert.Equal(t, types.LanguageJSX, doc.Language)

	require.NoError(t, os.Remove(path))
	require.NoError(t, feed(ChangeEvent{Type: EventTypeDeleted, Path: path}))
	doc, _ = rec.last()
	assert.True(t, doc.Empty())

	assert.Error(t, feed(ChangeEvent{Type: EventTypeModified, Path: path}))
}

func TestAddFileRejectsDirectories(t *testing.T) {
	fw, err := NewFileWatcher(nil)
	require.NoError(t, err)
	defer fw.Stop()

	_, err = fw.AddFile(t.TempDir())
	assert.Error(t, err)
	_, err = fw.AddFile(filepath.Join(t.TempDir(), "missing.tsx"))
	assert.Error(t, err)
	_, err = fw.AddFile("  ")
	assert.Error(t, err)
}

func TestWatchFileFeedsContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.tsx")
	other := filepath.Join(dir, "other.tsx")
	require.NoError(t, os.WriteFile(path, []byte("const a = 1;"), 0o600))

	fw, err := NewFileWatcher(nil)
	require.NoError(t, err)
	defer fw.Stop()

	_, err = fw.AddFile(path)
	require.NoError(t, err)

	rec := &docRecorder{}
	fw.AddHandler(SourceFeed(rec.update))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("const a = 2;"), 0o600))

	require.Eventually(t, func() bool {
		doc, ok := rec.last()
		return ok && doc.Source == "const a = 2;"
	}, 5*time.Second, 20*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, doc := range rec.docs {
		assert.NotEqual(t, "ignored", doc.Source)
		assert.Equal(t, types.LanguageTSX, doc.Language)
	}
}

func TestAddRecursiveSkipsIgnored(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "components"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "react"), 0o755))

	fw, err := NewFileWatcher(nil)
	require.NoError(t, err)
	defer fw.Stop()

	require.NoError(t, fw.AddRecursive(root, "node_modules"))

	list := fw.WatchList()
	assert.Contains(t, list, filepath.Join(root, "src", "components"))
	for _, p := range list {
		assert.NotContains(t, p, "node_modules")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	fw, err := NewFileWatcher(nil)
	require.NoError(t, err)
	require.NoError(t, fw.Start(context.Background()))

	assert.NoError(t, fw.Stop())
	assert.NoError(t, fw.Stop())
}
