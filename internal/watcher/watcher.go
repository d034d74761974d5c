// Package watcher feeds source files into a preview pipeline as they change
// on disk.
//
// Events are delivered as they arrive; coalescing bursts is left to the
// dispatcher's debounce so the quiet period is applied exactly once.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/tsxlive/internal/logging"
	"github.com/conneroisu/tsxlive/internal/types"
)

// FileWatcher watches files and directories for source changes.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	logger   logging.Logger
	filters  []FileFilter
	handlers []ChangeHandler
	mutex    sync.RWMutex

	stopOnce sync.Once
	done     chan struct{}
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles file change events
type ChangeHandler func(event ChangeEvent) error

// NewFileWatcher creates a new file watcher
func NewFileWatcher(logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &FileWatcher{
		watcher: watcher,
		logger:  logger.WithComponent("watcher"),
		done:    make(chan struct{}),
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddFile watches a single file. Editors often save by renaming over the
// original, so the parent directory is watched and other names filtered out.
func (fw *FileWatcher) AddFile(path string) (string, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(clean)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	fw.AddFilter(func(p string) bool {
		return filepath.Clean(p) == clean
	})
	if err := fw.watcher.Add(filepath.Dir(clean)); err != nil {
		return "", fmt.Errorf("watching %s: %w", filepath.Dir(clean), err)
	}
	return clean, nil
}

// AddRecursive adds a directory and all subdirectories to watch, skipping
// directories whose base name matches one of ignore.
func (fw *FileWatcher) AddRecursive(root string, ignore ...string) error {
	cleanRoot, err := cleanPath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.WalkDir(cleanRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != cleanRoot && matchesAny(d.Name(), ignore) {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

// WatchList returns the watched directories.
func (fw *FileWatcher) WatchList() []string {
	return fw.watcher.WatchList()
}

func cleanPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	return abs, nil
}

// Start starts the watch loop. It returns immediately.
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.watchLoop(ctx)
	return nil
}

// Stop closes the underlying watcher. Safe to call more than once.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.done)
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			// Log error but continue watching
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	fw.mutex.RLock()
	filters := fw.filters
	handlers := fw.handlers
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	changeEvent := ChangeEvent{Path: event.Name}
	if info, err := os.Stat(event.Name); err == nil {
		if info.IsDir() {
			return
		}
		changeEvent.ModTime = info.ModTime()
		changeEvent.Size = info.Size()
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		changeEvent.Type = EventTypeCreated
	case event.Op.Has(fsnotify.Write):
		changeEvent.Type = EventTypeModified
	case event.Op.Has(fsnotify.Remove):
		changeEvent.Type = EventTypeDeleted
	case event.Op.Has(fsnotify.Rename):
		changeEvent.Type = EventTypeRenamed
	default:
		changeEvent.Type = EventTypeModified
	}

	for _, handler := range handlers {
		if err := handler(changeEvent); err != nil {
			// Log error but continue processing
			fw.logger.Warn(ctx, err, "File watcher handler error", "path", event.Name)
		}
	}
}

// ExtensionFilter accepts files with one of the given extensions.
func ExtensionFilter(extensions ...string) FileFilter {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = struct{}{}
	}
	return func(path string) bool {
		_, ok := set[strings.ToLower(filepath.Ext(path))]
		return ok
	}
}

// IgnoreFilter rejects paths with any element matching one of patterns.
func IgnoreFilter(patterns ...string) FileFilter {
	return func(path string) bool {
		for _, part := range strings.Split(filepath.ToSlash(path), "/") {
			if matchesAny(part, patterns) {
				return false
			}
		}
		return true
	}
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// SourceFeed reads changed files and hands them to update as documents.
// A removed file produces an empty document, which cancels any pending
// compile.
func SourceFeed(update func(types.SourceDocument)) ChangeHandler {
	return func(event ChangeEvent) error {
		lang, ok := types.LanguageForFile(event.Path)
		if !ok {
			lang = types.DefaultLanguage
		}

		if event.Type == EventTypeDeleted || event.Type == EventTypeRenamed {
			if _, err := os.Stat(event.Path); os.IsNotExist(err) {
				update(types.SourceDocument{Language: lang})
				return nil
			}
		}

		content, err := os.ReadFile(event.Path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", event.Path, err)
		}
		update(types.SourceDocument{Source: string(content), Language: lang})
		return nil
	}
}
