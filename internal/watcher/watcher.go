// Package watcher implements the change watcher: one recursive fsnotify
// subscription over the source tree whose events are classified by file
// extension and delivered, debounced, to per-subscription handlers.
//
// Each subscription owns a Debouncer and runs its handler serially. A burst
// of events inside the debounce window becomes one handler call; events
// arriving while the handler runs become exactly one follow-up call.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/devreload/internal/logging"
)

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	Kind    Kind
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

// FileFilter determines if a file should be watched. It receives the path
// relative to the watched root.
type FileFilter func(path string) bool

// ChangeHandler handles one debounced batch of events.
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

type subscription struct {
	name      string
	kinds     map[Kind]bool
	debouncer *Debouncer
	runner    *serialRunner
}

// FileWatcher watches the source tree for changes
type FileWatcher struct {
	watcher    *fsnotify.Watcher
	classifier *Classifier
	delay      time.Duration
	logger     logging.Logger

	mutex   sync.RWMutex
	roots   []string
	filters []FileFilter
	subs    []*subscription
	ctx     context.Context

	handlers sync.WaitGroup
	loop     sync.WaitGroup
	stopOnce sync.Once
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(classifier *Classifier, debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &FileWatcher{
		watcher:    watcher,
		classifier: classifier,
		delay:      debounceDelay,
		logger:     logger.WithComponent("watcher"),
		filters:    []FileFilter{NoTempFilter, NoHiddenFilter},
		ctx:        context.Background(),
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// Subscribe registers handler for changes of the given kinds under name.
// Handlers of different subscriptions may run concurrently; calls for one
// subscription never overlap.
func (fw *FileWatcher) Subscribe(name string, kinds []Kind, handler ChangeHandler) {
	sub := &subscription{name: name, kinds: make(map[Kind]bool, len(kinds))}
	for _, k := range kinds {
		sub.kinds[k] = true
	}

	runner := &serialRunner{wg: &fw.handlers}
	runner.run = func(events []ChangeEvent) {
		fw.mutex.RLock()
		ctx := fw.ctx
		fw.mutex.RUnlock()

		fw.logger.Debug(ctx, "Running change handler", "subscription", name, "events", len(events))
		if err := handler(ctx, events); err != nil {
			fw.logger.Error(ctx, err, "Change handler failed", "subscription", name)
		}
	}
	sub.runner = runner
	sub.debouncer = NewDebouncer(fw.delay, runner.trigger)

	fw.mutex.Lock()
	fw.subs = append(fw.subs, sub)
	fw.mutex.Unlock()
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}
	info, err := os.Stat(cleanRoot)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid root path: %s is not a directory", root)
	}

	fw.mutex.Lock()
	fw.roots = append(fw.roots, cleanRoot)
	fw.mutex.Unlock()

	_, err = fw.addTree(cleanRoot)
	return err
}

// addTree watches dir and its subdirectories and returns the files found.
func (fw *FileWatcher) addTree(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fw.accept(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			files = append(files, path)
			return nil
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
	return files, err
}

// accept applies the filters to path relative to its root.
func (fw *FileWatcher) accept(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()

	rel := path
	for _, root := range fw.roots {
		if r, err := filepath.Rel(root, path); err == nil && r != ".." && !filepath.IsAbs(r) && !startsWithParent(r) {
			rel = r
			break
		}
	}
	if rel == "." {
		return true
	}
	for _, filter := range fw.filters {
		if !filter(rel) {
			return false
		}
	}
	return true
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// Start starts the file watcher
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mutex.Lock()
	fw.ctx = ctx
	fw.mutex.Unlock()

	fw.loop.Add(1)
	go func() {
		defer fw.loop.Done()
		fw.watchLoop(ctx)
	}()
	return nil
}

// Run starts the watcher and blocks until ctx is done, then stops it.
func (fw *FileWatcher) Run(ctx context.Context) error {
	if err := fw.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return fw.Stop()
}

// Stop stops the file watcher, waits for running handlers and releases
// the fsnotify watcher.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.mutex.RLock()
		subs := fw.subs
		fw.mutex.RUnlock()
		// a flush already past its stop check is refused by the runner
		for _, sub := range subs {
			sub.debouncer.Stop()
			sub.runner.stop()
		}

		err = fw.watcher.Close()
		fw.loop.Wait()
		fw.handlers.Wait()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
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
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	var eventType EventType
	switch {
	case event.Has(fsnotify.Create):
		eventType = EventTypeCreated
	case event.Has(fsnotify.Write):
		eventType = EventTypeModified
	case event.Has(fsnotify.Remove):
		eventType = EventTypeDeleted
	case event.Has(fsnotify.Rename):
		eventType = EventTypeRenamed
	default:
		// chmod only
		return
	}

	if !fw.accept(event.Name) {
		return
	}

	info, statErr := os.Stat(event.Name)
	if eventType == EventTypeCreated && statErr == nil && info.IsDir() {
		files, err := fw.addTree(event.Name)
		if err != nil {
			fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", event.Name)
		}
		for _, f := range files {
			fw.dispatch(ctx, fw.newEvent(EventTypeCreated, f))
		}
		return
	}

	fw.dispatch(ctx, fw.newEvent(eventType, event.Name))
}

func (fw *FileWatcher) newEvent(eventType EventType, path string) ChangeEvent {
	ev := ChangeEvent{
		Type: eventType,
		Path: path,
		Kind: fw.classifier.Classify(path),
	}
	if info, err := os.Stat(path); err == nil {
		ev.ModTime = info.ModTime()
		ev.Size = info.Size()
	}
	return ev
}

func (fw *FileWatcher) dispatch(ctx context.Context, ev ChangeEvent) {
	if ev.Kind == KindOther {
		return
	}

	fw.logger.Debug(ctx, "File changed", "path", ev.Path, "type", ev.Type.String(), "kind", ev.Kind.String())

	fw.mutex.RLock()
	subs := fw.subs
	fw.mutex.RUnlock()

	for _, sub := range subs {
		if sub.kinds[ev.Kind] {
			sub.debouncer.Add(ev)
		}
	}
}
