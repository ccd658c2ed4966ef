package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier([]string{".css", ".scss"}, []string{".html", ".tmpl"})

	testCases := []struct {
		path string
		kind Kind
	}{
		{"src/index.css", KindStyle},
		{"src/theme/vars.SCSS", KindStyle},
		{"src/App.html", KindComponent},
		{"src/parts/card.tmpl", KindComponent},
		{"src/main.go", KindOther},
		{"src/README", KindOther},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.kind, c.Classify(tc.path))
		})
	}

	assert.Equal(t, "style", KindStyle.String())
	assert.Equal(t, "component", KindComponent.String())
	assert.Equal(t, "other", KindOther.String())
}

func TestFilters(t *testing.T) {
	testCases := []struct {
		path   string
		temp   bool
		hidden bool
	}{
		{"App.html", true, true},
		{"App.html~", false, true},
		{".App.html.swp", false, false},
		{"parts/.#Card.html", false, false},
		{"#App.html#", false, true},
		{"4913", false, true},
		{"index.css.tmp", false, true},
		{".git/HEAD", true, false},
		{"parts/Card.html", true, true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.temp, NoTempFilter(tc.path), "NoTempFilter")
			assert.Equal(t, tc.hidden, NoHiddenFilter(tc.path), "NoHiddenFilter")
		})
	}
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	batches := make(chan []ChangeEvent, 10)
	d := NewDebouncer(30*time.Millisecond, func(events []ChangeEvent) {
		batches <- events
	})
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Add(ChangeEvent{Type: EventTypeModified, Path: "a.css"})
	}
	d.Add(ChangeEvent{Type: EventTypeCreated, Path: "b.css"})
	d.Add(ChangeEvent{Type: EventTypeDeleted, Path: "a.css"})

	select {
	case events := <-batches:
		require.Len(t, events, 2)
		assert.Equal(t, "a.css", events[0].Path)
		assert.Equal(t, EventTypeDeleted, events[0].Type)
		assert.Equal(t, "b.css", events[1].Path)
	case <-time.After(time.Second):
		t.Fatal("debouncer never fired")
	}

	select {
	case events := <-batches:
		t.Fatalf("unexpected second batch: %v", events)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncerStopDropsPending(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func([]ChangeEvent) { fired.Add(1) })

	d.Add(ChangeEvent{Path: "a.css"})
	d.Stop()
	d.Add(ChangeEvent{Path: "b.css"})

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestSerialRunnerCoalescesTriggersWhileRunning(t *testing.T) {
	var wg sync.WaitGroup
	release := make(chan struct{})
	var mu sync.Mutex
	var calls [][]ChangeEvent
	var active, maxActive atomic.Int32

	r := &serialRunner{wg: &wg}
	r.run = func(events []ChangeEvent) {
		if n := active.Add(1); n > maxActive.Load() {
			maxActive.Store(n)
		}
		mu.Lock()
		first := len(calls) == 0
		calls = append(calls, events)
		mu.Unlock()
		if first {
			<-release
		}
		active.Add(-1)
	}

	r.trigger([]ChangeEvent{{Path: "1"}})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, time.Second, 5*time.Millisecond)

	r.trigger([]ChangeEvent{{Path: "2"}})
	r.trigger([]ChangeEvent{{Path: "3"}})
	r.trigger([]ChangeEvent{{Path: "4"}})
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 2, "queued triggers collapse into one follow-up run")
	assert.Equal(t, []ChangeEvent{{Path: "2"}, {Path: "3"}, {Path: "4"}}, calls[1])
	assert.Equal(t, int32(1), maxActive.Load())
}

type recorder struct {
	mu     sync.Mutex
	events []ChangeEvent
	calls  int
}

func (r *recorder) handle(ctx context.Context, events []ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.events = append(r.events, events...)
	return nil
}

func (r *recorder) snapshot() (int, []ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, append([]ChangeEvent(nil), r.events...)
}

func (r *recorder) sawPath(path string) bool {
	_, events := r.snapshot()
	for _, ev := range events {
		if filepath.Base(ev.Path) == path {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, root string) (*FileWatcher, *recorder, *recorder) {
	t.Helper()

	fw, err := NewFileWatcher(
		NewClassifier([]string{".css"}, []string{".html"}),
		30*time.Millisecond,
		nil,
	)
	require.NoError(t, err)

	styles, components := &recorder{}, &recorder{}
	fw.Subscribe("style", []Kind{KindStyle}, styles.handle)
	fw.Subscribe("component", []Kind{KindComponent}, components.handle)

	require.NoError(t, fw.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, fw.Start(ctx))
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, fw.Stop())
	})

	return fw, styles, components
}

func TestSerialRunnerStopRefusesTriggers(t *testing.T) {
	var wg sync.WaitGroup
	release := make(chan struct{})
	var runs atomic.Int32

	r := &serialRunner{wg: &wg}
	r.run = func(events []ChangeEvent) {
		if runs.Add(1) == 1 {
			<-release
		}
	}

	r.trigger([]ChangeEvent{{Path: "1"}})
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// queued while running, then dropped by stop
	r.trigger([]ChangeEvent{{Path: "2"}})
	r.stop()
	r.trigger([]ChangeEvent{{Path: "3"}})

	close(release)
	wg.Wait()

	r.trigger([]ChangeEvent{{Path: "4"}})
	wg.Wait()
	assert.Equal(t, int32(1), runs.Load())
}

func TestDebouncerFlushAfterStopDoesNotRun(t *testing.T) {
	var wg sync.WaitGroup
	var runs atomic.Int32
	r := &serialRunner{wg: &wg, run: func([]ChangeEvent) { runs.Add(1) }}
	d := NewDebouncer(50*time.Millisecond, r.trigger)

	d.Add(ChangeEvent{Path: "a.css"})
	d.Stop()
	r.stop()
	// a flush that already passed its stop check ends at the runner
	r.trigger([]ChangeEvent{{Path: "a.css"}})

	time.Sleep(80 * time.Millisecond)
	wg.Wait()
	assert.Equal(t, int32(0), runs.Load())
}

func TestFileWatcherRoutesByKind(t *testing.T) {
	root := t.TempDir()
	_, styles, components := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "index.css"), []byte("a{}"), 0o644))
	require.Eventually(t, func() bool { return styles.sawPath("index.css") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "App.html"), []byte("<h1>Hi</h1>"), 0o644))
	require.Eventually(t, func() bool { return components.sawPath("App.html") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "App.html~"), []byte("x"), 0o644))
	time.Sleep(150 * time.Millisecond)

	_, styleEvents := styles.snapshot()
	for _, ev := range styleEvents {
		assert.Equal(t, KindStyle, ev.Kind)
	}
	_, componentEvents := components.snapshot()
	for _, ev := range componentEvents {
		assert.Equal(t, KindComponent, ev.Kind)
		assert.Equal(t, "App.html", filepath.Base(ev.Path))
	}
}

func TestFileWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	_, _, components := startWatcher(t, root)

	file := filepath.Join(root, "App.html")
	for i := 0; i < 20; i++ {
		require.NoError(t, os.WriteFile(file, []byte(fmt.Sprintf("<p>%d</p>", i)), 0o644))
	}

	require.Eventually(t, func() bool { return components.sawPath("App.html") }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	calls, events := components.snapshot()
	assert.Less(t, calls, 20)
	for _, ev := range events {
		assert.Equal(t, file, ev.Path)
	}
}

func TestFileWatcherWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	_, _, components := startWatcher(t, root)

	dir := filepath.Join(root, "parts")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Card.html"), []byte("<div></div>"), 0o644))
	require.Eventually(t, func() bool { return components.sawPath("Card.html") }, 2*time.Second, 10*time.Millisecond)

	// a later write inside the new directory is seen through its own watch
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "List.html"), []byte("<ul></ul>"), 0o644))
	require.Eventually(t, func() bool { return components.sawPath("List.html") }, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcherIgnoresHiddenDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".cache"), 0o755))
	_, _, components := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".cache", "Old.html"), []byte("x"), 0o644))
	time.Sleep(150 * time.Millisecond)

	calls, _ := components.snapshot()
	assert.Equal(t, 0, calls)
}

func TestAddRecursiveRejectsFiles(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "index.css")
	require.NoError(t, os.WriteFile(file, []byte(""), 0o644))

	fw, err := NewFileWatcher(NewClassifier(nil, nil), time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.AddRecursive(file))
	assert.Error(t, fw.AddRecursive(filepath.Join(root, "missing")))
}
