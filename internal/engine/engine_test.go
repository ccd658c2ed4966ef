package engine

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/devreload/internal/artifact"
	"github.com/conneroisu/devreload/internal/build"
	"github.com/conneroisu/devreload/internal/config"
	"github.com/conneroisu/devreload/internal/errors"
	"github.com/conneroisu/devreload/internal/reload"
)

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()

	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Paths.Source = src
	cfg.Paths.Output = filepath.Join(root, "dist")
	cfg.Watcher.Debounce = 20 * time.Millisecond
	return cfg, src
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fetch(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		return 0, ""
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestEndToEndReload(t *testing.T) {
	cfg, src := testConfig(t)
	writeFile(t, filepath.Join(src, "index.css"), ".brand { color: red; }\n")
	writeFile(t, filepath.Join(src, "App.html"), `<h1>Hi</h1>`)

	e, err := New(cfg, Options{})
	require.NoError(t, err)
	addr, err := e.Listen()
	require.NoError(t, err)
	base := "http://" + addr.String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("engine did not stop")
		}
	}()

	require.Eventually(t, func() bool {
		code, _ := fetch(t, base+"/")
		return code == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	_, page := fetch(t, base+"/")
	assert.Contains(t, page, `<div id="root"><h1>Hi</h1></div>`)

	code, css := fetch(t, base+"/styles.css")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, css, ".brand")

	code, _ = fetch(t, base+"/src/App.html")
	assert.Equal(t, http.StatusOK, code)
	code, _ = fetch(t, base+"/does-not-exist")
	assert.Equal(t, http.StatusNotFound, code)

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, "ws://"+addr.String()+config.LiveReloadPath, nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	require.Eventually(t, func() bool { return e.Hub().Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	writeFile(t, filepath.Join(src, "App.html"), `<h1>Bye</h1>`)

	_, msg, err := conn.Read(dialCtx)
	require.NoError(t, err)
	assert.Equal(t, reload.Message, string(msg))

	_, page = fetch(t, base+"/")
	assert.Contains(t, page, `<div id="root"><h1>Bye</h1></div>`)
	assert.NotContains(t, page, "<h1>Hi</h1>")
}

func TestStyleChangeKeepsPreviousOnError(t *testing.T) {
	cfg, src := testConfig(t)
	writeFile(t, filepath.Join(src, "index.css"), ".brand { color: red; }\n")
	writeFile(t, filepath.Join(src, "App.html"), `<p class="p-4">x</p>`)

	e, err := New(cfg, Options{})
	require.NoError(t, err)
	addr, err := e.Listen()
	require.NoError(t, err)
	base := "http://" + addr.String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool {
		code, _ := fetch(t, base+"/styles.css")
		return code == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	_, before := fetch(t, base+"/styles.css")
	assert.Contains(t, before, ".p-4")

	writeFile(t, filepath.Join(src, "index.css"), ".brand { color: red;\n")
	require.Eventually(t, func() bool {
		st, ok := e.Status().Get(string(build.StageStyle))
		return ok && !st.OK
	}, 5*time.Second, 20*time.Millisecond)

	code, after := fetch(t, base+"/styles.css")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, before, after)

	st, _ := e.Status().Get(string(build.StageStyle))
	assert.Equal(t, errors.KindCompile.String(), st.Kind)
}

func TestBuildReportsCompileErrorsWithoutFailing(t *testing.T) {
	cfg, src := testConfig(t)
	writeFile(t, filepath.Join(src, "index.css"), "}\n")
	writeFile(t, filepath.Join(src, "App.html"), `<h1>Hi</h1>`)

	e, err := New(cfg, Options{})
	require.NoError(t, err)
	require.NoError(t, e.Build(context.Background()))

	assert.False(t, e.Store().Exists(artifact.Stylesheet))
	assert.True(t, e.Store().Exists(artifact.Page))
	assert.True(t, e.Store().Exists(artifact.HydrationScript))

	st, ok := e.Status().Get(string(build.StageStyle))
	require.True(t, ok)
	assert.False(t, st.OK)
	assert.Equal(t, 1, st.Line)
}

func TestBuildFailsOnUnwritableOutput(t *testing.T) {
	cfg, src := testConfig(t)
	writeFile(t, filepath.Join(src, "index.css"), ".a { color: red; }\n")
	writeFile(t, filepath.Join(src, "App.html"), `<h1>Hi</h1>`)

	// the output directory is a regular file
	writeFile(t, cfg.Paths.Output, "not a directory")

	e, err := New(cfg, Options{})
	require.NoError(t, err)

	err = e.Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindIO))
}

func TestRunReleasesListenerWhenBuildFails(t *testing.T) {
	cfg, src := testConfig(t)
	writeFile(t, filepath.Join(src, "index.css"), ".a { color: red; }\n")
	writeFile(t, filepath.Join(src, "App.html"), `<h1>Hi</h1>`)
	writeFile(t, cfg.Paths.Output, "not a directory")

	e, err := New(cfg, Options{})
	require.NoError(t, err)

	addr, err := e.Listen()
	require.NoError(t, err)

	require.Error(t, e.Run(context.Background()))

	ln, err := net.Listen("tcp", addr.String())
	require.NoError(t, err, "port should be free after a failed run")
	require.NoError(t, ln.Close())
}

func TestCommandTransform(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	cfg, src := testConfig(t)
	cfg.Style.TransformCommand = []string{"cat"}
	writeFile(t, filepath.Join(src, "index.css"), ".a { color: red; }\n")
	writeFile(t, filepath.Join(src, "App.html"), `<h1>Hi</h1>`)

	e, err := New(cfg, Options{})
	require.NoError(t, err)
	require.NoError(t, e.Build(context.Background()))

	css, err := e.Store().Read(artifact.Stylesheet)
	require.NoError(t, err)
	assert.Contains(t, string(css), "@tailwind utilities;")
	assert.Contains(t, string(css), ".a { color: red; }")
}

func TestConsoleOutput(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Banner("127.0.0.1:3000", "src", "dist")
	c.Result(build.Result{Stage: build.StageStyle, Artifacts: []artifact.Artifact{{Name: artifact.Stylesheet}}, Duration: 3 * time.Millisecond})
	c.Result(build.Result{Stage: build.StageRender, Err: errors.Render("parse", "src/App.html", errors.New("unexpected EOF"))})
	c.Reloaded(0, 0)
	c.Reloaded(3, 1)

	out := buf.String()
	assert.Contains(t, out, "http://127.0.0.1:3000/")
	assert.Contains(t, out, "✓ style")
	assert.Contains(t, out, "✗ render")
	assert.Contains(t, out, "unexpected EOF")
	assert.Contains(t, out, "reloaded 2 client(s), dropped 1")
	assert.Equal(t, 1, strings.Count(out, "reloaded"))
}
