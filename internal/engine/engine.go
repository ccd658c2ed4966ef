// Package engine wires the dev server together: configuration, the two
// build stages, the change watcher, the reload hub and the HTTP server.
//
// A change to a style file re-runs the style stage. A change to a
// component file re-runs the render stage and then the style stage, since
// the utility transform only emits classes found in component markup.
// Every completed trigger, successful or not, sends one reload to the
// connected clients.
package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/devreload/internal/artifact"
	"github.com/conneroisu/devreload/internal/browser"
	"github.com/conneroisu/devreload/internal/build"
	"github.com/conneroisu/devreload/internal/config"
	"github.com/conneroisu/devreload/internal/errors"
	"github.com/conneroisu/devreload/internal/logging"
	"github.com/conneroisu/devreload/internal/reload"
	"github.com/conneroisu/devreload/internal/render"
	"github.com/conneroisu/devreload/internal/server"
	"github.com/conneroisu/devreload/internal/style"
	"github.com/conneroisu/devreload/internal/watcher"
)

// Options configures an Engine beyond the Config.
type Options struct {
	Logger logging.Logger
	// Console receives the banner and per-run one-liners. Nil discards.
	Console io.Writer
	// Fs holds the source tree and output directory. Defaults to the OS
	// filesystem.
	Fs afero.Fs
	// OpenBrowser opens the page once the server is listening.
	OpenBrowser bool
}

// Engine owns every long-lived component of a dev session.
type Engine struct {
	config   *config.Config
	logger   logging.Logger
	console  *Console
	open     bool
	fs       afero.Fs
	registry *prometheus.Registry
	status   *errors.StatusBoard
	metrics  *build.BuildMetrics
	store    *artifact.Store
	pipeline *build.Pipeline
	hub      *reload.Hub
	server   *server.DevServer
	listener net.Listener
}

// New builds the engine from cfg. Nothing is started.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	e := &Engine{
		config:   cfg,
		logger:   logger,
		console:  NewConsole(opts.Console),
		open:     opts.OpenBrowser,
		fs:       fs,
		registry: prometheus.NewRegistry(),
		status:   errors.NewStatusBoard(),
		metrics:  build.NewBuildMetrics(),
		store:    artifact.NewStore(fs, cfg.Paths.Output),
	}

	e.pipeline = NewPipeline(cfg, fs, e.store, build.Observers{
		Logger:     logger.WithComponent("build"),
		Status:     e.status,
		Metrics:    e.metrics,
		Collectors: build.NewCollectors(e.registry),
	})
	e.pipeline.AddCallback(e.console.Result)

	e.hub = reload.NewHub(logger, e.registry)
	e.server = server.New(server.Options{
		Config:   cfg,
		Store:    e.store,
		Source:   afero.NewBasePathFs(fs, cfg.Paths.Source),
		Hub:      e.hub,
		Status:   e.status,
		Metrics:  e.metrics,
		Gatherer: e.registry,
		Logger:   logger,
	})

	return e, nil
}

// NewPipeline creates both build stages for cfg.
func NewPipeline(cfg *config.Config, fs afero.Fs, store *artifact.Store, obs build.Observers) *build.Pipeline {
	var transform style.Transformer = &style.UtilityTransform{
		Fs:         fs,
		Root:       cfg.Paths.Source,
		Extensions: cfg.Render.Extensions,
	}
	if len(cfg.Style.TransformCommand) > 0 {
		transform = &style.CommandTransform{
			Command: cfg.Style.TransformCommand,
			Dir:     cfg.Paths.Source,
		}
	}

	return &build.Pipeline{
		Style: build.NewStyleStage(style.NewCompiler(fs, transform), store, cfg.StyleEntryPath(), obs),
		Render: build.NewRenderStage(build.RenderOptions{
			Loader:   render.NewModuleLoader(fs, nil),
			Renderer: render.NewTemplateRenderer(cfg.Render.Props),
			Document: render.Document{
				Title:           render.Title(cfg.Render.Entry),
				MountID:         config.DefaultMountID,
				Stylesheet:      "/" + config.StylesheetFile,
				HydrationScript: "/" + config.HydrationScriptFile,
				ReloadPath:      config.LiveReloadPath,
				ReconnectDelay:  cfg.Reload.ReconnectDelay,
			},
			Hydration: render.Hydration{
				RuntimeURL:   cfg.Render.RuntimeURL,
				SourcePrefix: config.SourcePrefix,
				Entry:        filepath.ToSlash(cfg.Render.Entry),
				MountID:      config.DefaultMountID,
				Props:        cfg.Render.Props,
			},
			Store: store,
			Entry: cfg.RenderEntryPath(),
		}, obs),
	}
}

// Build runs every stage once. A failure to write artifacts is returned;
// compile and render errors are only reported, since the watcher rebuilds
// once the source is fixed.
func (e *Engine) Build(ctx context.Context) error {
	if err := e.store.Init(); err != nil {
		return err
	}
	for _, result := range e.pipeline.RunAll(ctx) {
		if errors.IsKind(result.Err, errors.KindIO) {
			return fmt.Errorf("initial %s build: %w", result.Stage, result.Err)
		}
	}
	return nil
}

// Listen binds the configured address. Run calls it when needed.
func (e *Engine) Listen() (net.Addr, error) {
	if e.listener != nil {
		return e.listener.Addr(), nil
	}
	addr := e.config.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	e.listener = ln
	return ln.Addr(), nil
}

// Run performs the initial build and serves with live reload until ctx is
// done or a component fails.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Build(ctx); err != nil {
		if e.listener != nil {
			_ = e.listener.Close()
			e.listener = nil
		}
		return err
	}
	addr, err := e.Listen()
	if err != nil {
		return err
	}

	fw, err := e.newWatcher()
	if err != nil {
		_ = e.listener.Close()
		return err
	}

	e.console.Banner(addr.String(), e.config.Paths.Source, e.config.Paths.Output)
	if e.open {
		url := "http://" + addr.String() + "/"
		if err := browser.Open(context.Background(), url); err != nil {
			e.logger.Warn(ctx, err, "Failed to open browser", "url", url)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.hub.Run(ctx) })
	g.Go(func() error { return fw.Run(ctx) })
	g.Go(func() error { return e.server.Serve(ctx, e.listener) })
	return g.Wait()
}

func (e *Engine) newWatcher() (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(
		watcher.NewClassifier(e.config.Style.Extensions, e.config.Render.Extensions),
		e.config.Watcher.Debounce,
		e.logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	fw.Subscribe(string(build.StageStyle), []watcher.Kind{watcher.KindStyle}, e.onStyleChange)
	fw.Subscribe(string(build.StageRender), []watcher.Kind{watcher.KindComponent}, e.onComponentChange)

	if err := fw.AddRecursive(e.config.Paths.Source); err != nil {
		_ = fw.Stop()
		return nil, fmt.Errorf("failed to watch %s: %w", e.config.Paths.Source, err)
	}
	return fw, nil
}

func (e *Engine) onStyleChange(ctx context.Context, events []watcher.ChangeEvent) error {
	e.pipeline.Style.Run(ctx)
	e.notify()
	return nil
}

func (e *Engine) onComponentChange(ctx context.Context, events []watcher.ChangeEvent) error {
	e.pipeline.Render.Run(ctx)
	e.pipeline.Style.Run(ctx)
	e.notify()
	return nil
}

func (e *Engine) notify() {
	d := e.hub.Notify()
	e.console.Reloaded(d.Attempted, d.Failed)
}

// Store returns the artifact store.
func (e *Engine) Store() *artifact.Store { return e.store }

// Hub returns the reload hub.
func (e *Engine) Hub() *reload.Hub { return e.hub }

// Pipeline returns the build pipeline.
func (e *Engine) Pipeline() *build.Pipeline { return e.pipeline }

// Status returns the per-stage status board.
func (e *Engine) Status() *errors.StatusBoard { return e.status }
