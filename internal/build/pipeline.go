// Package build runs the two stages of the build pipeline.
//
// The style stage compiles the style entry into the Stylesheet artifact.
// The render stage loads the component entry fresh, renders it into the
// Page artifact and writes the matching HydrationScript artifact. Both
// stages catch their own failures: the error is logged, recorded on the
// status board and returned in the Result, and the previous artifacts stay
// in place because nothing is written until every step before it succeeded.
package build

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/conneroisu/devreload/internal/artifact"
	"github.com/conneroisu/devreload/internal/errors"
	"github.com/conneroisu/devreload/internal/logging"
	"github.com/conneroisu/devreload/internal/render"
	"github.com/conneroisu/devreload/internal/style"
)

// Stage names one pipeline stage.
type Stage string

const (
	StageStyle  Stage = "style"
	StageRender Stage = "render"
)

// Result is the outcome of one stage run.
type Result struct {
	Stage      Stage
	Artifacts  []artifact.Artifact
	Err        error
	Duration   time.Duration
	Generation uint64
}

// OK reports whether the run succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Runner is a stage that can be triggered.
type Runner interface {
	Name() Stage
	Run(ctx context.Context) Result
}

// BuildCallback is called when a stage run completes
type BuildCallback func(result Result)

// Observers are the sinks every stage reports to. Nil fields are skipped.
type Observers struct {
	Logger     logging.Logger
	Status     *errors.StatusBoard
	Metrics    *BuildMetrics
	Collectors *Collectors
	Tracer     trace.Tracer
}

// recorder wraps a stage body with tracing, logging and bookkeeping.
// Runs of one stage never overlap.
type recorder struct {
	obs       Observers
	runMu     sync.Mutex
	mu        sync.RWMutex
	callbacks []BuildCallback
}

func newRecorder(obs Observers) *recorder {
	if obs.Logger == nil {
		obs.Logger = logging.NewNop()
	}
	if obs.Tracer == nil {
		obs.Tracer = otel.Tracer("github.com/conneroisu/devreload/internal/build")
	}
	return &recorder{obs: obs}
}

func (r *recorder) addCallback(cb BuildCallback) {
	r.mu.Lock()
	r.callbacks = append(r.callbacks, cb)
	r.mu.Unlock()
}

func (r *recorder) run(ctx context.Context, stage Stage, entry string, body func(ctx context.Context) Result) Result {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	ctx, span := r.obs.Tracer.Start(ctx, "devreload.build."+string(stage),
		trace.WithAttributes(
			attribute.String("devreload.stage", string(stage)),
			attribute.String("devreload.entry", entry),
		),
	)
	defer span.End()

	start := time.Now()
	result := body(ctx)
	result.Stage = stage
	result.Duration = time.Since(start)

	log := r.obs.Logger.With("stage", string(stage), "entry", entry)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
		log.Error(ctx, result.Err, "Stage failed, keeping previous artifacts",
			"kind", errors.KindOf(result.Err).String(),
			"duration", result.Duration)
	} else {
		span.SetStatus(codes.Ok, "")
		log.Info(ctx, "Stage complete",
			"artifacts", len(result.Artifacts),
			"duration", result.Duration)
	}

	if r.obs.Status != nil {
		r.obs.Status.Record(string(stage), result.Err)
	}
	if r.obs.Metrics != nil {
		r.obs.Metrics.RecordBuild(result)
	}
	r.obs.Collectors.Observe(result)

	r.mu.RLock()
	callbacks := append([]BuildCallback(nil), r.callbacks...)
	r.mu.RUnlock()
	for _, cb := range callbacks {
		cb(result)
	}

	return result
}

// StyleStage compiles the style entry into the Stylesheet artifact.
type StyleStage struct {
	rec      *recorder
	compiler style.Compiler
	store    *artifact.Store
	entry    string
}

// NewStyleStage creates the style stage for entry.
func NewStyleStage(compiler style.Compiler, store *artifact.Store, entry string, obs Observers) *StyleStage {
	return &StyleStage{rec: newRecorder(obs), compiler: compiler, store: store, entry: entry}
}

// Name implements Runner.
func (s *StyleStage) Name() Stage { return StageStyle }

// AddCallback registers cb for every completed run.
func (s *StyleStage) AddCallback(cb BuildCallback) { s.rec.addCallback(cb) }

// Run implements Runner.
func (s *StyleStage) Run(ctx context.Context) Result {
	return s.rec.run(ctx, StageStyle, s.entry, func(ctx context.Context) Result {
		css, err := s.compiler.Compile(ctx, s.entry)
		if err != nil {
			if errors.KindOf(err) == errors.KindUnknown {
				err = errors.Compile("compile", s.entry, 0, err)
			}
			return Result{Err: err}
		}

		art, err := s.store.Write(artifact.Stylesheet, []byte(css))
		if err != nil {
			return Result{Err: err}
		}
		return Result{Artifacts: []artifact.Artifact{art}}
	})
}

// RenderStage renders the component entry into the Page and
// HydrationScript artifacts.
type RenderStage struct {
	rec       *recorder
	loader    *render.ModuleLoader
	renderer  render.Renderer
	document  render.Document
	hydration render.Hydration
	store     *artifact.Store
	entry     string
}

// RenderOptions configures a RenderStage.
type RenderOptions struct {
	Loader    *render.ModuleLoader
	Renderer  render.Renderer
	Document  render.Document
	Hydration render.Hydration
	Store     *artifact.Store
	Entry     string
}

// NewRenderStage creates the render stage.
func NewRenderStage(opts RenderOptions, obs Observers) *RenderStage {
	return &RenderStage{
		rec:       newRecorder(obs),
		loader:    opts.Loader,
		renderer:  opts.Renderer,
		document:  opts.Document,
		hydration: opts.Hydration,
		store:     opts.Store,
		entry:     opts.Entry,
	}
}

// Name implements Runner.
func (s *RenderStage) Name() Stage { return StageRender }

// AddCallback registers cb for every completed run.
func (s *RenderStage) AddCallback(cb BuildCallback) { s.rec.addCallback(cb) }

// Run implements Runner.
func (s *RenderStage) Run(ctx context.Context) Result {
	return s.rec.run(ctx, StageRender, s.entry, func(ctx context.Context) Result {
		mod, err := s.loader.Load(s.entry)
		if err != nil {
			return Result{Err: err}
		}

		component, err := s.renderer.Component(mod)
		if err != nil {
			return Result{Err: err, Generation: mod.Generation}
		}

		page, err := render.ToString(ctx, s.document.Wrap(component))
		if err != nil {
			return Result{Err: errors.Render("render", s.entry, err), Generation: mod.Generation}
		}

		script, err := s.hydration.Script(mod.Generation)
		if err != nil {
			return Result{Err: errors.Render("hydrate", s.entry, err), Generation: mod.Generation}
		}

		pageArt, err := s.store.Write(artifact.Page, []byte(page))
		if err != nil {
			return Result{Err: err, Generation: mod.Generation}
		}
		scriptArt, err := s.store.Write(artifact.HydrationScript, script)
		if err != nil {
			return Result{Err: err, Artifacts: []artifact.Artifact{pageArt}, Generation: mod.Generation}
		}

		return Result{
			Artifacts:  []artifact.Artifact{pageArt, scriptArt},
			Generation: mod.Generation,
		}
	})
}

// Pipeline groups both stages.
type Pipeline struct {
	Style  *StyleStage
	Render *RenderStage
}

// Stages returns the stages in initial build order.
func (p *Pipeline) Stages() []Runner {
	return []Runner{p.Style, p.Render}
}

// Stage returns the runner for name, or nil.
func (p *Pipeline) Stage(name Stage) Runner {
	switch name {
	case StageStyle:
		return p.Style
	case StageRender:
		return p.Render
	default:
		return nil
	}
}

// AddCallback registers cb on both stages.
func (p *Pipeline) AddCallback(cb BuildCallback) {
	p.Style.AddCallback(cb)
	p.Render.AddCallback(cb)
}

// RunAll runs every stage once, in order, and returns their results.
func (p *Pipeline) RunAll(ctx context.Context) []Result {
	var results []Result
	for _, stage := range p.Stages() {
		results = append(results, stage.Run(ctx))
	}
	return results
}
