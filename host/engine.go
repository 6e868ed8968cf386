package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/reglet-dev/glass/capability"
	"github.com/reglet-dev/glass/config"
	"github.com/reglet-dev/glass/domain/entities"
	"github.com/reglet-dev/glass/domain/errors"
	"github.com/reglet-dev/glass/domain/ports"
	"github.com/reglet-dev/glass/hostfuncs"
	binder "github.com/reglet-dev/glass/infrastructure/wazero"
)

// ErrClosed is returned by Prepare after Close.
var ErrClosed = stdErrors.New("engine closed")

// Engine owns the shared runtime and the compiled template of one guest.
// It is safe for concurrent use.
type Engine struct {
	runtime   wazero.Runtime
	cache     wazero.CompilationCache
	template  wazero.CompiledModule
	installed *binder.Installed
	client    ports.HTTPClient
	backend   ports.InferenceBackend
	metrics   *metrics
	allow     hostfuncs.AllowList
	iface     Interface
	cfg       entities.Config
	active    atomic.Int64
	closed    atomic.Bool
}

// Build compiles src into a template that satisfies iface. cfg is copied;
// later changes by the caller are not observed. No guest code runs.
func Build(ctx context.Context, src Source, iface Interface, cfg entities.Config, opts ...Option) (*Engine, error) {
	start := time.Now()
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.Clone()
	if err := config.Validate(cfg); err != nil {
		return nil, &errors.BuildError{Phase: errors.PhaseConfigure, Err: err}
	}
	rc, cache, err := runtimeConfig(cfg.Engine)
	if err != nil {
		return nil, err
	}
	allow, err := hostfuncs.NewAllowList(cfg.AllowedHTTPHosts)
	if err != nil {
		return nil, &errors.BuildError{Phase: errors.PhaseConfigure, Err: err}
	}
	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, &errors.BuildError{Phase: errors.PhaseConfigure, Err: err}
	}

	e := &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, rc),
		cache:   cache,
		client:  o.httpClient,
		backend: o.backend,
		metrics: m,
		allow:   allow,
		iface:   iface,
		cfg:     cfg,
	}
	if e.client == nil {
		e.client = hostfuncs.NewClient(hostfuncs.WithRedirectCheck(allow.Check))
	}

	if err := e.build(ctx, src, o); err != nil {
		return nil, multierr.Append(err, e.release(ctx))
	}

	Logger().Info("template built",
		zap.String("interface", iface.Name),
		zap.Stringer("source", src),
		zap.Strings("namespaces", e.installed.Namespaces()),
		zap.Duration("elapsed", time.Since(start)))
	return e, nil
}

func (e *Engine) build(ctx context.Context, src Source, o buildOptions) error {
	var tableOpts []binder.TableOption
	if o.strict {
		tableOpts = append(tableOpts, binder.WithStrictNames())
	}
	table := binder.NewTable(tableOpts...)
	if err := binder.BindAll(table, e.cfg); err != nil {
		return err
	}

	mws := append([]binder.Middleware{binder.LoggingMiddleware()}, o.middleware...)
	installed, err := binder.Install(ctx, e.runtime, table, mws...)
	if err != nil {
		return err
	}
	e.installed = installed

	wasm, err := src.Bytes()
	if err != nil {
		return &errors.BuildError{Phase: errors.PhaseCompile, Name: src.String(), Err: err}
	}
	e.template, err = e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return &errors.BuildError{Phase: errors.PhaseCompile, Name: src.String(), Err: err}
	}

	if err := installed.ResolveImports(e.template); err != nil {
		return err
	}
	return e.iface.Validate(e.template)
}

func runtimeConfig(ec entities.EngineConfig) (wazero.RuntimeConfig, wazero.CompilationCache, error) {
	switch {
	case ec.MultiMemory:
		return nil, nil, &errors.BuildError{Phase: errors.PhaseConfigure, Name: "multi_memory",
			Err: fmt.Errorf("the multi-memory proposal is not supported")}
	case ec.ModuleLinking:
		return nil, nil, &errors.BuildError{Phase: errors.PhaseConfigure, Name: "module_linking",
			Err: fmt.Errorf("the module-linking proposal is not supported")}
	}

	features := api.CoreFeaturesV2
	if ec.CoreFeatures == "v1" {
		features = api.CoreFeaturesV1
	}
	rc := wazero.NewRuntimeConfig().
		WithCoreFeatures(features).
		WithCloseOnContextDone(true)
	if ec.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(ec.MemoryLimitPages)
	}

	if ec.CacheDir == "" {
		return rc, nil, nil
	}
	cache, err := wazero.NewCompilationCacheWithDir(ec.CacheDir)
	if err != nil {
		return nil, nil, &errors.BuildError{Phase: errors.PhaseConfigure, Name: ec.CacheDir, Err: err}
	}
	return rc.WithCompilationCache(cache), cache, nil
}

// Interface returns the entrypoint interface the template satisfies.
func (e *Engine) Interface() Interface {
	return e.iface
}

// Template returns the compiled guest.
func (e *Engine) Template() wazero.CompiledModule {
	return e.template
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() entities.Config {
	return e.cfg.Clone()
}

// Active returns the number of instances not yet closed.
func (e *Engine) Active() int64 {
	return e.active.Load()
}

// Prepare creates the capability context and guest instance of one
// invocation. The instance must be closed by the caller. A failure here
// affects only this invocation.
func (e *Engine) Prepare(ctx context.Context, payload any) (*Instance, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	inst := &Instance{engine: e, stage: StageIdle}
	osCtx, err := capability.NewOSContext(e.cfg)
	if err != nil {
		return nil, inst.Fail(KindContext, err)
	}
	capOpts := []capability.Option{
		capability.WithOS(osCtx),
		capability.WithHTTP(hostfuncs.NewHTTPSessions(e.client, e.allow, e.cfg.MaxConcurrentRequests)),
		capability.WithPayload(payload),
	}
	if e.backend != nil {
		capOpts = append(capOpts, capability.WithInference(hostfuncs.NewInferenceSession(e.backend)))
	}
	inst.capability = capability.New(capOpts...)
	inst.Advance(StageContextBuilt)

	if t := e.cfg.Engine.InvocationTimeout; t > 0 {
		inst.ctx, inst.cancel = context.WithTimeout(ctx, t)
	} else {
		inst.ctx, inst.cancel = context.WithCancel(ctx)
	}
	inst.ctx = capability.WithContext(inst.ctx, inst.capability)

	mod, err := e.runtime.InstantiateModule(inst.ctx, e.template,
		binder.ModuleConfig(inst.capability.ID().String(), osCtx))
	if err != nil {
		ierr := inst.Fail(classify(err, KindInstantiate), err)
		inst.capability.Release()
		inst.cancel()
		return nil, ierr
	}
	inst.module = mod
	inst.Advance(StageInstantiated)

	e.active.Add(1)
	e.metrics.active.WithLabelValues(e.iface.Name).Inc()
	return inst, nil
}

// Close releases the runtime, closing every instance still alive.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.release(ctx)
}

func (e *Engine) release(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		err = multierr.Append(err, e.cache.Close(ctx))
	}
	return err
}
