package wazero

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/reglet-dev/glass/domain/errors"
)

// Middleware wraps a host import. Middleware applies in FIFO order: the first
// one wraps outermost.
type Middleware func(def Definition, next api.GoModuleFunc) api.GoModuleFunc

// LoggingMiddleware logs every host import call at debug level, and calls that
// return a non-zero error value at info level.
func LoggingMiddleware() Middleware {
	return func(def Definition, next api.GoModuleFunc) api.GoModuleFunc {
		return func(ctx context.Context, mod api.Module, stack []uint64) {
			start := time.Now()
			next(ctx, mod, stack)
			l := Logger()
			if len(def.Results) == 1 && stack[0] != 0 {
				l.Info("host import returned error",
					zap.String("namespace", def.Namespace),
					zap.String("name", def.Name),
					zap.String("module", mod.Name()),
					zap.Uint64("errno", stack[0]))
				return
			}
			l.Debug("host import",
				zap.String("namespace", def.Namespace),
				zap.String("name", def.Name),
				zap.String("module", mod.Name()),
				zap.Duration("elapsed", time.Since(start)))
		}
	}
}

// Installed is a table installed into a runtime: one host module per namespace.
type Installed struct {
	modules map[string]wazero.CompiledModule
}

// Namespaces returns the installed namespaces in sorted order.
func (in *Installed) Namespaces() []string {
	out := make([]string, 0, len(in.modules))
	for ns := range in.modules {
		out = append(out, ns)
	}
	slices.Sort(out)
	return out
}

// Install freezes table and instantiates one host module per namespace in
// runtime. Definitions shadow same-named functions of a namespace's module
// exporters; in strict mode that is an error.
func Install(ctx context.Context, runtime wazero.Runtime, table *Table, mws ...Middleware) (*Installed, error) {
	table.Freeze()

	in := &Installed{modules: make(map[string]wazero.CompiledModule)}
	for _, ns := range table.Namespaces() {
		if err := checkExporterCollisions(ctx, runtime, table, ns); err != nil {
			return nil, err
		}

		builder := runtime.NewHostModuleBuilder(ns)
		for _, e := range table.exporters(ns) {
			e.export(builder)
		}
		for _, def := range table.Definitions(ns) {
			fn := def.Func
			for i := len(mws) - 1; i >= 0; i-- {
				fn = mws[i](def, fn)
			}
			builder.NewFunctionBuilder().
				WithGoModuleFunction(fn, def.Params, def.Results).
				WithName(def.Name).
				Export(def.Name)
		}

		compiled, err := builder.Compile(ctx)
		if err != nil {
			return nil, &errors.BuildError{Phase: errors.PhaseBind, Name: ns, Err: err}
		}
		if _, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig()); err != nil {
			return nil, &errors.BuildError{Phase: errors.PhaseBind, Name: ns, Err: err}
		}
		in.modules[ns] = compiled
		Logger().Debug("installed host module",
			zap.String("namespace", ns),
			zap.Int("functions", len(compiled.ExportedFunctions())))
	}
	return in, nil
}

// checkExporterCollisions reports definitions that replace a function already
// provided by one of the namespace's module exporters.
func checkExporterCollisions(ctx context.Context, runtime wazero.Runtime, table *Table, ns string) error {
	exporters := table.exporters(ns)
	defs := table.Definitions(ns)
	if len(exporters) == 0 || len(defs) == 0 {
		return nil
	}
	probe := runtime.NewHostModuleBuilder(ns)
	for _, e := range exporters {
		e.export(probe)
	}
	compiled, err := probe.Compile(ctx)
	if err != nil {
		return &errors.BuildError{Phase: errors.PhaseBind, Name: ns, Err: err}
	}
	defer func() { _ = compiled.Close(ctx) }()

	provided := compiled.ExportedFunctions()
	for _, def := range defs {
		if _, ok := provided[def.Name]; !ok {
			continue
		}
		if table.Strict() {
			return &errors.BuildError{Phase: errors.PhaseBind, Name: ns + "." + def.Name,
				Err: fmt.Errorf("definition collides with module export")}
		}
		Logger().Warn("host import shadows module export",
			zap.String("namespace", ns), zap.String("name", def.Name))
	}
	return nil
}

// ResolveImports checks every import of guest against the installed host
// modules by name and signature. All unresolved imports are reported together.
func (in *Installed) ResolveImports(guest wazero.CompiledModule) error {
	var errs error
	for _, fn := range guest.ImportedFunctions() {
		moduleName, name, _ := fn.Import()
		host, ok := in.modules[moduleName]
		if !ok {
			errs = multierr.Append(errs, &errors.BuildError{Phase: errors.PhaseLink, Name: moduleName + "." + name,
				Err: fmt.Errorf("unknown import namespace %q", moduleName)})
			continue
		}
		provided, ok := host.ExportedFunctions()[name]
		if !ok {
			errs = multierr.Append(errs, &errors.BuildError{Phase: errors.PhaseLink, Name: moduleName + "." + name,
				Err: fmt.Errorf("no host function %q", name)})
			continue
		}
		if !sameSignature(fn, provided) {
			errs = multierr.Append(errs, &errors.BuildError{Phase: errors.PhaseLink, Name: moduleName + "." + name,
				Err: fmt.Errorf("signature mismatch: guest wants %s, host provides %s", signature(fn), signature(provided))})
		}
	}
	for _, mem := range guest.ImportedMemories() {
		moduleName, name, _ := mem.Import()
		errs = multierr.Append(errs, &errors.BuildError{Phase: errors.PhaseLink, Name: moduleName + "." + name,
			Err: fmt.Errorf("memory imports are not provided by the host")})
	}
	return errs
}

func sameSignature(a, b api.FunctionDefinition) bool {
	return slices.Equal(a.ParamTypes(), b.ParamTypes()) && slices.Equal(a.ResultTypes(), b.ResultTypes())
}

func signature(fn api.FunctionDefinition) string {
	names := func(ts []api.ValueType) []string {
		out := make([]string, len(ts))
		for i, t := range ts {
			out[i] = api.ValueTypeName(t)
		}
		return out
	}
	return fmt.Sprintf("%v -> %v", names(fn.ParamTypes()), names(fn.ResultTypes()))
}
