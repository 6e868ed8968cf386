package wazero

import (
	"context"
	stdErrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/reglet-dev/glass/domain/entities"
	"github.com/reglet-dev/glass/domain/errors"
	"github.com/reglet-dev/glass/internal/testutil"
)

func newRuntime(t *testing.T) wazero.Runtime {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })
	return r
}

func installAll(t *testing.T, r wazero.Runtime) *Installed {
	t.Helper()
	table := NewTable()
	require.NoError(t, BindAll(table, entities.DefaultConfig()))
	in, err := Install(context.Background(), r, table)
	require.NoError(t, err)
	return in
}

func compile(t *testing.T, r wazero.Runtime, source string) wazero.CompiledModule {
	t.Helper()
	compiled, err := r.CompileModule(context.Background(), testutil.Compile(t, source))
	require.NoError(t, err)
	return compiled
}

func TestInstall_Namespaces(t *testing.T) {
	r := newRuntime(t)
	in := installAll(t, r)

	assert.Equal(t, []string{NamespaceInference, NamespaceHTTP, NamespaceWASI}, in.Namespaces())
	for _, ns := range in.Namespaces() {
		assert.NotNil(t, r.Module(ns), "host module %s instantiated", ns)
	}
}

func TestInstall_FreezesTable(t *testing.T) {
	table := NewTable()
	_, err := Install(context.Background(), newRuntime(t), table)
	require.NoError(t, err)
	assert.True(t, table.Frozen())
}

func TestResolveImports(t *testing.T) {
	r := newRuntime(t)
	in := installAll(t, r)

	for _, guest := range []string{testutil.Fetch(), testutil.Infer(), testutil.Environ(), testutil.Preopen(), testutil.Ping("")} {
		assert.NoError(t, in.ResolveImports(compile(t, r, guest)))
	}

	tests := []struct {
		name     string
		guest    string
		wantName string
	}{
		{"unknown function", testutil.UnknownImport(), "wasi_experimental_http.teleport"},
		{"unknown namespace", testutil.UnknownNamespace(), "env.abort"},
		{"signature mismatch", testutil.MismatchedImport(), "wasi_experimental_http.close"},
		{"memory import", `(module (import "env" "memory" (memory 1)))`, "env.memory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := in.ResolveImports(compile(t, r, tt.guest))
			require.Error(t, err)

			var berr *errors.BuildError
			require.True(t, stdErrors.As(err, &berr))
			assert.Equal(t, errors.PhaseLink, berr.Phase)
			assert.Equal(t, tt.wantName, berr.Name)
		})
	}
}

func TestResolveImports_ReportsEveryFailure(t *testing.T) {
	r := newRuntime(t)
	in := installAll(t, r)

	err := in.ResolveImports(compile(t, r, `(module
  (import "env" "abort" (func))
  (import "wasi_experimental_http" "teleport" (func))
  (import "wasi_experimental_http" "close" (func (param i64) (result i32))))`))
	assert.Len(t, multierr.Errors(err), 3)
	assert.Contains(t, err.Error(), "[i64] -> [i32]")
}

const callerGuest = `(module
  (import "test" "inc" (func $inc (param i32) (result i32)))
  (func (export "run") (param i32) (result i32) (call $inc (local.get 0))))`

func TestInstall_MiddlewareOrder(t *testing.T) {
	r := newRuntime(t)
	table := NewTable()
	require.NoError(t, table.Register(Definition{
		Namespace: "test",
		Name:      "inc",
		Params:    i32s(1),
		Results:   i32s(1),
		Func: func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeU32(api.DecodeU32(stack[0]) + 1)
		},
	}))

	var order []string
	record := func(name string) Middleware {
		return func(def Definition, next api.GoModuleFunc) api.GoModuleFunc {
			return func(ctx context.Context, mod api.Module, stack []uint64) {
				order = append(order, name+">"+def.Name)
				next(ctx, mod, stack)
				order = append(order, name+"<")
			}
		}
	}
	_, err := Install(context.Background(), r, table, record("outer"), record("inner"))
	require.NoError(t, err)

	mod, err := r.Instantiate(context.Background(), testutil.Compile(t, callerGuest))
	require.NoError(t, err)
	results, err := mod.ExportedFunction("run").Call(context.Background(), 41)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), results[0])
	assert.Equal(t, []string{"outer>inc", "inner>inc", "inner<", "outer<"}, order)
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })

	r := newRuntime(t)
	table := NewTable()
	require.NoError(t, table.Register(Definition{
		Namespace: "test",
		Name:      "inc",
		Params:    i32s(1),
		Results:   i32s(1),
		Func:      func(_ context.Context, _ api.Module, stack []uint64) {},
	}))
	_, err := Install(context.Background(), r, table, LoggingMiddleware())
	require.NoError(t, err)

	mod, err := r.Instantiate(context.Background(), testutil.Compile(t, callerGuest))
	require.NoError(t, err)
	run := mod.ExportedFunction("run")

	_, err = run.Call(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("host import").Len())

	_, err = run.Call(context.Background(), 7)
	require.NoError(t, err)
	failed := logs.FilterMessage("host import returned error").All()
	require.Len(t, failed, 1)
	assert.Equal(t, uint64(7), failed[0].ContextMap()["errno"])
}

func TestInstall_ExporterCollision(t *testing.T) {
	shadow := Definition{
		Namespace: NamespaceWASI,
		Name:      "random_get",
		Params:    i32s(2),
		Results:   i32s(1),
		Func:      func(_ context.Context, _ api.Module, stack []uint64) { stack[0] = 0 },
	}

	t.Run("lenient", func(t *testing.T) {
		table := NewTable()
		require.NoError(t, Bind(table, FamilyOS, entities.DefaultConfig()))
		require.NoError(t, table.Register(shadow))

		_, err := Install(context.Background(), newRuntime(t), table)
		assert.NoError(t, err)
	})

	t.Run("strict", func(t *testing.T) {
		table := NewTable(WithStrictNames())
		require.NoError(t, Bind(table, FamilyOS, entities.DefaultConfig()))
		require.NoError(t, table.Register(shadow))

		_, err := Install(context.Background(), newRuntime(t), table)
		var berr *errors.BuildError
		require.True(t, stdErrors.As(err, &berr))
		assert.Equal(t, errors.PhaseBind, berr.Phase)
		assert.Equal(t, NamespaceWASI+".random_get", berr.Name)
	})
}
