package wazero

import (
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/reglet-dev/glass/capability"
	"github.com/reglet-dev/glass/domain/entities"
	"github.com/reglet-dev/glass/domain/errors"
	"github.com/reglet-dev/glass/hostfuncs"
)

// Host import namespaces.
const (
	NamespaceWASI      = wasi_snapshot_preview1.ModuleName
	NamespaceHTTP      = "wasi_experimental_http"
	NamespaceInference = "wasi_ephemeral_nn"
)

var i32 = api.ValueTypeI32

func i32s(n int) []api.ValueType {
	out := make([]api.ValueType, n)
	for i := range out {
		out[i] = i32
	}
	return out
}

// Bind registers the host imports of family into table. Grants in cfg are
// vetted here so a bad grant fails the build instead of an invocation.
func Bind(table *Table, family Family, cfg entities.Config) error {
	switch family {
	case FamilyOS:
		return bindOS(table, cfg)
	case FamilyHTTP:
		return bindHTTP(table, cfg)
	case FamilyInference:
		return bindInference(table)
	default:
		return &errors.BuildError{Phase: errors.PhaseBind, Err: fmt.Errorf("unknown capability family %s", family)}
	}
}

// BindAll registers every family.
func BindAll(table *Table, cfg entities.Config) error {
	for _, f := range Families {
		if err := Bind(table, f, cfg); err != nil {
			return err
		}
	}
	return nil
}

func bindOS(table *Table, cfg entities.Config) error {
	for _, m := range cfg.Dirs {
		if _, err := capability.OpenDir(m.Guest, m.Host); err != nil {
			return &errors.BuildError{Phase: errors.PhasePreopen, Name: m.Guest, Err: err}
		}
	}
	err := table.RegisterModule(NamespaceWASI, FamilyOS, func(b wazero.HostModuleBuilder) {
		wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(b)
	})
	if err != nil {
		return &errors.BuildError{Phase: errors.PhaseBind, Name: NamespaceWASI, Err: err}
	}
	return nil
}

func bindHTTP(table *Table, cfg entities.Config) error {
	if _, err := hostfuncs.NewAllowList(cfg.AllowedHTTPHosts); err != nil {
		return &errors.BuildError{Phase: errors.PhaseConfigure, Name: "allowed_http_hosts", Err: err}
	}
	defs := []Definition{
		{Name: "req", Func: httpReq, Params: i32s(10), Results: i32s(1)},
		{Name: "close", Func: httpClose, Params: i32s(1), Results: i32s(1)},
		{Name: "header_get", Func: httpHeaderGet, Params: i32s(6), Results: i32s(1)},
		{Name: "headers_get_all", Func: httpHeadersGetAll, Params: i32s(4), Results: i32s(1)},
		{Name: "body_read", Func: httpBodyRead, Params: i32s(4), Results: i32s(1)},
	}
	return registerAll(table, NamespaceHTTP, FamilyHTTP, TouchesHTTP, defs)
}

func bindInference(table *Table) error {
	defs := []Definition{
		{Name: "load", Func: nnLoad, Params: i32s(5), Results: i32s(1)},
		{Name: "init_execution_context", Func: nnInitExecutionContext, Params: i32s(2), Results: i32s(1)},
		{Name: "set_input", Func: nnSetInput, Params: i32s(3), Results: i32s(1)},
		{Name: "compute", Func: nnCompute, Params: i32s(1), Results: i32s(1)},
		{Name: "get_output", Func: nnGetOutput, Params: i32s(5), Results: i32s(1)},
	}
	return registerAll(table, NamespaceInference, FamilyInference, TouchesInference, defs)
}

func registerAll(table *Table, namespace string, family Family, touches Touches, defs []Definition) error {
	for _, d := range defs {
		d.Namespace = namespace
		d.Family = family
		d.Touches = touches
		if err := table.Register(d); err != nil {
			return &errors.BuildError{Phase: errors.PhaseBind, Name: namespace + "." + d.Name, Err: err}
		}
	}
	return nil
}
