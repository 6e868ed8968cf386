package host

import (
	"fmt"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"

	"github.com/reglet-dev/glass/domain/errors"
)

// MemoryExport is the name a guest's linear memory must be exported under.
const MemoryExport = "memory"

// Export is a function a guest must export.
type Export struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Interface is the set of exports an entrypoint world requires from a guest.
type Interface struct {
	// Name identifies the world, e.g. "deislabs_http_v01". It labels metrics and logs.
	Name    string
	Exports []Export
	// Memory requires an exported linear memory.
	Memory bool
}

// Validate reports every required export compiled lacks or exports with a
// different signature. Exports not named by the interface are ignored.
func (i Interface) Validate(compiled wazero.CompiledModule) error {
	var errs error
	exported := compiled.ExportedFunctions()
	for _, want := range i.Exports {
		got, ok := exported[want.Name]
		if !ok {
			errs = multierr.Append(errs, &errors.BuildError{Phase: errors.PhaseResolve, Name: want.Name,
				Err: fmt.Errorf("%s requires export %q", i.Name, want.Name)})
			continue
		}
		if !slices.Equal(got.ParamTypes(), want.Params) || !slices.Equal(got.ResultTypes(), want.Results) {
			errs = multierr.Append(errs, &errors.BuildError{Phase: errors.PhaseResolve, Name: want.Name,
				Err: fmt.Errorf("export %q has signature %s, %s requires %s",
					want.Name, signature(got.ParamTypes(), got.ResultTypes()), i.Name, signature(want.Params, want.Results))})
		}
	}
	if i.Memory {
		if _, ok := compiled.ExportedMemories()[MemoryExport]; !ok {
			errs = multierr.Append(errs, &errors.BuildError{Phase: errors.PhaseResolve, Name: MemoryExport,
				Err: fmt.Errorf("%s requires an exported memory", i.Name)})
		}
	}
	return errs
}

func signature(params, results []api.ValueType) string {
	names := func(ts []api.ValueType) []string {
		out := make([]string, len(ts))
		for i, t := range ts {
			out[i] = api.ValueTypeName(t)
		}
		return out
	}
	return fmt.Sprintf("%v -> %v", names(params), names(results))
}
