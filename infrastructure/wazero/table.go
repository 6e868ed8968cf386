package wazero

import (
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Family tags the capability family a host import belongs to.
type Family int

const (
	FamilyOS Family = iota
	FamilyHTTP
	FamilyInference
)

// Families lists every capability family in registration order.
var Families = []Family{FamilyOS, FamilyHTTP, FamilyInference}

func (f Family) String() string {
	switch f {
	case FamilyOS:
		return "os"
	case FamilyHTTP:
		return "http"
	case FamilyInference:
		return "inference"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// Touches names the Capability Context field a host import operates on.
type Touches string

const (
	TouchesOS        Touches = "os"
	TouchesHTTP      Touches = "http"
	TouchesInference Touches = "inference"
)

// Definition is one host import.
type Definition struct {
	Func      api.GoModuleFunc
	Namespace string
	Name      string
	Touches   Touches
	Params    []api.ValueType
	Results   []api.ValueType
	Family    Family
}

// ModuleExporter adds a set of functions to a host module at once, such as
// the WASI preview1 exporter.
type ModuleExporter func(wazero.HostModuleBuilder)

type defKey struct {
	namespace string
	name      string
}

type moduleEntry struct {
	export ModuleExporter
	family Family
}

// Table maps (namespace, name) to host imports. It is mutable until Freeze and
// read-only afterwards.
type Table struct {
	defs    map[defKey]Definition
	modules map[string][]moduleEntry
	strict  bool
	frozen  bool
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithStrictNames makes a duplicate (namespace, name) registration an error
// instead of shadowing the earlier one.
func WithStrictNames() TableOption {
	return func(t *Table) {
		t.strict = true
	}
}

// NewTable creates an empty table.
func NewTable(opts ...TableOption) *Table {
	t := &Table{
		defs:    make(map[defKey]Definition),
		modules: make(map[string][]moduleEntry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Strict reports whether name collisions are errors.
func (t *Table) Strict() bool {
	return t.strict
}

// Register adds a host import. A later registration of the same name shadows
// the earlier one and logs a warning, unless the table is strict.
func (t *Table) Register(def Definition) error {
	if t.frozen {
		return fmt.Errorf("table is frozen; cannot register %s.%s", def.Namespace, def.Name)
	}
	if def.Namespace == "" || def.Name == "" {
		return fmt.Errorf("host import needs a namespace and a name")
	}
	if def.Func == nil {
		return fmt.Errorf("host import %s.%s has no implementation", def.Namespace, def.Name)
	}
	key := defKey{def.Namespace, def.Name}
	if prev, exists := t.defs[key]; exists {
		if t.strict {
			return fmt.Errorf("duplicate host import %s.%s", def.Namespace, def.Name)
		}
		Logger().Warn("host import shadowed",
			zap.String("namespace", def.Namespace),
			zap.String("name", def.Name),
			zap.Stringer("previous_family", prev.Family),
			zap.Stringer("family", def.Family))
	}
	t.defs[key] = def
	return nil
}

// RegisterModule adds a whole-module exporter to namespace. Individual
// definitions in the same namespace are applied after it and shadow its
// functions.
func (t *Table) RegisterModule(namespace string, family Family, export ModuleExporter) error {
	if t.frozen {
		return fmt.Errorf("table is frozen; cannot register module %s", namespace)
	}
	if namespace == "" || export == nil {
		return fmt.Errorf("module exporter needs a namespace and an exporter")
	}
	t.modules[namespace] = append(t.modules[namespace], moduleEntry{export: export, family: family})
	return nil
}

// Freeze makes the table read-only.
func (t *Table) Freeze() {
	t.frozen = true
}

// Frozen reports whether Freeze was called.
func (t *Table) Frozen() bool {
	return t.frozen
}

// Lookup returns the definition registered for namespace.name.
func (t *Table) Lookup(namespace, name string) (Definition, bool) {
	d, ok := t.defs[defKey{namespace, name}]
	return d, ok
}

// Namespaces returns every namespace in sorted order.
func (t *Table) Namespaces() []string {
	seen := make(map[string]bool)
	for k := range t.defs {
		seen[k.namespace] = true
	}
	for ns := range t.modules {
		seen[ns] = true
	}
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Definitions returns the definitions of namespace sorted by name.
func (t *Table) Definitions(namespace string) []Definition {
	var out []Definition
	for k, d := range t.defs {
		if k.namespace == namespace {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *Table) exporters(namespace string) []moduleEntry {
	return t.modules[namespace]
}
