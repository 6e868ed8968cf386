// Package host builds a WebAssembly template once and runs every invocation
// in a fresh, isolated instance of it.
//
// Build validates the configuration, creates the shared wazero runtime,
// installs the capability families and compiles the guest. Every import and
// every export the entrypoint interface requires is resolved before any guest
// code runs, so a module that would fail to link never makes it past startup.
//
// Prepare creates a new capability context and instance for one invocation:
//
//	engine, err := host.Build(ctx, host.FromFile("app.wasm"), iface, cfg)
//	if err != nil {
//		return err
//	}
//	defer engine.Close(ctx)
//
//	out, err := host.Invoke(ctx, engine, nil, func(inst *host.Instance) (string, error) {
//		results, err := inst.Call("run")
//		...
//	})
//
// Only the runtime and the compiled template are shared between invocations;
// both are read-only after Build.
package host
