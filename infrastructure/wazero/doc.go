// Package wazero binds the runtime's capability families to the wazero engine.
//
// Host imports are collected in a Table keyed by (namespace, name), each tagged
// with the capability family it belongs to. Bind registers one family; Install
// turns the frozen table into one host module per namespace and ResolveImports
// checks a compiled guest against them before anything is instantiated.
//
//	table := wazero.NewTable()
//	if err := wazero.BindAll(table, cfg); err != nil {
//	    return err
//	}
//	installed, err := wazero.Install(ctx, runtime, table, wazero.LoggingMiddleware())
//	if err != nil {
//	    return err
//	}
//	err = installed.ResolveImports(compiled)
//
// Host imports find the invocation's state through capability.FromContext on
// the context passed to the guest call. They never trap on bad input; every
// failure is returned to the guest as an error value.
package wazero
