package wazero

import (
	"crypto/rand"
	"os"

	"github.com/tetratelabs/wazero"

	"github.com/reglet-dev/glass/capability"
)

// StartFunctions are run on instantiation when the guest exports them.
var StartFunctions = []string{"_initialize"}

// ModuleConfig derives the instantiation config of one invocation from its OS
// grants. Only the granted directories are mounted; without InheritStdio the
// guest's standard streams are discarded.
func ModuleConfig(name string, o *capability.OSContext) wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions(StartFunctions...).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)

	for _, e := range o.Env() {
		cfg = cfg.WithEnv(e.Name, e.Value)
	}

	fs := wazero.NewFSConfig()
	for _, d := range o.Dirs() {
		fs = fs.WithDirMount(d.HostPath(), d.GuestPath())
	}
	cfg = cfg.WithFSConfig(fs)

	if o.InheritStdio() {
		cfg = cfg.WithStdin(os.Stdin).WithStdout(os.Stdout).WithStderr(os.Stderr)
	}
	return cfg
}
