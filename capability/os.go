package capability

import (
	"github.com/reglet-dev/glass/domain/entities"
)

// OSContext is the WASI view of one invocation.
type OSContext struct {
	env          []entities.EnvVar
	dirs         []Dir
	inheritStdio bool
}

// NewOSContext derives the OS grants from cfg. Directories are re-vetted on
// every call so a directory removed after startup fails only the invocations
// that follow.
func NewOSContext(cfg entities.Config) (*OSContext, error) {
	o := &OSContext{
		env:          append([]entities.EnvVar(nil), cfg.Env...),
		inheritStdio: cfg.InheritStdio,
	}
	for _, m := range cfg.Dirs {
		d, err := OpenDir(m.Guest, m.Host)
		if err != nil {
			return nil, err
		}
		o.dirs = append(o.dirs, d)
	}
	return o, nil
}

// Env returns the environment in configuration order.
func (o *OSContext) Env() []entities.EnvVar {
	return o.env
}

// Dirs returns the directory grants.
func (o *OSContext) Dirs() []Dir {
	return o.dirs
}

// InheritStdio reports whether the guest shares the host's standard streams.
func (o *OSContext) InheritStdio() bool {
	return o.inheritStdio
}
