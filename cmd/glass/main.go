// Command glass runs WebAssembly components, one isolated instance per invocation.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// version is set at link time.
var version = "dev"

// globalFlags are built per app; urfave/cli flags keep parsed state.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		// Component
		&cli.StringFlag{
			Name:     "local",
			Usage:    "load the entrypoint component from `path`",
			EnvVars:  []string{"GLASS_LOCAL"},
			Category: "Component",
		},
		&cli.StringFlag{
			Name:     "reference",
			Usage:    "pull the entrypoint component `name[@digest]` from the registry",
			EnvVars:  []string{"GLASS_REFERENCE"},
			Category: "Component",
		},
		&cli.StringFlag{
			Name:     "server",
			Usage:    "registry server `url` used to pull components",
			Value:    "http://localhost:8000/v1",
			EnvVars:  []string{"GLASS_SERVER"},
			Category: "Component",
		},
		&cli.PathFlag{
			Name:     "download-dir",
			Usage:    "store pulled components under `dir`",
			Value:    ".",
			Category: "Component",
		},
		// Grants
		&cli.StringSliceFlag{
			Name:     "env",
			Aliases:  []string{"e"},
			Usage:    "pass an environment variable `NAME=VAL` to the guest; repeat either -e or --env, not both",
			Category: "Grants",
		},
		&cli.StringSliceFlag{
			Name:     "dir",
			Usage:    "grant the guest access to `DIRECTORY`",
			Category: "Grants",
		},
		&cli.StringSliceFlag{
			Name:     "mapdir",
			Usage:    "grant access to a host directory under another guest path: `GUEST_DIR::HOST_DIR`",
			Category: "Grants",
		},
		&cli.StringSliceFlag{
			Name:     "allowed-host",
			Usage:    "allow outbound HTTP to `host` (repeatable; insecure:allow-all disables filtering)",
			Category: "Grants",
		},
		&cli.IntFlag{
			Name:     "max-concurrent-requests",
			Usage:    "bound open outbound responses per invocation (0 is unlimited)",
			Category: "Grants",
		},
		&cli.BoolFlag{
			Name:     "inherit-stdio",
			Usage:    "connect the guest's standard streams to the host's",
			Category: "Grants",
		},
		// Engine
		&cli.PathFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    "load configuration from YAML `file`; flags take precedence",
			EnvVars:  []string{"GLASS_CONFIG"},
			Category: "Engine",
		},
		&cli.PathFlag{
			Name:        "cache-dir",
			Usage:       "persist compiled modules to `dir`",
			DefaultText: "disabled",
			EnvVars:     []string{"GLASS_CACHE_DIR"},
			Category:    "Engine",
		},
		&cli.DurationFlag{
			Name:     "timeout",
			Usage:    "bound each invocation to `duration` (0 disables)",
			Category: "Engine",
		},
		&cli.BoolFlag{
			Name:     "strict",
			Usage:    "fail when two host functions share a name",
			Category: "Engine",
		},
		// Logging
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "set logging `level` to debug, info, warn or error",
			Value:   "info",
			EnvVars: []string{"GLASS_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "`format` logs as console or json",
			Value:   "console",
			EnvVars: []string{"GLASS_LOG_FORMAT"},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "glass:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "glass",
		Usage:                "run WebAssembly components in per-invocation sandboxes",
		UsageText:            "glass [global options] command [command options]",
		Version:              version,
		EnableBashCompletion: true,
		Flags:                globalFlags(),
		Commands:             []*cli.Command{httpCommand(), pingCommand(), schemaCommand()},
		Before:               setupLogging,
		After:                syncLogging,
	}
}
