package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/reglet-dev/glass/bindings/pingv01"
	"github.com/reglet-dev/glass/trigger/pingtrigger"
)

func pingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "call a deislabs_ping_v01 component on a timer",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "call the component every `duration`",
				Value: pingtrigger.DefaultInterval,
			},
		},
		Action: runPing,
	}
}

func runPing(c *cli.Context) (err error) {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	src, err := resolve(ctx, c)
	if err != nil {
		return err
	}

	engine, err := pingv01.New(ctx, src, cfg, engineOptions(c, newRegistry())...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, engine.Close(context.WithoutCancel(ctx)))
	}()

	return pingtrigger.New(engine,
		pingtrigger.WithInterval(c.Duration("interval")),
		pingtrigger.WithOutput(pingtrigger.NewConsole(c.App.Writer)),
	).Run(ctx)
}
