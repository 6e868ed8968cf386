package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/reglet-dev/glass/bindings/httpv01"
	"github.com/reglet-dev/glass/trigger/httptrigger"
)

func httpCommand() *cli.Command {
	return &cli.Command{
		Name:  "http",
		Usage: "start the HTTP listener for a deislabs_http_v01 component",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "listen on `address`",
				Value: httptrigger.DefaultAddress,
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "serve Prometheus metrics at " + httptrigger.MetricsPath,
			},
			&cli.Int64Flag{
				Name:  "max-body-bytes",
				Usage: "reject request bodies larger than `n` bytes",
				Value: httptrigger.DefaultMaxBodyBytes,
			},
		},
		Action: runHTTP,
	}
}

func runHTTP(c *cli.Context) (err error) {
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

	reg := newRegistry()
	engine, err := httpv01.New(ctx, src, cfg, engineOptions(c, reg)...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, engine.Close(context.WithoutCancel(ctx)))
	}()

	opts := []httptrigger.Option{httptrigger.WithMaxBodyBytes(c.Int64("max-body-bytes"))}
	if c.Bool("metrics") {
		opts = append(opts, httptrigger.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	return httptrigger.New(engine, opts...).Run(ctx, c.String("listen"))
}
