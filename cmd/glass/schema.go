package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/reglet-dev/glass/config"
)

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "print the JSON schema of the configuration file",
		Action: func(c *cli.Context) error {
			schema, err := config.Schema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, string(schema))
			return err
		},
	}
}
