package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "nutricache",
		Usage: "Nutrition fact cache server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config.yaml",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the HTTP server and the background sweeper",
				Action: serveAction,
			},
			{
				Name:   "sweep",
				Usage:  "remove expired entries from the configured store once",
				Action: sweepAction,
			},
			{
				Name:   "stats",
				Usage:  "print statistics of the configured store",
				Action: statsAction,
			},
		},
	}
}
