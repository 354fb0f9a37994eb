package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "dbroute"
	app.Usage = "shard routing command-line tool"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "config file (yaml, json or toml)",
			Value:  "dbroute.yaml",
			EnvVar: "DBROUTE_CONFIG",
		},
		cli.StringFlag{
			Name:  "key",
			Usage: "config key holding nodes and tables",
			Value: "shard",
		},
	}
	app.Commands = []cli.Command{
		resolveCommand,
		checkCommand,
		watchCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dbroute:", err)
		os.Exit(1)
	}
}
