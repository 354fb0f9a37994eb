package main

import (
	"context"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/ceyewan/dbroute/shard"
	"github.com/ceyewan/dbroute/xerrors"
)

var resolveCommand = cli.Command{
	Name:      "resolve",
	Usage:     "resolve which node and physical table serve one access",
	ArgsUsage: "<table> <key>",
	UsageText: `dbroute resolve [--class replica] [--format yaml] <table> <key>

the key is passed as text; integer policies parse it as base-10,
date policies accept any common date layout.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "class",
			Usage: "primary or replica",
			Value: "primary",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Usage: "resolve timeout, covers map-store round trips",
			Value: 5 * time.Second,
		},
		formatFlag,
	},
	Action: runResolve,
}

func runResolve(c *cli.Context) error {
	if c.NArg() != 2 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "want <table> <key>")
	}
	table, key := c.Args().Get(0), c.Args().Get(1)

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	e, err := newEnv(ctx, c)
	if err != nil {
		return err
	}
	defer e.Close()

	target, err := e.router.Resolve(ctx, table, key, shard.ParseReplicaClass(c.String("class")))
	if err != nil {
		return err
	}
	return render(os.Stdout, c.String("format"), target)
}
