package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/ceyewan/dbroute/clog"
)

var watchCommand = cli.Command{
	Name:  "watch",
	Usage: "load the configuration and reload the router whenever the file changes",
	UsageText: `dbroute watch

runs until interrupted; set metrics.port in the config file to expose
reload and resolve counters for scraping.`,
	Action: runWatch,
}

func runWatch(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEnv(ctx, c)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.router.WatchLoader(ctx, e.loader, e.key); err != nil {
		return err
	}
	e.logger.Info("watching configuration",
		clog.String("file", c.GlobalString("config")),
		clog.Int("tables", len(e.router.Topology().Tables)))

	<-ctx.Done()
	e.logger.Info("shutting down")
	return nil
}
