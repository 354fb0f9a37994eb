package main

import (
	"context"
	"os"
	"sort"

	"github.com/urfave/cli"

	"github.com/ceyewan/dbroute/shard"
)

var checkCommand = cli.Command{
	Name:   "check",
	Usage:  "validate the configuration and print a table summary",
	Flags:  []cli.Flag{formatFlag},
	Action: runCheck,
}

// tableSummary 一张逻辑表的概要
type tableSummary struct {
	Table      string              `json:"table" yaml:"table"`
	Policy     shard.Policy        `json:"policy" yaml:"policy"`
	SplitTable bool                `json:"split_table" yaml:"split_table"`
	Primaries  []string            `json:"primaries,omitempty" yaml:"primaries,omitempty"`
	Replicas   map[string][]string `json:"replicas,omitempty" yaml:"replicas,omitempty"`
}

func runCheck(c *cli.Context) error {
	e, err := newEnv(context.Background(), c)
	if err != nil {
		return err
	}
	defer e.Close()

	topo := e.router.Topology()
	out := make([]tableSummary, 0, len(topo.Tables))
	for _, desc := range topo.Tables {
		s := tableSummary{
			Table:      desc.Table,
			Policy:     desc.Policy,
			SplitTable: desc.SplitTable,
		}
		for _, p := range desc.Primaries {
			s.Primaries = append(s.Primaries, p.Name)
		}
		for primary, replicas := range desc.Replicas {
			if s.Replicas == nil {
				s.Replicas = make(map[string][]string)
			}
			for _, r := range replicas {
				s.Replicas[primary] = append(s.Replicas[primary], r.Name)
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })

	return render(os.Stdout, c.String("format"), out)
}
