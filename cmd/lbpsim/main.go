// Command lbpsim replays topology events from a scenario file against the
// datacenter-aware load balancing policy and prints node distances, live nodes
// and query plans after every event.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/urfave/cli/v2"

	"github.com/scylladb/dc-aware-lbp-golang/internal/sim"
	"github.com/scylladb/dc-aware-lbp-golang/lbp"
	"github.com/scylladb/dc-aware-lbp-golang/logx"
	"github.com/scylladb/dc-aware-lbp-golang/logxzap"
	"github.com/scylladb/dc-aware-lbp-golang/metrics"
)

const metricsNamespace = "lbpsim"

func main() { os.Exit(main1()) }

func main1() int {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lbpsim",
		Usage: "replay topology events against the load balancing policy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "policy log level: debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:  "json-logs",
				Usage: "log JSON lines instead of console output",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run a scenario file",
				ArgsUsage: "<scenario.toml>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "metrics", Usage: "print the policy metrics after the run"},
					&cli.StringFlag{Name: "session", Value: "s0", Usage: "session name used in log messages"},
					&cli.StringFlag{Name: "profile", Value: "default", Usage: "profile name used in log messages"},
				},
				Action: runScenario,
			},
		},
	}
}

func runScenario(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: lbpsim run <scenario.toml>")
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}

	sc, err := sim.Load(c.Args().First())
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(metricsNamespace, reg)
	if err != nil {
		return err
	}

	report, err := sim.Run(c.Context, sc, logger,
		lbp.WithMetrics(collector),
		lbp.WithSessionName(c.String("session")),
		lbp.WithProfileName(c.String("profile")),
	)
	if err != nil {
		return err
	}
	if err := report.WriteText(c.App.Writer); err != nil {
		return err
	}
	if c.Bool("metrics") {
		return writeMetrics(c.App.Writer, reg)
	}
	return nil
}

func newLogger(c *cli.Context) (logx.Logger, error) {
	lvl, err := logx.ParseLevel(c.String("log-level"))
	if err != nil {
		return nil, err
	}
	if c.Bool("json-logs") {
		return logxzap.NewProduction(c.App.ErrWriter, lvl), nil
	}
	return logxzap.NewConsole(c.App.ErrWriter, lvl), nil
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
