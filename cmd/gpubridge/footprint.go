package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/gpubridge/fixtures"
	"github.com/fxnlabs/gpubridge/internal/config"
	"github.com/fxnlabs/gpubridge/internal/footprint"
	"github.com/fxnlabs/gpubridge/internal/gpu"
)

func footprintCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:      "footprint",
		Usage:     "Replay an allocation plan in ghost memory and report its footprint",
		ArgsUsage: "[plan.yaml]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "host", Usage: "Use the in-process host channel instead of the native module"},
		},
		Action: func(c *cli.Context) error {
			plan, err := loadPlan(c.Args().First())
			if err != nil {
				return err
			}
			cfg := *st.cfg
			if c.Bool("host") {
				cfg.Channel.Host = true
			}
			opts := cfg.SessionOptions()
			w := c.App.Writer

			body := onStart(func(_ context.Context, m *gpu.Manager) error {
				report, err := runPlan(m, plan, opts, st.log)
				if err != nil {
					return err
				}
				renderReport(w, report)
				return nil
			})
			return runApp(c.Context, false, channelModule(&cfg, st.log), body)
		},
	}
}

// loadPlan reads the plan at path, or the bundled sample plan if path is
// empty.
func loadPlan(path string) (*config.Plan, error) {
	if path == "" {
		return config.ParsePlan(fixtures.SamplePlan)
	}
	return config.LoadPlan(path)
}

func runPlan(m *gpu.Manager, plan *config.Plan, opts gpu.Options, log *zap.Logger) (*footprint.Report, error) {
	if plan.PlanPrecision() == gpu.PrecisionDouble {
		return runPlanOn[float64](m, plan, opts, log)
	}
	return runPlanOn[float32](m, plan, opts, log)
}

func runPlanOn[T gpu.Numeric](m *gpu.Manager, plan *config.Plan, opts gpu.Options, log *zap.Logger) (*footprint.Report, error) {
	opts.Ghost = false
	s, err := gpu.OpenSession[T](m, opts)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return footprint.Run(s, plan, log)
}

func signedBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return "+" + humanize.IBytes(uint64(n))
}

func renderReport(w io.Writer, r *footprint.Report) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"STEP", "OP", "SIZE", "TOTAL"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, s := range r.Steps {
		table.Append([]string{s.Name, s.Op, signedBytes(s.Bytes), humanize.IBytes(uint64(s.TotalAfter))})
	}
	table.SetFooter([]string{"", "", "peak", humanize.IBytes(uint64(r.PeakBytes))})
	table.Render()
	fmt.Fprintln(w, r.String())
}
