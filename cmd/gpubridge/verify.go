package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/gpubridge/internal/gpu"
	"github.com/fxnlabs/gpubridge/internal/verify"
)

func verifyCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Run a random matrix multiply on each device and check the product on the host",
		Flags: []cli.Flag{
			&cli.IntSliceFlag{Name: "device", Aliases: []string{"d"}, Usage: "Device ordinal to check, repeatable"},
			&cli.IntFlag{Name: "size", Value: 256, Usage: "Edge of the square operands"},
			&cli.IntFlag{Name: "rounds", Value: 8, Usage: "Rounds of Freivalds' test"},
			&cli.Int64Flag{Name: "seed", Value: 1, Usage: "Seed for operands and test vectors"},
		},
		Action: func(c *cli.Context) error {
			devices := c.IntSlice("device")
			if len(devices) == 0 {
				devices = defaultDevices(st.cfg)
			}
			opts := verify.Options{Size: c.Int("size"), Rounds: c.Int("rounds"), Seed: c.Int64("seed")}
			precision := st.cfg.Precision()
			w := c.App.Writer

			body := onStart(func(ctx context.Context, m *gpu.Manager) error {
				results, err := verifyDevices(ctx, m, precision, devices, opts, st.log)
				if err != nil {
					return err
				}
				renderVerify(w, results)
				for _, r := range results {
					if !r.Verified {
						return fmt.Errorf("gemm check failed on %s", r.Device)
					}
				}
				return nil
			})
			return runApp(c.Context, false, channelModule(st.cfg, st.log), body)
		},
	}
}

func verifyDevices(ctx context.Context, m *gpu.Manager, p gpu.Precision, devices []int, opts verify.Options, log *zap.Logger) ([]*verify.Result, error) {
	var mu sync.Mutex
	byDevice := make(map[int]*verify.Result, len(devices))
	err := m.EachDevice(ctx, devices, func(_ context.Context, d int) error {
		var (
			res *verify.Result
			err error
		)
		if p == gpu.PrecisionDouble {
			res, err = verifyOn[float64](m, d, opts, log)
		} else {
			res, err = verifyOn[float32](m, d, opts, log)
		}
		if err != nil {
			return err
		}
		mu.Lock()
		byDevice[d] = res
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	ordinals := make([]int, 0, len(byDevice))
	for d := range byDevice {
		ordinals = append(ordinals, d)
	}
	sort.Ints(ordinals)
	results := make([]*verify.Result, len(ordinals))
	for i, d := range ordinals {
		results[i] = byDevice[d]
	}
	return results, nil
}

func verifyOn[T gpu.Numeric](m *gpu.Manager, device int, opts verify.Options, log *zap.Logger) (*verify.Result, error) {
	s, err := gpu.OpenSession[T](m, gpu.Options{Device: device})
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return verify.Gemm(s, opts, log)
}

func renderVerify(w io.Writer, results []*verify.Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"DEVICE", "PRECISION", "SIZE", "FLOPS", "ELAPSED", "VERIFIED", "DIGEST"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, r := range results {
		table.Append([]string{
			r.Device,
			r.Precision,
			fmt.Sprint(r.Size),
			humanize.SI(float64(r.Flops), "FLOP"),
			r.Elapsed.String(),
			fmt.Sprint(r.Verified),
			r.Digest[:18],
		})
	}
	table.Render()
}
