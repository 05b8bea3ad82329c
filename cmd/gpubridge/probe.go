package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/fxnlabs/gpubridge/internal/config"
	"github.com/fxnlabs/gpubridge/internal/gpu"
)

func probeCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Report device names and memory through the configured channel",
		Flags: []cli.Flag{
			&cli.IntSliceFlag{
				Name:    "device",
				Aliases: []string{"d"},
				Usage:   "Device ordinal to probe, repeatable (default: session.device, or every host device)",
			},
			&cli.BoolFlag{Name: "serve", Usage: "Keep serving metrics on metrics.listenAddress after probing"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Skip the banner"},
		},
		Action: func(c *cli.Context) error {
			serve := c.Bool("serve")
			if serve && st.cfg.Metrics.ListenAddress == "" {
				return errors.New("--serve needs metrics.listenAddress in the config")
			}
			devices := c.IntSlice("device")
			if len(devices) == 0 {
				devices = defaultDevices(st.cfg)
			}
			w := c.App.Writer
			if !c.Bool("quiet") {
				printBanner(w)
			}

			body := onStart(func(ctx context.Context, m *gpu.Manager) error {
				infos, err := probeDevices(ctx, m, st.cfg.Precision(), devices)
				if err != nil {
					return err
				}
				renderDevices(w, infos)
				return nil
			})
			return runApp(c.Context, serve, channelModule(st.cfg, st.log), body)
		},
	}
}

func defaultDevices(cfg *config.Config) []int {
	if !cfg.Channel.Host {
		return []int{cfg.Session.Device}
	}
	devices := make([]int, cfg.Host.Devices)
	for i := range devices {
		devices[i] = i
	}
	return devices
}

// probeDevices probes every device concurrently and returns the results by
// ordinal.
func probeDevices(ctx context.Context, m *gpu.Manager, p gpu.Precision, devices []int) ([]gpu.DeviceInfo, error) {
	var (
		mu    sync.Mutex
		infos = make([]gpu.DeviceInfo, 0, len(devices))
	)
	err := m.EachDevice(ctx, devices, func(_ context.Context, d int) error {
		var (
			info gpu.DeviceInfo
			err  error
		)
		if p == gpu.PrecisionDouble {
			info, err = gpu.ProbeDevice[float64](m, d)
		} else {
			info, err = gpu.ProbeDevice[float32](m, d)
		}
		if err != nil {
			return err
		}
		mu.Lock()
		infos = append(infos, info)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Ordinal < infos[j].Ordinal })
	return infos, nil
}

func renderDevices(w io.Writer, infos []gpu.DeviceInfo) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"DEVICE", "NAME", "PRECISION", "TOTAL", "FREE", "USED", "ACCOUNTED"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, info := range infos {
		mem := info.Memory
		suffix := ""
		if mem.DeviceEstimated {
			suffix = "*"
		}
		table.Append([]string{
			fmt.Sprint(info.Ordinal),
			info.Name,
			info.Precision,
			fmt.Sprintf("%.2f GB%s", mem.TotalGB, suffix),
			fmt.Sprintf("%.2f GB%s", mem.FreeGB, suffix),
			fmt.Sprintf("%.2f GB%s", mem.UsedGB, suffix),
			humanize.IBytes(uint64(mem.AccountedBytes)),
		})
	}
	table.Render()
}
