package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/gpubridge/internal/config"
	"github.com/fxnlabs/gpubridge/internal/logger"
)

// state is filled in by the app's Before hook and read by every command.
type state struct {
	home string
	cfg  *config.Config
	log  *zap.Logger
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	var home, cfgPath string
	st := &state{}

	return &cli.App{
		Name:  "gpubridge",
		Usage: "Probe GPU devices and size allocation plans through the compute bridge",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "home",
				Value:       config.GetDefaultConfigHome(),
				Usage:       "Path to the gpubridge home directory",
				EnvVars:     []string{config.HomeEnv},
				Destination: &home,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Config file (default: <home>/config.yaml)",
				Destination: &cfgPath,
			},
		},
		Before: func(c *cli.Context) error {
			path := cfgPath
			if path == "" {
				path = filepath.Join(home, config.FileName)
			}
			cfg, err := config.LoadOrDefault(path)
			if err != nil {
				return err
			}
			zapLogger, err := logger.NewConsole(cfg.Logger.Verbosity)
			if err != nil {
				return err
			}
			st.home = home
			st.cfg = cfg
			st.log = zapLogger.Named("cli")
			return nil
		},
		After: func(c *cli.Context) error {
			if st.log != nil {
				_ = st.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			initCommand(st),
			probeCommand(st),
			footprintCommand(st),
			verifyCommand(st),
		},
	}
}

func initCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a default config file into the home directory",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing config file"},
		},
		Action: func(c *cli.Context) error {
			path, err := writeConfigTemplate(st.home, c.Bool("force"))
			if err != nil {
				return err
			}
			st.log.Info("config written", zap.String("path", path))
			fmt.Fprintln(c.App.Writer, path)
			return nil
		},
	}
}
