package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/common-nighthawk/go-figure"

	"github.com/fxnlabs/gpubridge/fixtures"
	"github.com/fxnlabs/gpubridge/internal/config"
)

func printBanner(w io.Writer) {
	fmt.Fprintln(w, figure.NewFigure("gpubridge", "", true).String())
}

// writeConfigTemplate drops the embedded config template into home.
func writeConfigTemplate(home string, force bool) (string, error) {
	path := filepath.Join(home, config.FileName)
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists; use --force to overwrite it", path)
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", home, err)
	}
	if err := os.WriteFile(path, fixtures.ConfigTemplate, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
