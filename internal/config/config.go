package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/fxnlabs/gpubridge/internal/gpu"
)

const (
	// HomeEnv overrides the default home directory.
	HomeEnv = "GPUBRIDGE_HOME"
	// FileName is the config file looked up inside the home directory.
	FileName = "config.yaml"

	defaultModule      = "cudadnn"
	defaultVerbosity   = "info"
	defaultPrecision   = "float"
	defaultHostName    = "host"
	defaultHostMemory  = "8GiB"
	defaultHostDevices = 1
)

var defaultVersions = []string{"12.8", "12.4", "11.8"}

type LoggerConfig struct {
	Verbosity string `yaml:"verbosity"`
}

type ChannelConfig struct {
	Module      string   `yaml:"module"`
	Versions    []string `yaml:"versions"`
	SearchPaths []string `yaml:"searchPaths"`
	// Host selects the in-process host channel instead of the native module.
	Host bool `yaml:"host"`
}

type SessionConfig struct {
	Device      int    `yaml:"device"`
	Precision   string `yaml:"precision"`
	Ghost       bool   `yaml:"ghost"`
	ExtendedRNN bool   `yaml:"extendedRnn"`
}

type HostConfig struct {
	DeviceName  string `yaml:"deviceName"`
	Devices     int    `yaml:"devices"`
	TotalMemory string `yaml:"totalMemory"`
}

type MetricsConfig struct {
	ListenAddress string `yaml:"listenAddress"`
}

type Config struct {
	Logger  LoggerConfig  `yaml:"logger"`
	Channel ChannelConfig `yaml:"channel"`
	Session SessionConfig `yaml:"session"`
	Host    HostConfig    `yaml:"host"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns a config with every default applied.
func Default() *Config {
	var c Config
	c.ApplyDefaults()
	return &c
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &config, nil
}

// LoadOrDefault loads path, or returns Default if the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	c, err := LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return c, err
}

// ApplyDefaults fills in every unset field.
func (c *Config) ApplyDefaults() {
	if c.Logger.Verbosity == "" {
		c.Logger.Verbosity = defaultVerbosity
	}
	if c.Channel.Module == "" {
		c.Channel.Module = defaultModule
	}
	if len(c.Channel.Versions) == 0 {
		c.Channel.Versions = append([]string(nil), defaultVersions...)
	}
	if c.Session.Precision == "" {
		c.Session.Precision = defaultPrecision
	}
	if c.Host.DeviceName == "" {
		c.Host.DeviceName = defaultHostName
	}
	if c.Host.Devices <= 0 {
		c.Host.Devices = defaultHostDevices
	}
	if c.Host.TotalMemory == "" {
		c.Host.TotalMemory = defaultHostMemory
	}
}

// Validate rejects values the layer cannot act on.
func (c *Config) Validate() error {
	if _, err := gpu.ParsePrecision(c.Session.Precision); err != nil {
		return err
	}
	if c.Session.Device < 0 {
		return fmt.Errorf("session.device must not be negative, got %d", c.Session.Device)
	}
	if _, err := c.HostTotalMemory(); err != nil {
		return err
	}
	return nil
}

// Precision returns the parsed session precision.
func (c *Config) Precision() gpu.Precision {
	p, _ := gpu.ParsePrecision(c.Session.Precision)
	return p
}

// HostTotalMemory parses host.totalMemory ("8GiB", "512 MB").
func (c *Config) HostTotalMemory() (int64, error) {
	n, err := humanize.ParseBytes(c.Host.TotalMemory)
	if err != nil {
		return 0, fmt.Errorf("host.totalMemory %q: %w", c.Host.TotalMemory, err)
	}
	return int64(n), nil
}

// ChannelOptions translates the channel and host sections.
func (c *Config) ChannelOptions() (gpu.ChannelOptions, error) {
	total, err := c.HostTotalMemory()
	if err != nil {
		return gpu.ChannelOptions{}, err
	}
	kind := gpu.ChannelNative
	if c.Channel.Host {
		kind = gpu.ChannelHost
	}
	return gpu.ChannelOptions{
		Kind: kind,
		Loader: gpu.ModuleLoader{
			Module:      c.Channel.Module,
			Versions:    c.Channel.Versions,
			SearchPaths: c.Channel.SearchPaths,
		},
		Host: gpu.HostConfig{
			DeviceName:  c.Host.DeviceName,
			Devices:     c.Host.Devices,
			TotalMemory: total,
		},
	}, nil
}

// SessionOptions translates the session section.
func (c *Config) SessionOptions() gpu.Options {
	return gpu.Options{
		Device:      c.Session.Device,
		Ghost:       c.Session.Ghost,
		ExtendedRNN: c.Session.ExtendedRNN,
	}
}

// GetDefaultConfigHome returns $GPUBRIDGE_HOME, or ~/.gpubridge.
func GetDefaultConfigHome() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".gpubridge"
	}
	return filepath.Join(dir, ".gpubridge")
}
