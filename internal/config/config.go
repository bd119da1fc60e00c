package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxnlabs/pixel-bridge/internal/hostimg"
	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the config file looked up in the home directory.
const DefaultConfigName = "config.yaml"

type LoggerConfig struct {
	Verbosity string `yaml:"verbosity"`
}

type DeviceConfig struct {
	// Backend is "auto", "cpu" or a registered accelerator backend name.
	Backend          string `yaml:"backend"`
	MemoryLimitBytes int64  `yaml:"memoryLimitBytes"`
}

type MetricsConfig struct {
	// ListenAddress enables the /metrics endpoint when non-empty.
	ListenAddress string `yaml:"listenAddress"`
}

type ConvertConfig struct {
	OutputDepth string `yaml:"outputDepth"`
	Workers     int    `yaml:"workers"`
}

type Config struct {
	Logger  LoggerConfig  `yaml:"logger"`
	Device  DeviceConfig  `yaml:"device"`
	Metrics MetricsConfig `yaml:"metrics"`
	Convert ConvertConfig `yaml:"convert"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Logger:  LoggerConfig{Verbosity: "info"},
		Device:  DeviceConfig{Backend: "auto"},
		Convert: ConvertConfig{OutputDepth: hostimg.Depth8U.String(), Workers: 4},
	}
}

// GetDefaultConfigHome returns ~/.pixel-bridge, or the working directory
// when the home directory cannot be resolved.
func GetDefaultConfigHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".pixel-bridge")
}

// LoadConfig reads a YAML config on top of DefaultConfig and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// LoadConfigOrDefault behaves like LoadConfig but returns DefaultConfig when
// path does not exist.
func LoadConfigOrDefault(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return config, err
}

// Validate checks field values that YAML decoding cannot.
func (c *Config) Validate() error {
	d, err := c.OutputDepth()
	if err != nil {
		return err
	}
	switch d {
	case hostimg.Depth8U, hostimg.Depth32F, hostimg.Depth64F:
	default:
		return fmt.Errorf("convert.outputDepth must be 8U, 32F or 64F, got %s", d)
	}
	if c.Convert.Workers < 1 {
		return fmt.Errorf("convert.workers must be positive, got %d", c.Convert.Workers)
	}
	if c.Device.MemoryLimitBytes < 0 {
		return fmt.Errorf("device.memoryLimitBytes must not be negative, got %d", c.Device.MemoryLimitBytes)
	}
	return nil
}

// OutputDepth parses Convert.OutputDepth.
func (c *Config) OutputDepth() (hostimg.Depth, error) {
	return hostimg.ParseDepth(c.Convert.OutputDepth)
}
