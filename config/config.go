// Package config loads the YAML device table describing which block devices
// exist, what backs them, and which roles they fill.
package config

import (
	"fmt"
	"os"

	"github.com/dargueta/squashblk/blockdev"
	"github.com/dargueta/squashblk/disks"
	"github.com/dargueta/squashblk/errors"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration file.
type Config struct {
	SectorSize uint           `yaml:"sector_size"`
	Logging    Logging        `yaml:"logging"`
	Devices    []DeviceConfig `yaml:"devices"`
}

// Logging controls the logger built by [Config.NewLogger].
type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DeviceConfig describes one block device.
type DeviceConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Role is optional. If given, the device is assigned to that role after
	// registration.
	Role string `yaml:"role,omitempty"`
	// Path is the image file backing the device. The file is created if it
	// doesn't exist. If empty, the device lives in memory.
	Path string `yaml:"path,omitempty"`
	// Sectors and Geometry are mutually exclusive ways of giving the size.
	Sectors  uint   `yaml:"sectors,omitempty"`
	Geometry string `yaml:"geometry,omitempty"`
	// ExtraInfo is included in the registration log message.
	ExtraInfo string `yaml:"extra_info,omitempty"`
}

// DefaultConfig returns a configuration with no devices.
func DefaultConfig() *Config {
	return &Config{
		SectorSize: blockdev.DefaultSectorSize,
		Logging: Logging{
			Level: "info",
		},
	}
}

// Parse reads a configuration from YAML. Missing fields take their values from
// [DefaultConfig]. The result is validated.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Load reads and validates the configuration file at `path`.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Save writes the configuration to `path` as YAML.
func (config *Config) Save(path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.NewWithMessage(errors.EINVAL, fmt.Sprintf(format, args...))
}

// Validate checks the whole configuration and reports every problem found,
// not just the first.
func (config *Config) Validate() error {
	var result error

	if config.SectorSize < blockdev.MinSectorSize {
		result = multierror.Append(
			result,
			invalid("sector_size %d is smaller than the minimum %d", config.SectorSize, blockdev.MinSectorSize),
		)
	}
	if _, err := zapcore.ParseLevel(config.Logging.Level); err != nil {
		result = multierror.Append(result, invalid("logging.level: %s", err))
	}

	names := make(map[string]bool, len(config.Devices))
	roles := make(map[blockdev.BlockType]string)
	for i, device := range config.Devices {
		label := fmt.Sprintf("devices[%d]", i)
		if device.Name == "" {
			result = multierror.Append(result, invalid("%s: name is required", label))
		} else {
			label = fmt.Sprintf("device %q", device.Name)
			if len(device.Name) > blockdev.MaxNameLength {
				result = multierror.Append(
					result,
					invalid("%s: name is longer than %d characters", label, blockdev.MaxNameLength),
				)
			}
			if names[device.Name] {
				result = multierror.Append(result, invalid("%s: defined more than once", label))
			}
			names[device.Name] = true
		}

		if _, err := blockdev.ParseBlockType(device.Type); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", label, err))
		}

		if device.Role != "" {
			role, err := blockdev.ParseBlockType(device.Role)
			switch {
			case err != nil:
				result = multierror.Append(result, fmt.Errorf("%s: %w", label, err))
			case !role.IsRole():
				result = multierror.Append(result, invalid("%s: %s is not a role", label, role))
			case roles[role] != "":
				result = multierror.Append(
					result, invalid("%s: role %s is already taken by %q", label, role, roles[role]))
			default:
				roles[role] = device.Name
			}
		}

		if _, err := device.TotalSectors(config.SectorSize); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", label, err))
		}
	}
	return result
}

// TotalSectors resolves the size of the device in sectors of `sectorSize`
// bytes.
func (device *DeviceConfig) TotalSectors(sectorSize uint) (uint, error) {
	switch {
	case device.Sectors != 0 && device.Geometry != "":
		return 0, invalid("sectors and geometry are mutually exclusive")
	case device.Sectors != 0:
		return device.Sectors, nil
	case device.Geometry != "":
		geometry, err := disks.GetPredefinedDiskGeometry(device.Geometry)
		if err != nil {
			return 0, errors.NewFromError(errors.EINVAL, err)
		}
		sectors := geometry.SectorsOfSize(sectorSize)
		if sectors == 0 {
			return 0, invalid("geometry %s is smaller than one sector", device.Geometry)
		}
		return sectors, nil
	default:
		return 0, invalid("either sectors or geometry is required")
	}
}

// NewLogger builds the logger described by the logging section.
func (config *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Logging.Level)
	if err != nil {
		return nil, err
	}

	var zapConfig zap.Config
	if config.Logging.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	return zapConfig.Build()
}
