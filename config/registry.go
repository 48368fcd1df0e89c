package config

import (
	"fmt"
	"os"

	"github.com/dargueta/squashblk/blockdev"
	"github.com/dargueta/squashblk/drivers/common"
	"github.com/dargueta/squashblk/drivers/memory"
	"github.com/dargueta/squashblk/drivers/mmapfile"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// OpenDriver returns the raw driver for a device: the image file at Path,
// created if missing, or a fresh memory driver if there's no path.
func (device *DeviceConfig) OpenDriver(sectorSize, totalSectors uint) (common.Driver, error) {
	recordSize := blockdev.RecordSize(sectorSize)
	if device.Path == "" {
		return memory.New(recordSize, totalSectors), nil
	}

	_, err := os.Stat(device.Path)
	if os.IsNotExist(err) {
		return mmapfile.Create(device.Path, recordSize, totalSectors)
	} else if err != nil {
		return nil, err
	}
	return mmapfile.Open(device.Path, recordSize)
}

// BuildRegistry validates `config`, opens the driver for every device, and
// registers them in the order they appear. Roles are assigned once all devices
// are registered. On failure, every driver opened so far is closed.
func BuildRegistry(config *Config, logger *zap.Logger) (*blockdev.Registry, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	registry := blockdev.NewRegistry(logger)
	fail := func(err error) (*blockdev.Registry, error) {
		if closeErr := registry.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
		return nil, err
	}

	for _, deviceConfig := range config.Devices {
		blockType, _ := blockdev.ParseBlockType(deviceConfig.Type)
		totalSectors, _ := deviceConfig.TotalSectors(config.SectorSize)

		driver, err := deviceConfig.OpenDriver(config.SectorSize, totalSectors)
		if err != nil {
			return fail(fmt.Errorf("device %q: %w", deviceConfig.Name, err))
		}

		_, err = registry.Register(
			deviceConfig.Name,
			blockType,
			deviceConfig.ExtraInfo,
			totalSectors,
			driver,
			blockdev.WithSectorSize(config.SectorSize),
		)
		if err != nil {
			if closer, ok := driver.(interface{ Close() error }); ok {
				closer.Close()
			}
			return fail(fmt.Errorf("device %q: %w", deviceConfig.Name, err))
		}
	}

	for _, deviceConfig := range config.Devices {
		if deviceConfig.Role == "" {
			continue
		}
		role, _ := blockdev.ParseBlockType(deviceConfig.Role)
		if err := registry.SetRole(role, registry.ByName(deviceConfig.Name)); err != nil {
			return fail(err)
		}
	}
	return registry, nil
}
