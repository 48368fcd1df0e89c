package blockdev

import (
	"fmt"
	"io"
	"sync"

	"github.com/dargueta/squashblk/drivers/common"
	"github.com/dargueta/squashblk/errors"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Registry keeps track of block devices in the order they were registered
// ("probe order"), and which device fulfills each role.
type Registry struct {
	mu      sync.RWMutex
	devices []*Device
	byRole  [RoleCount]*Device
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. If `logger` is nil, nothing is logged.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger}
}

// Register creates a device on top of `driver` and adds it to the end of the
// probe order. If `extraInfo` is not empty it's included in the log message
// announcing the device.
//
// Device names must be unique within a registry.
func (registry *Registry) Register(
	name string,
	blockType BlockType,
	extraInfo string,
	totalSectors uint,
	driver common.Driver,
	options ...DeviceOption,
) (*Device, error) {
	device, err := NewDevice(name, blockType, totalSectors, driver, options...)
	if err != nil {
		return nil, err
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	for _, existing := range registry.devices {
		if existing.name == device.name {
			return nil, errors.NewWithMessage(
				errors.EEXIST, fmt.Sprintf("a device named %q is already registered", device.name))
		}
	}

	device.registryIndex = len(registry.devices)
	registry.devices = append(registry.devices, device)

	message := fmt.Sprintf(
		"%s: %s sectors (%s)",
		device.name,
		humanize.Comma(int64(device.totalSectors)),
		humanize.IBytes(device.SizeBytes()),
	)
	if extraInfo != "" {
		message += ", " + extraInfo
	}
	registry.logger.Info(
		message,
		zap.String("device", device.name),
		zap.Stringer("type", device.blockType),
		zap.Uint("sectors", device.totalSectors),
		zap.Uint("sector_size", device.sectorSize),
	)
	return device, nil
}

// Devices returns all registered devices in probe order.
func (registry *Registry) Devices() []*Device {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	devices := make([]*Device, len(registry.devices))
	copy(devices, registry.devices)
	return devices
}

// First returns the first device in probe order, or nil if no devices are
// registered.
func (registry *Registry) First() *Device {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	if len(registry.devices) == 0 {
		return nil
	}
	return registry.devices[0]
}

// Next returns the device following `device` in probe order, or nil if
// `device` is nil, the last one, or isn't in this registry.
func (registry *Registry) Next(device *Device) *Device {
	if device == nil {
		return nil
	}

	registry.mu.RLock()
	defer registry.mu.RUnlock()

	index := device.registryIndex
	if index < 0 || index >= len(registry.devices) || registry.devices[index] != device {
		return nil
	}
	if index+1 == len(registry.devices) {
		return nil
	}
	return registry.devices[index+1]
}

// ByName returns the device with the given name, or nil if there is none.
func (registry *Registry) ByName(name string) *Device {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	for _, device := range registry.devices {
		if device.name == name {
			return device
		}
	}
	return nil
}

func checkRole(role BlockType) error {
	if !role.IsRole() {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("block type %s can't be used as a role", role),
		)
	}
	return nil
}

// Role returns the device assigned to `role`, or nil if no device has been
// assigned. It fails if `role` isn't one of the role types.
func (registry *Registry) Role(role BlockType) (*Device, error) {
	if err := checkRole(role); err != nil {
		return nil, err
	}

	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return registry.byRole[role], nil
}

// SetRole assigns `device` to `role`. Passing a nil device clears the role.
func (registry *Registry) SetRole(role BlockType, device *Device) error {
	if err := checkRole(role); err != nil {
		return err
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.byRole[role] = device
	return nil
}

// roleStats snapshots the counters of every device that has a role, in role
// order.
func (registry *Registry) roleStats() []DeviceStats {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	stats := make([]DeviceStats, 0, RoleCount)
	for _, device := range registry.byRole {
		if device != nil {
			stats = append(stats, device.Stats())
		}
	}
	return stats
}

// PrintStats writes one line of read/write statistics for each device that has
// been assigned a role.
func (registry *Registry) PrintStats(w io.Writer) error {
	for _, stats := range registry.roleStats() {
		_, err := fmt.Fprintf(
			w, "%s (%s): %d reads, %d writes\n", stats.Name, stats.Type, stats.Reads, stats.Writes)
		if err != nil {
			return err
		}
	}
	return nil
}

// LogStats is like [Registry.PrintStats] but sends the statistics to the
// registry's logger, including compression counters.
func (registry *Registry) LogStats() {
	for _, stats := range registry.roleStats() {
		registry.logger.Info(
			"device statistics",
			zap.String("device", stats.Name),
			zap.Stringer("type", stats.Type),
			zap.Uint64("reads", stats.Reads),
			zap.Uint64("writes", stats.Writes),
			zap.Uint64("compressed_writes", stats.CompressedWrites),
			zap.Uint64("uncompressed_writes", stats.UncompressedWrites),
			zap.Uint64("compressed_sectors", stats.CompressedSectors),
		)
	}
}

// Close syncs and closes the driver of every registered device, if the driver
// supports it. All drivers are attempted even if some fail; the errors are
// combined.
func (registry *Registry) Close() error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	var result error
	for _, device := range registry.devices {
		if syncer, ok := device.driver.(common.Syncer); ok {
			if err := syncer.Sync(); err != nil {
				result = multierror.Append(result, fmt.Errorf("syncing %s: %w", device.name, err))
			}
		}
		if closer, ok := device.driver.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("closing %s: %w", device.name, err))
			}
		}
	}
	return result
}
