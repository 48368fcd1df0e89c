package blockdev

// DeviceStats is a snapshot of a device's I/O counters. Counters only ever
// increase, except CompressedSectors which tracks the current state of the
// sectors the device has touched.
type DeviceStats struct {
	Name string
	Type BlockType
	// Reads is the number of sectors read from the driver.
	Reads uint64
	// Writes is the number of sectors written to the driver.
	Writes uint64
	// CompressedWrites is the number of writes stored in compressed form.
	CompressedWrites uint64
	// UncompressedWrites is the number of writes that fell back to storing the
	// sector verbatim.
	UncompressedWrites uint64
	// CompressedSectors is the number of sectors last seen stored compressed.
	CompressedSectors uint64
}

// Stats returns a consistent snapshot of the device's counters.
func (device *Device) Stats() DeviceStats {
	device.mu.Lock()
	defer device.mu.Unlock()

	return DeviceStats{
		Name:               device.name,
		Type:               device.blockType,
		Reads:              device.reads,
		Writes:             device.writes,
		CompressedWrites:   device.compressedWrites,
		UncompressedWrites: device.uncompressedWrites,
		CompressedSectors:  device.compressedCount,
	}
}
