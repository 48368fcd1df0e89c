package blockdev

import (
	"fmt"
	"sync"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/squashblk/drivers/common"
	"github.com/dargueta/squashblk/errors"
	"github.com/dargueta/squashblk/utilities/compression"
)

// MaxNameLength is the longest device name kept. Longer names are truncated.
const MaxNameLength = 15

// Codec compresses individual sectors. Encode may fail or return output larger
// than the sector; either way the device stores the sector uncompressed. Decode
// must return exactly `originalLength` bytes or an error.
type Codec interface {
	Encode(data []byte) ([]byte, error)
	Decode(compressed []byte, originalLength int) ([]byte, error)
}

// Device presents a driver as an array of fixed-size sectors, transparently
// compressing each sector on the way to the driver and decompressing it on the
// way back.
//
// All methods are safe for concurrent use. Each Read or Write makes at most
// one driver call and holds the device's lock for its whole duration, so
// callers never need their own locking around a single device.
type Device struct {
	name         string
	blockType    BlockType
	totalSectors uint
	sectorSize   uint
	driver       common.Driver
	codec        Codec

	mu                 sync.Mutex
	reads              uint64
	writes             uint64
	compressedWrites   uint64
	uncompressedWrites uint64
	// compressedSectors has a bit set for each sector last seen stored in
	// compressed form, whether by reading or writing it.
	compressedSectors bitmap.Bitmap
	compressedCount   uint64

	registryIndex int
}

// DeviceOption customizes a [Device] at creation time.
type DeviceOption func(*Device)

// WithCodec replaces the default sector codec.
func WithCodec(codec Codec) DeviceOption {
	return func(device *Device) {
		device.codec = codec
	}
}

// WithSectorSize sets the logical sector size. The driver's records must be
// HeaderSize bytes larger than this.
func WithSectorSize(sectorSize uint) DeviceOption {
	return func(device *Device) {
		device.sectorSize = sectorSize
	}
}

// NewDevice creates a device of `totalSectors` sectors on top of `driver`.
// Devices are normally created through [Registry.Register] instead.
func NewDevice(
	name string,
	blockType BlockType,
	totalSectors uint,
	driver common.Driver,
	options ...DeviceOption,
) (*Device, error) {
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}

	device := &Device{
		name:          name,
		blockType:     blockType,
		totalSectors:  totalSectors,
		sectorSize:    DefaultSectorSize,
		driver:        driver,
		codec:         compression.RLE0Codec{},
		registryIndex: -1,
	}
	for _, option := range options {
		option(device)
	}

	if _, err := blockType.Name(); err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, errors.NewWithMessage(errors.EINVAL, "driver is required")
	}
	if device.codec == nil {
		return nil, errors.NewWithMessage(errors.EINVAL, "codec is required")
	}
	if device.sectorSize < MinSectorSize {
		return nil, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("sector size %d is smaller than the minimum %d", device.sectorSize, MinSectorSize),
		)
	}
	if totalSectors == 0 {
		return nil, errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("device %s has no sectors", name))
	}
	if driver.RecordSize() != RecordSize(device.sectorSize) {
		return nil, errors.NewWithMessage(
			errors.EMEDIUMTYPE,
			fmt.Sprintf(
				"driver for %s stores %d-byte records, need %d for %d-byte sectors",
				name,
				driver.RecordSize(),
				RecordSize(device.sectorSize),
				device.sectorSize,
			),
		)
	}
	if totalSectors > driver.TotalSectors() {
		return nil, errors.NewWithMessage(
			errors.ENOSPC,
			fmt.Sprintf(
				"device %s needs %d sectors but its driver only has %d",
				name,
				totalSectors,
				driver.TotalSectors(),
			),
		)
	}

	device.compressedSectors = bitmap.New(int(totalSectors))
	return device, nil
}

// Name returns the device's name (e.g. "hda").
func (device *Device) Name() string {
	return device.name
}

// Type returns the device's block type.
func (device *Device) Type() BlockType {
	return device.blockType
}

// TotalSectors returns the number of sectors on the device.
func (device *Device) TotalSectors() uint {
	return device.totalSectors
}

// SectorSize returns the size of one sector, in bytes.
func (device *Device) SectorSize() uint {
	return device.sectorSize
}

// SizeBytes gives the logical capacity of the device.
func (device *Device) SizeBytes() uint64 {
	return uint64(device.totalSectors) * uint64(device.sectorSize)
}

// Driver returns the raw driver the device is layered on.
func (device *Device) Driver() common.Driver {
	return device.driver
}

// checkSector verifies that `sector` is a valid index on this device.
func (device *Device) checkSector(sector common.SectorID) error {
	if uint(sector) >= device.totalSectors {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"access past end of device %s (sector=%d, size=%d)",
				device.name,
				sector,
				device.totalSectors,
			),
		)
	}
	return nil
}

// readRecord fetches the raw record for `sector` from the driver. The caller
// must hold the lock.
func (device *Device) readRecord(sector common.SectorID) ([]byte, error) {
	if err := device.checkSector(sector); err != nil {
		return nil, err
	}

	record := make([]byte, RecordSize(device.sectorSize))
	err := device.driver.ReadSector(sector, record)
	if err != nil {
		return nil, errors.NewWithMessage(
			errors.EIO, fmt.Sprintf("reading sector %d of %s", sector, device.name)).Wrap(err)
	}
	device.reads++
	return record, nil
}

// Read returns the contents of `sector` in a new slice of SectorSize() bytes.
// On failure it returns nil; a partially decoded sector is never returned.
func (device *Device) Read(sector common.SectorID) ([]byte, error) {
	device.mu.Lock()
	defer device.mu.Unlock()

	record, err := device.readRecord(sector)
	if err != nil {
		return nil, err
	}

	data, header, err := decodeRecord(record, device.sectorSize, device.codec)
	if err != nil {
		return nil, err
	}
	device.trackCompression(sector, header.Compressed())
	return data, nil
}

// ReadInto reads `sector` into `buffer`, which must be exactly SectorSize()
// bytes. If an error is returned, `buffer` is left unmodified.
func (device *Device) ReadInto(sector common.SectorID, buffer []byte) error {
	if uint(len(buffer)) != device.sectorSize {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("buffer must be %d bytes, got %d", device.sectorSize, len(buffer)),
		)
	}

	data, err := device.Read(sector)
	if err != nil {
		return err
	}
	copy(buffer, data)
	return nil
}

// Write stores `data` as the contents of `sector`. `data` must be exactly
// SectorSize() bytes. Returns after the driver has accepted the record.
//
// Sectors that don't compress well enough to fit alongside the header are
// stored uncompressed; that isn't an error.
func (device *Device) Write(sector common.SectorID, data []byte) error {
	device.mu.Lock()
	defer device.mu.Unlock()

	if err := device.checkSector(sector); err != nil {
		return err
	}
	if device.blockType == Foreign {
		return errors.NewWithMessage(
			errors.EROFS,
			fmt.Sprintf("device %s is foreign and can't be written to", device.name),
		)
	}
	if uint(len(data)) != device.sectorSize {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("sector data must be %d bytes, got %d", device.sectorSize, len(data)),
		)
	}

	record := make([]byte, RecordSize(device.sectorSize))
	header, err := encodeRecord(record, data, device.codec)
	if err != nil {
		return err
	}

	err = device.driver.WriteSector(sector, record)
	if err != nil {
		return errors.NewWithMessage(
			errors.EIO, fmt.Sprintf("writing sector %d of %s", sector, device.name)).Wrap(err)
	}

	device.writes++
	if header.Compressed() {
		device.compressedWrites++
	} else {
		device.uncompressedWrites++
	}
	device.trackCompression(sector, header.Compressed())
	return nil
}

// MustRead is like [Device.Read] but panics on failure. It's intended for
// callers that treat any storage error as unrecoverable.
func (device *Device) MustRead(sector common.SectorID) []byte {
	data, err := device.Read(sector)
	if err != nil {
		panic(err)
	}
	return data
}

// MustWrite is like [Device.Write] but panics on failure.
func (device *Device) MustWrite(sector common.SectorID, data []byte) {
	if err := device.Write(sector, data); err != nil {
		panic(err)
	}
}

// InspectRecord reads the raw record for `sector` and returns its header
// without decoding the payload. This counts as a read.
func (device *Device) InspectRecord(sector common.SectorID) (RecordHeader, error) {
	device.mu.Lock()
	defer device.mu.Unlock()

	record, err := device.readRecord(sector)
	if err != nil {
		return RecordHeader{}, err
	}

	header, err := ParseRecordHeader(record, device.sectorSize)
	if err != nil {
		return header, err
	}
	device.trackCompression(sector, header.Compressed())
	return header, nil
}

// trackCompression records whether `sector` is stored compressed. The caller
// must hold the lock.
func (device *Device) trackCompression(sector common.SectorID, compressed bool) {
	index := int(sector)
	if device.compressedSectors.Get(index) == compressed {
		return
	}

	device.compressedSectors.Set(index, compressed)
	if compressed {
		device.compressedCount++
	} else {
		device.compressedCount--
	}
}
