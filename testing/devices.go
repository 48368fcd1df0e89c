// Package testing contains helpers shared by the test suites of the other
// packages. Every helper either returns a usable value or fails the test.
package testing

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/dargueta/squashblk/blockdev"
	"github.com/dargueta/squashblk/drivers/memory"
	"github.com/dargueta/squashblk/utilities/compression"
	"github.com/stretchr/testify/require"
)

// CreateRandomSector returns `sectorSize` bytes of random data.
func CreateRandomSector(sectorSize uint, t *testing.T) []byte {
	data := make([]byte, sectorSize)
	_, err := rand.Read(data)
	require.NoErrorf(t, err, "failed to fill %d-byte sector with random bytes", sectorSize)
	return data
}

// NewMemoryDevice creates a device backed by a fresh memory driver, and returns
// both.
//
// Arguments:
//
//   - name: The device name.
//   - blockType: The device type. Use [blockdev.Foreign] to get a read-only
//     device.
//   - sectorSize: The logical sector size. The driver's records are sized to
//     match.
//   - totalSectors: The number of sectors on the device.
//   - options: Passed through to [blockdev.NewDevice] after the sector size.
func NewMemoryDevice(
	t *testing.T,
	name string,
	blockType blockdev.BlockType,
	sectorSize uint,
	totalSectors uint,
	options ...blockdev.DeviceOption,
) (*blockdev.Device, *memory.Driver) {
	driver := memory.New(blockdev.RecordSize(sectorSize), totalSectors)

	allOptions := append([]blockdev.DeviceOption{blockdev.WithSectorSize(sectorSize)}, options...)
	device, err := blockdev.NewDevice(name, blockType, totalSectors, driver, allOptions...)
	require.NoError(t, err, "failed to create memory device")
	require.EqualValues(t, totalSectors, device.TotalSectors(), "wrong total sectors")
	require.EqualValues(t, sectorSize, device.SectorSize(), "wrong sector size")
	return device, driver
}

// LoadDiskImage takes an archived (RLE8 + gzip) raw image and returns a memory
// driver holding the expanded records. The image must expand to exactly
// `recordSize * totalRecords` bytes.
func LoadDiskImage(
	t *testing.T, compressedImageBytes []byte, recordSize, totalRecords uint,
) *memory.Driver {
	require.Greater(t, len(compressedImageBytes), 0, "compressed image is empty")

	imageBytes, err := compression.DecompressImageToBytes(bytes.NewReader(compressedImageBytes))
	require.NoError(t, err)
	require.Equal(
		t,
		totalRecords*recordSize,
		uint(len(imageBytes)),
		"uncompressed image is wrong size",
	)

	driver, err := memory.NewFromBytes(imageBytes, recordSize)
	require.NoError(t, err)
	return driver
}
