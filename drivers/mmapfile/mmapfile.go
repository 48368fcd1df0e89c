// Package mmapfile provides a raw driver backed by a memory-mapped image file.
// Writes land in the page cache immediately and reach the file on Sync or
// Close, so a device reopened from the same file sees every sector written
// before it was closed.
package mmapfile

import (
	"fmt"
	"os"
	"sync"

	"github.com/dargueta/squashblk/drivers/common"
	"github.com/dargueta/squashblk/errors"
	"github.com/edsrzf/mmap-go"
	"github.com/hashicorp/go-multierror"
)

type Driver struct {
	file         *os.File
	mmap         mmap.MMap
	mu           sync.RWMutex
	recordSize   uint
	totalRecords uint
}

var _ common.Driver = (*Driver)(nil)
var _ common.Syncer = (*Driver)(nil)

// Create creates (or truncates) the image file at `path` so it holds exactly
// `totalRecords` zeroed records, and maps it.
func Create(path string, recordSize, totalRecords uint) (*Driver, error) {
	if recordSize == 0 || totalRecords == 0 {
		return nil, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("can't create image of %d records of %d bytes", totalRecords, recordSize),
		)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	err = f.Truncate(int64(recordSize) * int64(totalRecords))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error allocating file: %w", err)
	}
	return mapFile(f, recordSize)
}

// Open maps an existing image file. The number of records is derived from the
// file size, which must be a nonzero multiple of `recordSize`.
func Open(path string, recordSize uint) (*Driver, error) {
	if recordSize == 0 {
		return nil, errors.NewWithMessage(errors.EINVAL, "record size must be nonzero")
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	return mapFile(f, recordSize)
}

func mapFile(f *os.File, recordSize uint) (*Driver, error) {
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error determining image size: %w", err)
	}

	size := info.Size()
	totalRecords := uint(size / int64(recordSize))
	if totalRecords == 0 || size%int64(recordSize) != 0 {
		f.Close()
		return nil, errors.NewWithMessage(
			errors.EMEDIUMTYPE,
			fmt.Sprintf(
				"image %q is %d bytes, not a whole number of %d-byte records",
				f.Name(),
				size,
				recordSize,
			),
		)
	}

	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error mapping file: %w", err)
	}

	return &Driver{
		file:         f,
		mmap:         mm,
		recordSize:   recordSize,
		totalRecords: totalRecords,
	}, nil
}

func (driver *Driver) RecordSize() uint {
	return driver.recordSize
}

func (driver *Driver) TotalSectors() uint {
	return driver.totalRecords
}

// recordRange returns the slice of the mapping holding record `id`.
func (driver *Driver) recordRange(id common.SectorID, bufferSize int) ([]byte, error) {
	if uint(id) >= driver.totalRecords {
		return nil, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("invalid sector ID %d: not in range [0, %d)", id, driver.totalRecords),
		)
	}
	if uint(bufferSize) != driver.recordSize {
		return nil, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"buffer must be exactly one record (%d B), got %d",
				driver.recordSize,
				bufferSize,
			),
		)
	}

	start := uint(id) * driver.recordSize
	return driver.mmap[start : start+driver.recordSize], nil
}

func (driver *Driver) ReadSector(id common.SectorID, buffer []byte) error {
	driver.mu.RLock()
	defer driver.mu.RUnlock()

	record, err := driver.recordRange(id, len(buffer))
	if err != nil {
		return err
	}
	copy(buffer, record)
	return nil
}

func (driver *Driver) WriteSector(id common.SectorID, buffer []byte) error {
	driver.mu.Lock()
	defer driver.mu.Unlock()

	record, err := driver.recordRange(id, len(buffer))
	if err != nil {
		return err
	}
	copy(record, buffer)
	return nil
}

// Sync flushes the mapping to the image file.
func (driver *Driver) Sync() error {
	driver.mu.Lock()
	defer driver.mu.Unlock()
	return driver.mmap.Flush()
}

// Close flushes the mapping, unmaps it and closes the file. The driver must not
// be used afterwards.
func (driver *Driver) Close() error {
	driver.mu.Lock()
	defer driver.mu.Unlock()

	var result error
	if err := driver.mmap.Flush(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := driver.mmap.Unmap(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := driver.file.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}
