package common

import (
	"fmt"
	"io"

	"github.com/dargueta/squashblk/errors"
)

// StreamDriver is a [Driver] around a stream, making it look like a device that
// can only be read from or written to one fixed-size record at a time.
//
// The exposed fields are for informational purposes only and should never be
// changed.
type StreamDriver struct {
	// BytesPerRecord gives the size of one raw record, in bytes.
	BytesPerRecord uint
	// TotalRecords is the total number of records in this stream.
	TotalRecords uint
	// StartOffset is an offset from the beginning of the stream, in bytes, that
	// will be considered the beginning of record 0. This is useful for skipping
	// over partition tables or other volumes stored on the same image.
	StartOffset int64
	stream      io.ReadWriteSeeker
}

var _ Driver = (*StreamDriver)(nil)

func NewStreamDriver(
	stream io.ReadWriteSeeker, totalRecords uint, recordSize uint, startOffset int64,
) *StreamDriver {
	return &StreamDriver{
		StartOffset:    startOffset,
		BytesPerRecord: recordSize,
		TotalRecords:   totalRecords,
		stream:         stream,
	}
}

// DetermineRecordCount gives the total number of records in a stream, rounded
// down to the nearest record.
func DetermineRecordCount(stream io.Seeker, recordSize uint) (uint, error) {
	offset, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	return uint(offset / int64(recordSize)), nil
}

func (driver *StreamDriver) RecordSize() uint {
	return driver.BytesPerRecord
}

func (driver *StreamDriver) TotalSectors() uint {
	return driver.TotalRecords
}

// SectorIDToFileOffset converts a sector ID into a byte offset into the backing
// stream.
func (driver *StreamDriver) SectorIDToFileOffset(id SectorID) (int64, error) {
	if uint(id) >= driver.TotalRecords {
		return -1, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("invalid sector ID %d: not in range [0, %d)", id, driver.TotalRecords),
		)
	}
	return driver.StartOffset + (int64(id) * int64(driver.BytesPerRecord)), nil
}

// CheckIOBounds checks that a buffer of `dataLength` bytes can be transferred
// to or from record `id`. If the check fails, it returns an error indicating
// exactly what went wrong.
func (driver *StreamDriver) CheckIOBounds(id SectorID, dataLength uint) error {
	if uint(id) >= driver.TotalRecords {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("invalid sector ID %d: not in range [0, %d)", id, driver.TotalRecords),
		)
	}

	if dataLength != driver.BytesPerRecord {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"buffer must be exactly one record (%d B), got %d",
				driver.BytesPerRecord,
				dataLength,
			),
		)
	}
	return nil
}

// seekToSector positions the stream pointer at the byte offset where the given
// record starts.
func (driver *StreamDriver) seekToSector(id SectorID) error {
	offset, err := driver.SectorIDToFileOffset(id)
	if err != nil {
		return err
	}
	_, err = driver.stream.Seek(offset, io.SeekStart)
	return err
}

// ReadSector reads exactly one record from the stream.
func (driver *StreamDriver) ReadSector(id SectorID, buffer []byte) error {
	err := driver.CheckIOBounds(id, uint(len(buffer)))
	if err != nil {
		return err
	}

	err = driver.seekToSector(id)
	if err != nil {
		return err
	}

	_, err = io.ReadFull(driver.stream, buffer)
	if err != nil {
		return errors.NewFromError(errors.EIO, err)
	}
	return nil
}

// WriteSector writes exactly one record to the stream.
func (driver *StreamDriver) WriteSector(id SectorID, buffer []byte) error {
	err := driver.CheckIOBounds(id, uint(len(buffer)))
	if err != nil {
		return err
	}

	err = driver.seekToSector(id)
	if err != nil {
		return err
	}

	_, err = driver.stream.Write(buffer)
	if err != nil {
		return errors.NewFromError(errors.EIO, err)
	}
	return nil
}
