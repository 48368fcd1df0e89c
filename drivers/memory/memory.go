// Package memory provides a raw driver that keeps records in a byte slice.
// Records that have never been written read back as zeros.
package memory

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/dargueta/squashblk/drivers/common"
	"github.com/dargueta/squashblk/errors"
	"github.com/xaionaro-go/bytesextra"
)

type Driver struct {
	stream  *common.StreamDriver
	data    []byte
	written *bitset.BitSet
	mu      sync.RWMutex
}

var _ common.Driver = (*Driver)(nil)

// New creates a zero-filled driver of `totalRecords` records.
func New(recordSize, totalRecords uint) *Driver {
	data := make([]byte, recordSize*totalRecords)
	return &Driver{
		stream: common.NewStreamDriver(
			bytesextra.NewReadWriteSeeker(data), totalRecords, recordSize, 0),
		data:    data,
		written: bitset.New(totalRecords),
	}
}

// NewFromBytes creates a driver using `data` as its storage. The slice is used
// directly, not copied, and its length must be a multiple of `recordSize`. Every
// record in `data` is considered written.
func NewFromBytes(data []byte, recordSize uint) (*Driver, error) {
	if recordSize == 0 || uint(len(data))%recordSize != 0 {
		return nil, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("%d bytes is not a whole number of %d-byte records", len(data), recordSize),
		)
	}

	rws := bytesextra.NewReadWriteSeeker(data)
	totalRecords, err := common.DetermineRecordCount(rws, recordSize)
	if err != nil {
		return nil, errors.NewFromError(errors.EIO, err)
	}
	return &Driver{
		stream:  common.NewStreamDriver(rws, totalRecords, recordSize, 0),
		data:    data,
		written: bitset.New(totalRecords).FlipRange(0, totalRecords),
	}, nil
}

func (driver *Driver) RecordSize() uint {
	return driver.stream.RecordSize()
}

func (driver *Driver) TotalSectors() uint {
	return driver.stream.TotalSectors()
}

// ReadSector copies record `id` into `buffer`. Reads move the shared stream
// position, so they take the write lock like WriteSector does.
func (driver *Driver) ReadSector(id common.SectorID, buffer []byte) error {
	driver.mu.Lock()
	defer driver.mu.Unlock()
	return driver.stream.ReadSector(id, buffer)
}

func (driver *Driver) WriteSector(id common.SectorID, buffer []byte) error {
	driver.mu.Lock()
	defer driver.mu.Unlock()

	err := driver.stream.WriteSector(id, buffer)
	if err != nil {
		return err
	}
	driver.written.Set(uint(id))
	return nil
}

// IsWritten reports whether WriteSector has succeeded on record `id` since the
// driver was created.
func (driver *Driver) IsWritten(id common.SectorID) bool {
	driver.mu.RLock()
	defer driver.mu.RUnlock()
	return driver.written.Test(uint(id))
}

// WrittenCount gives the number of distinct records written.
func (driver *Driver) WrittenCount() uint {
	driver.mu.RLock()
	defer driver.mu.RUnlock()
	return driver.written.Count()
}

// Bytes returns the raw storage. Callers must not modify it while the driver
// is in use.
func (driver *Driver) Bytes() []byte {
	return driver.data
}
