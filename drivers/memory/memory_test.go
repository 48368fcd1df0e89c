package memory_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/dargueta/squashblk/drivers/common"
	"github.com/dargueta/squashblk/drivers/memory"
	"github.com/dargueta/squashblk/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDriver__UnwrittenReadsZero(t *testing.T) {
	driver := memory.New(32, 4)
	buffer := bytes.Repeat([]byte{0xff}, 32)

	require.NoError(t, driver.ReadSector(2, buffer))
	assert.Equal(t, make([]byte, 32), buffer)
	assert.False(t, driver.IsWritten(2))
	assert.EqualValues(t, 0, driver.WrittenCount())
}

func TestMemoryDriver__WriteMarksRecord(t *testing.T) {
	driver := memory.New(32, 4)
	record := bytes.Repeat([]byte{9}, 32)

	require.NoError(t, driver.WriteSector(1, record))
	assert.True(t, driver.IsWritten(1))
	assert.False(t, driver.IsWritten(0))
	assert.EqualValues(t, 1, driver.WrittenCount())
	assert.Equal(t, record, driver.Bytes()[32:64])

	readBack := make([]byte, 32)
	require.NoError(t, driver.ReadSector(1, readBack))
	assert.Equal(t, record, readBack)
}

func TestMemoryDriver__FailedWriteNotMarked(t *testing.T) {
	driver := memory.New(32, 4)
	err := driver.WriteSector(4, make([]byte, 32))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.EqualValues(t, 0, driver.WrittenCount())
}

func TestNewFromBytes__RejectsPartialRecords(t *testing.T) {
	_, err := memory.NewFromBytes(make([]byte, 100), 32)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	driver, err := memory.NewFromBytes(make([]byte, 96), 32)
	require.NoError(t, err)
	assert.EqualValues(t, 3, driver.TotalSectors())
	assert.EqualValues(t, 32, driver.RecordSize())
}

func TestNewFromBytes__AllRecordsWritten(t *testing.T) {
	driver, err := memory.NewFromBytes(bytes.Repeat([]byte{1}, 128), 32)
	require.NoError(t, err)
	assert.EqualValues(t, 4, driver.WrittenCount())
	assert.True(t, driver.IsWritten(3))
}

func TestMemoryDriver__ConcurrentReads(t *testing.T) {
	const recordSize = 8
	const totalRecords = 64
	driver := memory.New(recordSize, totalRecords)
	for i := 0; i < totalRecords; i++ {
		require.NoError(t, driver.WriteSector(common.SectorID(i), bytes.Repeat([]byte{byte(i)}, recordSize)))
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			buffer := make([]byte, recordSize)
			for i := 0; i < 2000; i++ {
				id := (worker*7 + i) % totalRecords
				if !assert.NoError(t, driver.ReadSector(common.SectorID(id), buffer)) {
					return
				}
				if !assert.Equalf(t, bytes.Repeat([]byte{byte(id)}, recordSize), buffer, "record %d", id) {
					return
				}
			}
		}(w)
	}
	wg.Wait()
}
