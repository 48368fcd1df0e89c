package mmapfile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/squashblk/drivers/mmapfile"
	"github.com/dargueta/squashblk/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMmapDriver__CreateWriteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	driver, err := mmapfile.Create(path, 516, 8)
	require.NoError(t, err)
	assert.EqualValues(t, 516, driver.RecordSize())
	assert.EqualValues(t, 8, driver.TotalSectors())

	record := bytes.Repeat([]byte{0x5a}, 516)
	require.NoError(t, driver.WriteSector(7, record))
	require.NoError(t, driver.Sync())
	require.NoError(t, driver.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 516*8, info.Size())

	reopened, err := mmapfile.Open(path, 516)
	require.NoError(t, err)
	defer reopened.Close()

	assert.EqualValues(t, 8, reopened.TotalSectors())
	readBack := make([]byte, 516)
	require.NoError(t, reopened.ReadSector(7, readBack))
	assert.Equal(t, record, readBack)

	require.NoError(t, reopened.ReadSector(0, readBack))
	assert.Equal(t, make([]byte, 516), readBack, "untouched record should be zeroed")
}

func TestMmapDriver__BoundsChecks(t *testing.T) {
	driver, err := mmapfile.Create(filepath.Join(t.TempDir(), "disk.img"), 64, 2)
	require.NoError(t, err)
	defer driver.Close()

	assert.ErrorIs(t, driver.ReadSector(2, make([]byte, 64)), errors.ErrInvalidArgument)
	assert.ErrorIs(t, driver.WriteSector(0, make([]byte, 63)), errors.ErrInvalidArgument)
}

func TestMmapDriver__OpenRejectsPartialRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odd.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 1000), 0o644))

	_, err := mmapfile.Open(path, 516)
	assert.ErrorIs(t, err, errors.ErrWrongMediumType)
}

func TestMmapDriver__CreateRejectsEmpty(t *testing.T) {
	_, err := mmapfile.Create(filepath.Join(t.TempDir(), "empty.img"), 516, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}
