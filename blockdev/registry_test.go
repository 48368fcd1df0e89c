package blockdev_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/dargueta/squashblk/blockdev"
	"github.com/dargueta/squashblk/drivers/memory"
	"github.com/dargueta/squashblk/drivers/mmapfile"
	"github.com/dargueta/squashblk/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func registerMemory(
	t *testing.T, registry *blockdev.Registry, name string, blockType blockdev.BlockType, sectors uint,
) *blockdev.Device {
	device, err := registry.Register(
		name, blockType, "", sectors, memory.New(blockdev.RecordSize(512), sectors))
	require.NoErrorf(t, err, "failed to register %s", name)
	return device
}

func TestRegistry__ProbeOrder(t *testing.T) {
	registry := blockdev.NewRegistry(zaptest.NewLogger(t))
	assert.Nil(t, registry.First())

	hda := registerMemory(t, registry, "hda", blockdev.Raw, 8)
	hdb := registerMemory(t, registry, "hdb", blockdev.Raw, 8)
	hdc := registerMemory(t, registry, "hdc", blockdev.Foreign, 8)

	assert.Same(t, hda, registry.First())
	assert.Same(t, hdb, registry.Next(hda))
	assert.Same(t, hdc, registry.Next(hdb))
	assert.Nil(t, registry.Next(hdc))

	var names []string
	for device := registry.First(); device != nil; device = registry.Next(device) {
		names = append(names, device.Name())
	}
	assert.Equal(t, []string{"hda", "hdb", "hdc"}, names)
	assert.Len(t, registry.Devices(), 3)
}

func TestRegistry__NextForeignDevice(t *testing.T) {
	registry := blockdev.NewRegistry(nil)
	registerMemory(t, registry, "hda", blockdev.Raw, 8)

	other := blockdev.NewRegistry(nil)
	stranger := registerMemory(t, other, "sda", blockdev.Raw, 8)
	assert.Nil(t, registry.Next(stranger))

	unregistered, err := blockdev.NewDevice("xyz", blockdev.Raw, 1, memory.New(516, 1))
	require.NoError(t, err)
	assert.Nil(t, registry.Next(unregistered))
	assert.Nil(t, registry.Next(nil))
}

func TestRegistry__ByName(t *testing.T) {
	registry := blockdev.NewRegistry(zaptest.NewLogger(t))
	hda := registerMemory(t, registry, "hda", blockdev.Raw, 8)

	assert.Same(t, hda, registry.ByName("hda"))
	assert.Nil(t, registry.ByName("hdz"))
}

func TestRegistry__DuplicateName(t *testing.T) {
	registry := blockdev.NewRegistry(zaptest.NewLogger(t))
	registerMemory(t, registry, "hda", blockdev.Raw, 8)

	_, err := registry.Register("hda", blockdev.Raw, "", 8, memory.New(516, 8))
	assert.ErrorIs(t, err, errors.ErrExists)
	assert.Len(t, registry.Devices(), 1)
}

func TestRegistry__InvalidDeviceNotAdded(t *testing.T) {
	registry := blockdev.NewRegistry(zaptest.NewLogger(t))
	_, err := registry.Register("hda", blockdev.Raw, "", 8, memory.New(512, 8))
	assert.ErrorIs(t, err, errors.ErrWrongMediumType)
	assert.Nil(t, registry.First())
}

func TestRegistry__Roles(t *testing.T) {
	registry := blockdev.NewRegistry(zaptest.NewLogger(t))
	hda := registerMemory(t, registry, "hda", blockdev.Raw, 8)

	device, err := registry.Role(blockdev.Filesys)
	require.NoError(t, err)
	assert.Nil(t, device)

	require.NoError(t, registry.SetRole(blockdev.Filesys, hda))
	device, err = registry.Role(blockdev.Filesys)
	require.NoError(t, err)
	assert.Same(t, hda, device)

	require.NoError(t, registry.SetRole(blockdev.Filesys, nil))
	device, err = registry.Role(blockdev.Filesys)
	require.NoError(t, err)
	assert.Nil(t, device)

	for _, bad := range []blockdev.BlockType{blockdev.Raw, blockdev.Foreign, blockdev.BlockType(99)} {
		_, err = registry.Role(bad)
		assert.ErrorIsf(t, err, errors.ErrInvalidArgument, "Role(%d) should fail", bad)
		assert.ErrorIsf(
			t, registry.SetRole(bad, hda), errors.ErrInvalidArgument, "SetRole(%d) should fail", bad)
	}
}

func TestRegistry__PrintStats(t *testing.T) {
	registry := blockdev.NewRegistry(zaptest.NewLogger(t))
	hda := registerMemory(t, registry, "hda", blockdev.Raw, 8)
	hdb := registerMemory(t, registry, "hdb", blockdev.Raw, 8)
	registerMemory(t, registry, "hdc", blockdev.Raw, 8)

	require.NoError(t, registry.SetRole(blockdev.Swap, hda))
	require.NoError(t, registry.SetRole(blockdev.Filesys, hdb))

	sector := make([]byte, 512)
	require.NoError(t, hda.Write(0, sector))
	require.NoError(t, hda.Write(1, sector))
	_, err := hda.Read(0)
	require.NoError(t, err)
	_, err = hdb.Read(7)
	require.NoError(t, err)

	var output bytes.Buffer
	require.NoError(t, registry.PrintStats(&output))
	assert.Equal(
		t,
		"hdb (raw): 1 reads, 0 writes\nhda (raw): 1 reads, 2 writes\n",
		output.String(),
		"devices should be listed in role order, unassigned devices skipped",
	)
}

func TestRegistry__Logging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	registry := blockdev.NewRegistry(zap.New(core))

	hda, err := registry.Register(
		"hda", blockdev.Raw, "ATA drive", 1024, memory.New(blockdev.RecordSize(512), 1024))
	require.NoError(t, err)

	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "hda: 1,024 sectors (512 KiB), ATA drive", entries[0].Message)
	assert.Equal(t, "hda", entries[0].ContextMap()["device"])

	require.NoError(t, registry.SetRole(blockdev.Kernel, hda))
	registry.LogStats()
	entries = logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "device statistics", entries[0].Message)
	assert.EqualValues(t, 0, entries[0].ContextMap()["reads"])
}

func TestRegistry__CloseFlushesFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	driver, err := mmapfile.Create(path, blockdev.RecordSize(512), 16)
	require.NoError(t, err)

	registry := blockdev.NewRegistry(zaptest.NewLogger(t))
	device, err := registry.Register("hda", blockdev.Filesys, "", 16, driver)
	require.NoError(t, err)

	zeros := make([]byte, 512)
	text := bytes.Repeat([]byte("persist me "), 47)[:512]
	require.NoError(t, device.Write(0, zeros))
	require.NoError(t, device.Write(15, text))
	require.NoError(t, registry.Close())

	reopened, err := mmapfile.Open(path, blockdev.RecordSize(512))
	require.NoError(t, err)
	defer reopened.Close()

	registry = blockdev.NewRegistry(zaptest.NewLogger(t))
	device, err = registry.Register("hda", blockdev.Filesys, "", 16, reopened)
	require.NoError(t, err)

	data, err := device.Read(0)
	require.NoError(t, err)
	assert.Equal(t, zeros, data)

	data, err = device.Read(15)
	require.NoError(t, err)
	assert.Equal(t, text, data)

	header, err := device.InspectRecord(0)
	require.NoError(t, err)
	assert.True(t, header.Compressed())
}
