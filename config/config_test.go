package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/squashblk/blockdev"
	"github.com/dargueta/squashblk/drivers/memory"
	"github.com/dargueta/squashblk/drivers/mmapfile"
	"github.com/dargueta/squashblk/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sampleConfig = `
logging:
  level: debug
devices:
  - name: hda
    type: filesys
    role: filesys
    sectors: 64
  - name: hdb
    type: swap
    role: swap
    geometry: ibm-35-1440k
  - name: fd0
    type: foreign
    sectors: 4
`

func TestParse__Sample(t *testing.T) {
	config, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.EqualValues(t, 512, config.SectorSize, "default sector size not applied")
	assert.Equal(t, "debug", config.Logging.Level)
	require.Len(t, config.Devices, 3)
	assert.Equal(t, "hdb", config.Devices[1].Name)
	assert.Equal(t, "ibm-35-1440k", config.Devices[1].Geometry)

	sectors, err := config.Devices[1].TotalSectors(config.SectorSize)
	require.NoError(t, err)
	assert.EqualValues(t, 2880, sectors)
}

func TestParse__BadYAML(t *testing.T) {
	_, err := Parse([]byte("devices: [this is: not valid"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate__Errors(t *testing.T) {
	tests := []struct {
		Name    string
		Config  Config
		Message string
	}{
		{
			"small sector size",
			Config{SectorSize: 8},
			"sector_size 8 is smaller than the minimum 16",
		},
		{
			"bad log level",
			Config{SectorSize: 512, Logging: Logging{Level: "loud"}},
			"logging.level",
		},
		{
			"missing name",
			Config{SectorSize: 512, Devices: []DeviceConfig{{Type: "raw", Sectors: 1}}},
			"devices[0]: name is required",
		},
		{
			"duplicate name",
			Config{
				SectorSize: 512,
				Devices: []DeviceConfig{
					{Name: "hda", Type: "raw", Sectors: 1},
					{Name: "hda", Type: "raw", Sectors: 1},
				},
			},
			`device "hda": defined more than once`,
		},
		{
			"bad type",
			Config{SectorSize: 512, Devices: []DeviceConfig{{Name: "hda", Type: "tape", Sectors: 1}}},
			`unrecognized block type "tape"`,
		},
		{
			"non-role role",
			Config{
				SectorSize: 512,
				Devices:    []DeviceConfig{{Name: "hda", Type: "raw", Role: "foreign", Sectors: 1}},
			},
			"foreign is not a role",
		},
		{
			"role taken twice",
			Config{
				SectorSize: 512,
				Devices: []DeviceConfig{
					{Name: "hda", Type: "raw", Role: "swap", Sectors: 1},
					{Name: "hdb", Type: "raw", Role: "swap", Sectors: 1},
				},
			},
			`role swap is already taken by "hda"`,
		},
		{
			"no size",
			Config{SectorSize: 512, Devices: []DeviceConfig{{Name: "hda", Type: "raw"}}},
			"either sectors or geometry is required",
		},
		{
			"both sizes",
			Config{
				SectorSize: 512,
				Devices: []DeviceConfig{
					{Name: "hda", Type: "raw", Sectors: 1, Geometry: "ibm-35-720k"},
				},
			},
			"mutually exclusive",
		},
		{
			"unknown geometry",
			Config{
				SectorSize: 512,
				Devices:    []DeviceConfig{{Name: "hda", Type: "raw", Geometry: "zip-100"}},
			},
			`no predefined disk geometry exists with slug "zip-100"`,
		},
	}

	for _, test := range tests {
		t.Run(
			test.Name,
			func(t *testing.T) {
				err := test.Config.Validate()
				require.Error(t, err)
				assert.ErrorContains(t, err, test.Message)
				assert.ErrorIs(t, err, errors.ErrInvalidArgument)
			},
		)
	}
}

func TestValidate__ReportsEverything(t *testing.T) {
	config := Config{
		SectorSize: 4,
		Devices:    []DeviceConfig{{Name: "hda", Type: "tape"}},
	}
	err := config.Validate()
	assert.ErrorContains(t, err, "sector_size")
	assert.ErrorContains(t, err, "tape")
	assert.ErrorContains(t, err, "either sectors or geometry")
}

func TestLoad__SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	original := DefaultConfig()
	original.Devices = []DeviceConfig{
		{Name: "hda", Type: "kernel", Role: "kernel", Sectors: 128, ExtraInfo: "boot disk"},
	}
	require.NoError(t, original.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestLoad__MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewLogger(t *testing.T) {
	config := DefaultConfig()
	config.Logging.Development = true
	logger, err := config.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	config.Logging.Level = "nonsense"
	_, err = config.NewLogger()
	assert.Error(t, err)
}

func TestBuildRegistry__Sample(t *testing.T) {
	config, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	registry, err := BuildRegistry(config, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer registry.Close()

	devices := registry.Devices()
	require.Len(t, devices, 3)
	assert.Equal(t, "hda", devices[0].Name())
	assert.Equal(t, blockdev.Foreign, devices[2].Type())
	assert.EqualValues(t, 2880, devices[1].TotalSectors())
	assert.IsType(t, &memory.Driver{}, devices[0].Driver())

	filesys, err := registry.Role(blockdev.Filesys)
	require.NoError(t, err)
	assert.Same(t, devices[0], filesys)

	swap, err := registry.Role(blockdev.Swap)
	require.NoError(t, err)
	assert.Same(t, devices[1], swap)

	kernel, err := registry.Role(blockdev.Kernel)
	require.NoError(t, err)
	assert.Nil(t, kernel)
}

func TestBuildRegistry__ImageFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hda.img")
	config := DefaultConfig()
	config.SectorSize = 128
	config.Devices = []DeviceConfig{{Name: "hda", Type: "filesys", Path: path, Sectors: 10}}

	registry, err := BuildRegistry(config, zaptest.NewLogger(t))
	require.NoError(t, err)

	device := registry.ByName("hda")
	require.NotNil(t, device)
	assert.IsType(t, &mmapfile.Driver{}, device.Driver())

	sector := make([]byte, 128)
	copy(sector, "hello")
	require.NoError(t, device.Write(9, sector))
	require.NoError(t, registry.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 10*blockdev.RecordSize(128), info.Size())

	// Second time around the existing image is opened, not recreated.
	registry, err = BuildRegistry(config, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer registry.Close()

	data, err := registry.ByName("hda").Read(9)
	require.NoError(t, err)
	assert.Equal(t, sector, data)
}

func TestBuildRegistry__ImageTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hda.img")
	driver, err := mmapfile.Create(path, blockdev.RecordSize(512), 2)
	require.NoError(t, err)
	require.NoError(t, driver.Close())

	config := DefaultConfig()
	config.Devices = []DeviceConfig{{Name: "hda", Type: "raw", Path: path, Sectors: 4}}

	_, err = BuildRegistry(config, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)
}

func TestBuildRegistry__Invalid(t *testing.T) {
	config := DefaultConfig()
	config.Devices = []DeviceConfig{{Name: "hda", Type: "raw"}}

	registry, err := BuildRegistry(config, nil)
	assert.Nil(t, registry)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}
