package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

////////////////////////////////////////////////////////////////////////////////
// Geometry

type DiskGeometry struct {
	Name               string `csv:"name"`
	Slug               string `csv:"slug"`
	FirstYearAvailable uint   `csv:"first_year_available"`
	FormFactor         string `csv:"form_factor"`
	IsRemovable        uint   `csv:"is_removable"`

	// BitsPerAddressUnit gives the number of bits in the device's smallest
	// addressible unit of memory. For every geometry here it's a byte (8).
	BitsPerAddressUnit uint `csv:"bits_per_address_unit"`

	// AddressUnitsPerSector gives the number of address units in a physical
	// sector.
	AddressUnitsPerSector uint `csv:"address_units_per_sector"`
	SectorsPerTrack       uint `csv:"sectors_per_track"`

	// TotalDataTracks gives the number of data tracks per head.
	TotalDataTracks uint `csv:"total_data_tracks"`
	HiddenTracks    uint `csv:"hidden_tracks"`
	// Heads gives the number of heads in the device.
	Heads uint   `csv:"heads"`
	Notes string `csv:"notes"`
}

// TotalSectors gives the number of physical sectors on the device.
func (g *DiskGeometry) TotalSectors() uint {
	return g.SectorsPerTrack * g.TotalDataTracks * g.Heads
}

// TotalSizeBytes gives the size of the storage device, rounded up to the nearest
// byte.
func (g *DiskGeometry) TotalSizeBytes() int64 {
	bits := int64(g.BitsPerAddressUnit*g.AddressUnitsPerSector) * int64(g.TotalSectors())
	if bits%8 == 0 {
		return bits / 8
	}
	return (bits / 8) + 1
}

// SectorsOfSize gives the number of whole `sectorSize`-byte sectors that fit
// on the device. This is how many logical sectors a compressed device with
// this geometry has.
func (g *DiskGeometry) SectorsOfSize(sectorSize uint) uint {
	if sectorSize == 0 {
		return 0
	}
	return uint(g.TotalSizeBytes() / int64(sectorSize))
}

////////////////////////////////////////////////////////////////////////////////

// https://en.wikipedia.org/wiki/List_of_floppy_disk_formats
//
//go:embed disk-geometries.csv
var diskGeometriesRawCSV string
var diskGeometries map[string]DiskGeometry

func GetPredefinedDiskGeometry(slug string) (DiskGeometry, error) {
	geometry, ok := diskGeometries[slug]
	if ok {
		return geometry, nil
	}

	err := fmt.Errorf("no predefined disk geometry exists with slug %q", slug)
	return DiskGeometry{}, err
}

// Slugs lists the slugs of every predefined geometry, in file order.
func Slugs() []string {
	return slugs
}

var slugs []string

func parseGeometries(input io.Reader) (map[string]DiskGeometry, []string, error) {
	csvReader := csv.NewReader(input)
	csvReader.Comma = '|'

	var rows []DiskGeometry
	if err := gocsv.UnmarshalCSV(csvReader, &rows); err != nil {
		return nil, nil, fmt.Errorf("failed to decode disk geometries: %w", err)
	}

	geometries := make(map[string]DiskGeometry, len(rows))
	order := make([]string, 0, len(rows))
	for i, row := range rows {
		if _, exists := geometries[row.Slug]; exists {
			return nil, nil, fmt.Errorf(
				"duplicate definition for disk %q found on row %d", row.Slug, i+1)
		}
		geometries[row.Slug] = row
		order = append(order, row.Slug)
	}
	return geometries, order, nil
}

func init() {
	var err error
	diskGeometries, slugs, err = parseGeometries(strings.NewReader(diskGeometriesRawCSV))
	if err != nil {
		panic(err)
	}
}
