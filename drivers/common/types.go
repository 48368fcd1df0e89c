// Package common contains the raw driver interface that block devices are
// layered on, and a driver implementation usable with any seekable stream.
package common

// SectorID is the index of a sector on a device, starting at 0.
type SectorID uint

// Driver is the raw read/write capability of a storage medium. A driver moves
// fixed-size records and knows nothing about compression; every buffer passed
// to ReadSector and WriteSector is exactly RecordSize() bytes.
//
// Drivers are not required to validate sector IDs. Block devices do that before
// calling into them.
type Driver interface {
	// RecordSize gives the size of a single raw record, in bytes.
	RecordSize() uint
	// TotalSectors gives the number of records the medium can hold.
	TotalSectors() uint
	// ReadSector fills `buffer` with the contents of record `id`.
	ReadSector(id SectorID, buffer []byte) error
	// WriteSector replaces the contents of record `id` with `buffer`. It must
	// not return until the medium has accepted the data.
	WriteSector(id SectorID, buffer []byte) error
}

// Syncer is implemented by drivers that buffer writes and can flush them to
// stable storage.
type Syncer interface {
	Sync() error
}
