package blockdev

import (
	"encoding/binary"
	"fmt"

	"github.com/dargueta/squashblk/errors"
	"github.com/noxer/bytewriter"
)

// On the medium every sector is stored as a record of HeaderSize + sector size
// bytes:
//
//	[0, 4)          size field, uint32 little-endian
//	[4, 4+n)        payload
//
// A size field of 0 means the sector is stored verbatim and the payload is the
// whole sector. Any other value n is the length of the compressed payload and
// must be in [1, sectorSize-HeaderSize]. Bytes after the payload are zero when
// written and are never read.

// HeaderSize is the size of the metadata stored in front of every sector.
const HeaderSize = 4

// MinSectorSize is the smallest sector size a device can use.
const MinSectorSize = 16

// DefaultSectorSize is the sector size used when none is given.
const DefaultSectorSize = 512

// RecordSize gives the size of the raw record a driver must store for each
// sector of `sectorSize` bytes.
func RecordSize(sectorSize uint) uint {
	return sectorSize + HeaderSize
}

// MaxCompressedSize is the largest compressed payload that will be stored for a
// sector of `sectorSize` bytes. Anything larger falls back to storing the
// sector uncompressed.
func MaxCompressedSize(sectorSize uint) uint {
	return sectorSize - HeaderSize
}

// RecordHeader is the decoded metadata of one stored sector.
type RecordHeader struct {
	// StoredSize is the raw value of the size field.
	StoredSize uint32
}

// Compressed reports whether the payload is codec output.
func (h RecordHeader) Compressed() bool {
	return h.StoredSize != 0
}

// PayloadSize gives the number of meaningful payload bytes in the record.
func (h RecordHeader) PayloadSize(sectorSize uint) uint {
	if h.Compressed() {
		return uint(h.StoredSize)
	}
	return sectorSize
}

// ParseRecordHeader reads the header of `record` and validates it against the
// sector size.
func ParseRecordHeader(record []byte, sectorSize uint) (RecordHeader, error) {
	if uint(len(record)) != RecordSize(sectorSize) {
		return RecordHeader{}, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"record must be %d bytes for %d-byte sectors, got %d",
				RecordSize(sectorSize),
				sectorSize,
				len(record),
			),
		)
	}

	header := RecordHeader{StoredSize: binary.LittleEndian.Uint32(record[:HeaderSize])}
	if uint(header.StoredSize) > MaxCompressedSize(sectorSize) {
		return header, errors.NewWithMessage(
			errors.EUCLEAN,
			fmt.Sprintf(
				"corrupt record header: payload size %d not in range [0, %d]",
				header.StoredSize,
				MaxCompressedSize(sectorSize),
			),
		)
	}
	return header, nil
}

// encodeRecord fills `record` with the stored form of `sector`. The sector is
// compressed with `codec` if that succeeds and the result fits; otherwise it's
// stored verbatim. `record` must be zeroed and exactly RecordSize bytes.
func encodeRecord(record, sector []byte, codec Codec) (RecordHeader, error) {
	sectorSize := uint(len(sector))
	header := RecordHeader{}
	payload := sector

	compressed, err := codec.Encode(sector)
	if err == nil && len(compressed) > 0 && uint(len(compressed)) <= MaxCompressedSize(sectorSize) {
		header.StoredSize = uint32(len(compressed))
		payload = compressed
	}

	writer := bytewriter.New(record)
	err = binary.Write(writer, binary.LittleEndian, header.StoredSize)
	if err != nil {
		return header, errors.NewFromError(errors.EIO, err)
	}
	_, err = writer.Write(payload)
	if err != nil {
		return header, errors.NewFromError(errors.EIO, err)
	}
	return header, nil
}

// decodeRecord reconstructs a sector of `sectorSize` bytes from a stored
// record. The returned slice never aliases `record`.
func decodeRecord(record []byte, sectorSize uint, codec Codec) ([]byte, RecordHeader, error) {
	header, err := ParseRecordHeader(record, sectorSize)
	if err != nil {
		return nil, header, err
	}

	payload := record[HeaderSize : HeaderSize+header.PayloadSize(sectorSize)]
	if !header.Compressed() {
		sector := make([]byte, sectorSize)
		copy(sector, payload)
		return sector, header, nil
	}

	sector, err := codec.Decode(payload, int(sectorSize))
	if err != nil {
		return nil, header, errors.NewWithMessage(
			errors.EUCLEAN, "failed to decompress block data").Wrap(err)
	}
	if uint(len(sector)) != sectorSize {
		return nil, header, errors.NewWithMessage(
			errors.EUCLEAN,
			fmt.Sprintf(
				"failed to decompress block data: got %d bytes, expected %d",
				len(sector),
				sectorSize,
			),
		)
	}
	return sector, header, nil
}
