// Package basicstream implements a file-like abstraction around a compressed
// block device, so whole images can be copied in and out with the io package.

package basicstream

import (
	"fmt"
	"io"

	"github.com/dargueta/squashblk/blockdev"
	"github.com/dargueta/squashblk/drivers/common"
	"github.com/dargueta/squashblk/errors"
)

// BasicStream is a seekable, fixed-size byte stream over every sector of a
// [blockdev.Device]. Writes that cover part of a sector read the sector first
// and write back the merged result.
//
// A BasicStream is not safe for concurrent use, though the device under it is.
type BasicStream struct {
	device   *blockdev.Device
	size     int64
	position int64
}

var _ io.ReadWriteSeeker = (*BasicStream)(nil)
var _ io.ReaderAt = (*BasicStream)(nil)
var _ io.WriterAt = (*BasicStream)(nil)
var _ io.WriterTo = (*BasicStream)(nil)
var _ io.ReaderFrom = (*BasicStream)(nil)

// New creates a stream positioned at the start of `device`.
func New(device *blockdev.Device) *BasicStream {
	return &BasicStream{
		device: device,
		size:   int64(device.SizeBytes()),
	}
}

func (stream *BasicStream) convertLinearAddr(offset int64) (common.SectorID, int) {
	sectorSize := int64(stream.device.SectorSize())
	return common.SectorID(offset / sectorSize), int(offset % sectorSize)
}

func (stream *BasicStream) Read(buffer []byte) (int, error) {
	totalRead, err := stream.ReadAt(buffer, stream.position)
	stream.position += int64(totalRead)
	return totalRead, err
}

func (stream *BasicStream) ReadAt(buffer []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("negative offset %d", offset))
	}
	if offset >= stream.size {
		return 0, io.EOF
	}

	// Clamp the number of bytes to read to whichever is smaller; the length of
	// the buffer or the end of the device.
	numBytesToRead := int64(len(buffer))
	if offset+numBytesToRead > stream.size {
		numBytesToRead = stream.size - offset
	}

	totalRead := 0
	for int64(totalRead) < numBytesToRead {
		sector, sectorOffset := stream.convertLinearAddr(offset + int64(totalRead))
		data, err := stream.device.Read(sector)
		if err != nil {
			return totalRead, err
		}
		totalRead += copy(buffer[totalRead:numBytesToRead], data[sectorOffset:])
	}

	if numBytesToRead < int64(len(buffer)) {
		return totalRead, io.EOF
	}
	return totalRead, nil
}

// Seek moves the stream pointer to `offset` bytes from the origin specified in
// `whence`, which must be one of [io.SeekStart], [io.SeekCurrent], or
// [io.SeekEnd].
//
// Seeking past the end of the device is allowed, but reads there return
// [io.EOF] and writes fail.
func (stream *BasicStream) Seek(offset int64, whence int) (int64, error) {
	var absoluteOffset int64

	switch whence {
	case io.SeekStart:
		absoluteOffset = offset
	case io.SeekCurrent:
		absoluteOffset = stream.position + offset
	case io.SeekEnd:
		absoluteOffset = stream.size + offset
	default:
		return stream.position, errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("invalid seek origin: %d", whence))
	}

	if absoluteOffset < 0 {
		return stream.position, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("result of Seek(offset=%d, whence=%d) is negative", offset, whence),
		)
	}

	stream.position = absoluteOffset
	return absoluteOffset, nil
}

// Size returns the logical size of the device, in bytes.
func (stream *BasicStream) Size() int64 {
	return stream.size
}

// Tell returns the current stream position. It's a more concise way of calling
// `Seek(0, io.SeekCurrent)`.
func (stream *BasicStream) Tell() int64 {
	return stream.position
}

func (stream *BasicStream) Write(buffer []byte) (int, error) {
	totalWritten, err := stream.WriteAt(buffer, stream.position)
	stream.position += int64(totalWritten)
	return totalWritten, err
}

// WriteAt writes `buffer` at `offset`. The device can't grow, so a write that
// would run past the end writes nothing and fails with ENOSPC.
func (stream *BasicStream) WriteAt(buffer []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("negative offset %d", offset))
	}

	bufLen := int64(len(buffer))
	if offset+bufLen > stream.size {
		return 0, errors.NewWithMessage(
			errors.ENOSPC,
			fmt.Sprintf(
				"can't write %d bytes at offset %d: device is only %d bytes",
				bufLen,
				offset,
				stream.size,
			),
		)
	}

	sectorSize := int(stream.device.SectorSize())
	totalWritten := 0
	for totalWritten < len(buffer) {
		sector, sectorOffset := stream.convertLinearAddr(offset + int64(totalWritten))
		chunk := buffer[totalWritten:]
		if len(chunk) > sectorSize-sectorOffset {
			chunk = chunk[:sectorSize-sectorOffset]
		}

		var data []byte
		if len(chunk) == sectorSize {
			data = chunk
		} else {
			existing, err := stream.device.Read(sector)
			if err != nil {
				return totalWritten, err
			}
			copy(existing[sectorOffset:], chunk)
			data = existing
		}

		if err := stream.device.Write(sector, data); err != nil {
			return totalWritten, err
		}
		totalWritten += len(chunk)
	}
	return totalWritten, nil
}

// WriteString writes a string to the stream.
func (stream *BasicStream) WriteString(s string) (int, error) {
	return stream.Write([]byte(s))
}

// ReadFrom copies `r` into the stream one sector at a time until `r` hits EOF.
func (stream *BasicStream) ReadFrom(r io.Reader) (int64, error) {
	buffer := make([]byte, stream.device.SectorSize())
	totalBytesRead := int64(0)

	for {
		lastReadSize, readErr := io.ReadFull(r, buffer)
		if lastReadSize > 0 {
			written, writeErr := stream.Write(buffer[:lastReadSize])
			totalBytesRead += int64(written)
			if writeErr != nil {
				return totalBytesRead, writeErr
			}
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			return totalBytesRead, nil
		} else if readErr != nil {
			return totalBytesRead, readErr
		}
	}
}

// WriteTo copies everything from the current position to the end of the device
// into `w`.
func (stream *BasicStream) WriteTo(w io.Writer) (int64, error) {
	buffer := make([]byte, stream.device.SectorSize())
	totalWritten := int64(0)

	for {
		blockSize, readErr := stream.Read(buffer)

		// Always write the data we've read in regardless of whether an error
		// occurred or not.
		if blockSize > 0 {
			written, writeErr := w.Write(buffer[:blockSize])
			totalWritten += int64(written)
			if writeErr != nil {
				return totalWritten, writeErr
			}
		}

		// If we hit EOF, we're done. Any other error is fatal.
		if readErr == io.EOF {
			return totalWritten, nil
		} else if readErr != nil {
			return totalWritten, readErr
		}
	}
}
