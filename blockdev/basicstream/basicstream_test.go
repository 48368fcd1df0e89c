package basicstream_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/dargueta/squashblk/blockdev"
	"github.com/dargueta/squashblk/blockdev/basicstream"
	"github.com/dargueta/squashblk/errors"
	sqtest "github.com/dargueta/squashblk/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStream(t *testing.T, blockType blockdev.BlockType) (*basicstream.BasicStream, *blockdev.Device) {
	device, _ := sqtest.NewMemoryDevice(t, "hda", blockType, 64, 8)
	return basicstream.New(device), device
}

func TestBasicStream__Size(t *testing.T) {
	stream, _ := newStream(t, blockdev.Raw)
	assert.EqualValues(t, 512, stream.Size())
	assert.EqualValues(t, 0, stream.Tell())
}

func TestBasicStream__UnalignedWriteReadBack(t *testing.T) {
	stream, device := newStream(t, blockdev.Raw)
	payload := []byte("spans the boundary between sector zero and sector one")

	written, err := stream.WriteAt(payload, 40)
	require.NoError(t, err)
	assert.Equal(t, len(payload), written)

	readBack := make([]byte, len(payload))
	n, err := stream.ReadAt(readBack, 40)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, readBack)

	// Bytes around the write are untouched.
	sectorZero, err := device.Read(0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 40), sectorZero[:40])
	assert.Equal(t, payload[:24], sectorZero[40:])
}

func TestBasicStream__SequentialIO(t *testing.T) {
	stream, _ := newStream(t, blockdev.Raw)

	_, err := stream.WriteString("hello ")
	require.NoError(t, err)
	_, err = stream.Write([]byte("world"))
	require.NoError(t, err)
	assert.EqualValues(t, 11, stream.Tell())

	position, err := stream.Seek(-5, io.SeekCurrent)
	require.NoError(t, err)
	assert.EqualValues(t, 6, position)

	buffer := make([]byte, 5)
	_, err = io.ReadFull(stream, buffer)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buffer))
}

func TestBasicStream__Seek(t *testing.T) {
	stream, _ := newStream(t, blockdev.Raw)

	position, err := stream.Seek(-12, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 500, position)

	_, err = stream.Seek(-1, io.SeekStart)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.EqualValues(t, 500, stream.Tell(), "failed seek moved the pointer")

	_, err = stream.Seek(0, 42)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestBasicStream__ReadPastEnd(t *testing.T) {
	stream, _ := newStream(t, blockdev.Raw)

	buffer := make([]byte, 20)
	n, err := stream.ReadAt(buffer, 500)
	assert.Equal(t, 12, n)
	assert.ErrorIs(t, err, io.EOF)

	n, err = stream.ReadAt(buffer, 512)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestBasicStream__WritePastEnd(t *testing.T) {
	stream, device := newStream(t, blockdev.Raw)

	n, err := stream.WriteAt(make([]byte, 20), 500)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)
	assert.EqualValues(t, 0, device.Stats().Writes)
}

func TestBasicStream__ForeignDevice(t *testing.T) {
	stream, _ := newStream(t, blockdev.Foreign)

	_, err := stream.Write([]byte("nope"))
	assert.ErrorIs(t, err, errors.ErrReadOnlyFileSystem)
}

func TestBasicStream__CopyWholeImage(t *testing.T) {
	stream, device := newStream(t, blockdev.Raw)

	image := append(bytes.Repeat([]byte{0}, 300), bytes.Repeat([]byte("ab"), 100)...)
	n, err := io.Copy(stream, bytes.NewReader(image))
	require.NoError(t, err)
	assert.EqualValues(t, 500, n)

	_, err = stream.Seek(0, io.SeekStart)
	require.NoError(t, err)

	var output bytes.Buffer
	n, err = io.Copy(&output, stream)
	require.NoError(t, err)
	assert.EqualValues(t, 512, n)
	assert.Equal(t, image, output.Bytes()[:500])
	assert.Equal(t, make([]byte, 12), output.Bytes()[500:])

	assert.Greater(t, device.Stats().CompressedWrites, uint64(0))
}
