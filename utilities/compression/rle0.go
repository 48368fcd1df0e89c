package compression

import (
	"bytes"
	"fmt"

	"github.com/dargueta/squashblk/errors"
)

const (
	// RLE0Escape marks the start of a run token in an RLE0 stream.
	RLE0Escape = byte(0)
	// RLE0MaxRunLength is the longest run a single token can describe. The
	// length is stored in one byte.
	RLE0MaxRunLength = 255
	// RLE0MinRunLength is the shortest run of a non-zero byte that is encoded as
	// a token. Shorter runs are cheaper as literals.
	RLE0MinRunLength = 3
	// RLE0TokenSize is the size of a run token: escape, length, value.
	RLE0TokenSize = 3
)

// EncodeRLE0 compresses `input` with the sector codec and returns the encoded
// bytes in a new slice. It fails if `input` is empty.
//
// Runs of three or more identical bytes become a token `[0, length, value]`.
// Every other byte is copied through as a literal, except for zero: a literal
// zero would be indistinguishable from the escape byte, so runs of one or two
// zeros are always written as tokens too.
func EncodeRLE0(input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, errors.NewWithMessage(errors.EINVAL, "can't compress empty input")
	}

	output := make([]byte, 0, len(input))
	grouper := NewRLEGrouper(bytes.NewReader(input))

	for consumed := 0; consumed < len(input); {
		run, err := grouper.GetNextRun()
		if err != nil {
			// Reading from a bytes.Reader only fails at EOF, which we never hit
			// because of the loop condition.
			return nil, errors.NewFromError(errors.EIO, err)
		}
		consumed += run.RunLength

		for run.RunLength > 0 {
			chunk := run.RunLength
			if chunk > RLE0MaxRunLength {
				chunk = RLE0MaxRunLength
			}

			if chunk >= RLE0MinRunLength || run.Byte == RLE0Escape {
				output = append(output, RLE0Escape, byte(chunk), run.Byte)
			} else {
				output = append(output, bytes.Repeat([]byte{run.Byte}, chunk)...)
			}
			run.RunLength -= chunk
		}
	}
	return output, nil
}

// DecodeRLE0 expands data produced by [EncodeRLE0] into a new slice of exactly
// `originalLength` bytes.
//
// Decoding stops as soon as the output is full; anything left in `compressed`
// after that point is ignored. If `compressed` runs out before the output is
// full, or contains a malformed token, this fails with EUCLEAN and no data is
// returned. That includes an escape byte with fewer than two bytes after it,
// which older decoders passed through as a literal.
func DecodeRLE0(compressed []byte, originalLength int) ([]byte, error) {
	if len(compressed) == 0 {
		return nil, errors.NewWithMessage(errors.EINVAL, "compressed data is empty")
	}
	if originalLength <= 0 {
		return nil, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("original length must be positive, got %d", originalLength),
		)
	}

	output := make([]byte, originalLength)
	outPos := 0
	inPos := 0

	for inPos < len(compressed) && outPos < originalLength {
		currentByte := compressed[inPos]
		inPos++

		if currentByte != RLE0Escape {
			output[outPos] = currentByte
			outPos++
			continue
		}

		if inPos+1 >= len(compressed) {
			return nil, errors.NewWithMessage(
				errors.EUCLEAN,
				fmt.Sprintf("truncated run token at offset %d", inPos-1),
			)
		}

		runLength := int(compressed[inPos])
		value := compressed[inPos+1]
		inPos += 2

		if runLength == 0 {
			return nil, errors.NewWithMessage(
				errors.EUCLEAN,
				fmt.Sprintf("zero-length run token at offset %d", inPos-RLE0TokenSize),
			)
		}

		if runLength > originalLength-outPos {
			runLength = originalLength - outPos
		}
		for i := 0; i < runLength; i++ {
			output[outPos+i] = value
		}
		outPos += runLength
	}

	if outPos < originalLength {
		return nil, errors.NewWithMessage(
			errors.EUCLEAN,
			fmt.Sprintf(
				"compressed data expands to %d bytes, expected %d",
				outPos,
				originalLength,
			),
		)
	}
	return output, nil
}

// RLE0Codec is the sector codec used by block devices. It has no state and its
// zero value is ready to use.
type RLE0Codec struct{}

func (RLE0Codec) Encode(data []byte) ([]byte, error) {
	return EncodeRLE0(data)
}

func (RLE0Codec) Decode(compressed []byte, originalLength int) ([]byte, error) {
	return DecodeRLE0(compressed, originalLength)
}
