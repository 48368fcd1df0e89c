package compression

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// rle8MaxRepeatCount is the largest number of extra repetitions a single RLE8
// group can carry, so one group covers at most 257 bytes.
const rle8MaxRepeatCount = 255

// CompressRLE8 reads bytes from the input and writes RLE8-compressed data to
// the output until the input is exhausted. The return value is the number of
// bytes written, only valid if no error occurred.
func CompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	grouper := NewRLEGrouper(input)

	totalBytesWritten := int64(0)
	for {
		run, getRunErr := grouper.GetNextRun()
		if getRunErr != nil {
			if errors.Is(getRunErr, io.EOF) {
				return totalBytesWritten, nil
			}
			return totalBytesWritten, getRunErr
		}

		n, err := writeRLE8Run(output, run)
		totalBytesWritten += n
		if err != nil {
			return totalBytesWritten, err
		}
	}
}

// writeRLE8Run writes out one run as one or more RLE8 groups, followed by a
// trailing literal if one byte is left over.
func writeRLE8Run(output io.Writer, run ByteRun) (int64, error) {
	written := int64(0)

	for run.RunLength >= 2 {
		repeatCount := run.RunLength - 2
		if repeatCount > rle8MaxRepeatCount {
			repeatCount = rle8MaxRepeatCount
		}

		n, err := output.Write([]byte{run.Byte, run.Byte, byte(repeatCount)})
		written += int64(n)
		if err != nil {
			return written, err
		}
		run.RunLength -= repeatCount + 2
	}

	if run.RunLength == 1 {
		n, err := output.Write([]byte{run.Byte})
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// DecompressRLE8 expands RLE8 data from `input` into `output` and returns the
// number of bytes written. A stream that ends between a doubled byte and its
// repeat count fails with an error wrapping [io.ErrUnexpectedEOF].
func DecompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	lastByteRead := -1
	totalBytesWritten := int64(0)

	for {
		currentByte, err := source.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return totalBytesWritten, nil
			}
			return totalBytesWritten, fmt.Errorf("error reading input: %w", err)
		}

		var currentOutput []byte
		if int(currentByte) == lastByteRead {
			repeatCountByte, err := source.ReadByte()
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = fmt.Errorf(
						"%w: missing repeat count after two %02x bytes",
						io.ErrUnexpectedEOF,
						uint(lastByteRead),
					)
				}
				return totalBytesWritten, fmt.Errorf("failed to read repeat count: %w", err)
			}

			// The first of the pair was already written on the previous
			// iteration, so this is the second copy plus the repeats.
			currentOutput = bytes.Repeat([]byte{currentByte}, int(repeatCountByte)+1)

			// Reset so that a run of 258+ bytes, split across groups, doesn't
			// treat the next group's first byte as the second of a pair.
			lastByteRead = -1
		} else {
			lastByteRead = int(currentByte)
			currentOutput = []byte{currentByte}
		}

		n, err := output.Write(currentOutput)
		totalBytesWritten += int64(n)
		if err != nil {
			return totalBytesWritten, fmt.Errorf("failed to write to output: %w", err)
		}
	}
}
