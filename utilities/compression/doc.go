// Package compression contains the codecs used by squashblk.
//
// # Sector codec (RLE0)
//
// Every sector written to a block device is run through a small run-length
// encoder before it reaches the driver. A run of three or more identical bytes
// is replaced by a three-byte token:
//
//	0x00 LENGTH VALUE
//
// where LENGTH is 1-255. Any other byte is copied through unchanged. Because
// 0x00 introduces a token, a zero byte can never appear as a literal; runs of
// one or two zeros are also written as tokens (`00 01 00`, `00 02 00`). Without
// that rule a literal zero followed by two more bytes would be decoded as a
// token. Streams written by encoders that emit literal zeros are not readable
// by this package.
//
// For data without zero bytes the encoded form is never longer than the input.
// Data with many isolated zeros can grow up to three times its size; block
// devices store such sectors uncompressed instead.
//
// # Image archives (RLE8 + gzip)
//
// Whole backing images are archived with the run-length encoding used by the
// Microsoft BMP format, also known as RLE8, followed by gzip. If a byte B occurs
// N times where N >= 2, B is written twice, followed by a third (unsigned) byte
// indicating how many additional times B occurred. For example:
//
//	WXXXXXXXXXXXXXXXYZZ
//	W XX 13 Y ZZ 0
//
// One group covers at most 257 bytes; longer runs are split. A mostly empty
// image shrinks by two orders of magnitude under RLE8 alone and gzip removes
// most of what's left.
package compression
