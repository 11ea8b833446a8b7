// Package outputindex defines the binary index that accompanies a captured output log.
//
// # Overview
//
// A capture writes two files next to each other:
//
//   - output: the raw bytes of stdout and stderr, concatenated line by line in
//     the order each line was completed
//   - output.index: one fixed-size record per line in output
//
// The index makes it possible to tell, for every line in output, when it was
// completed and which stream produced it, without touching the bytes of the
// line itself.
//
// # Record Format
//
// Each record is exactly 9 bytes:
//
//	offset  size  field
//	0       8     timestamp, milliseconds since the Unix epoch, unsigned big-endian
//	8       1     stream, 0 for stdout and 1 for stderr
//
// Records are concatenated without any header, separator, version or checksum.
// Record n describes line n of the output file.
//
// # Example
//
// A process printing "hello\n" on stdout and then "oops\n" on stderr produces
//
//	output:        hello\noops\n
//	output.index:  00 00 01 94 3f 2a 1c 10 00   00 00 01 94 3f 2a 1c 11 01
//
// # Errors
//
// A file whose length is not a multiple of 9 ends with a truncated record.
// Readers report this as [ErrTruncated]; there is no attempt to recover.
package outputindex
