// Package outputindex defines the binary index that accompanies a captured output log. See
// doc.go for docs.
package outputindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// RecordSize is the encoded size of one Record in bytes.
const RecordSize = 9

// ErrTruncated is returned when the index ends in the middle of a record.
var ErrTruncated = errors.New("truncated index record")

// Stream identifies which output stream produced a line.
type Stream uint8

const (
	Stdout Stream = 0
	Stderr Stream = 1
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	}
	return fmt.Sprintf("stream(%d)", uint8(s))
}

// ParseStream maps a stream name as printed by String back to a Stream.
func ParseStream(name string) (Stream, error) {
	switch name {
	case "stdout", "0":
		return Stdout, nil
	case "stderr", "1":
		return Stderr, nil
	}
	return 0, fmt.Errorf("unknown stream %q", name)
}

// Record marks the completion of one line in the output log.
type Record struct {
	Time   time.Time // millisecond precision
	Stream Stream
}

// NewRecord returns a Record for stream completed at t, truncated to milliseconds.
func NewRecord(t time.Time, stream Stream) Record {
	return Record{Time: time.UnixMilli(t.UnixMilli()), Stream: stream}
}

// Encode returns the 9-byte wire form of r.
func Encode(r Record) [RecordSize]byte {
	var buf [RecordSize]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(r.Time.UnixMilli()))
	buf[8] = byte(r.Stream)
	return buf
}

// AppendRecord appends the encoded form of r to b.
func AppendRecord(b []byte, r Record) []byte {
	b = binary.BigEndian.AppendUint64(b, uint64(r.Time.UnixMilli()))
	return append(b, byte(r.Stream))
}

// Decode parses exactly one record.
func Decode(b []byte) (Record, error) {
	if len(b) != RecordSize {
		return Record{}, fmt.Errorf("decode index record: got %d bytes, want %d: %w", len(b), RecordSize, ErrTruncated)
	}
	ms := binary.BigEndian.Uint64(b[:8])
	return Record{
		Time:   time.UnixMilli(int64(ms)),
		Stream: Stream(b[8]),
	}, nil
}

// ReadRecord reads the next record from r. It returns io.EOF when r is
// exhausted at a record boundary and ErrTruncated when it is not.
func ReadRecord(r io.Reader) (Record, error) {
	var buf [RecordSize]byte
	n, err := io.ReadFull(r, buf[:])
	switch {
	case err == io.EOF:
		return Record{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return Record{}, fmt.Errorf("read index record: got %d of %d bytes: %w", n, RecordSize, ErrTruncated)
	case err != nil:
		return Record{}, fmt.Errorf("read index record: %w", err)
	}
	return Decode(buf[:])
}

// ReadAll reads records until r is exhausted.
func ReadAll(r io.Reader) ([]Record, error) {
	var records []Record
	for {
		rec, err := ReadRecord(r)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// Writer appends encoded records to an underlying io.Writer. It is not safe
// for concurrent use; callers serialize writes themselves.
type Writer struct {
	w   io.Writer
	buf [RecordSize]byte
}

// NewWriter returns a Writer appending to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes r and writes it with a single call to the underlying writer.
func (w *Writer) Write(r Record) error {
	w.buf = Encode(r)
	if _, err := w.w.Write(w.buf[:]); err != nil {
		return fmt.Errorf("write index record: %w", err)
	}
	return nil
}
